package api

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls the nexus service on behalf of one identity.
type Client struct {
	identity       string
	orchestrate    *connect.Client[OrchestrateRequest, OrchestrateResponse]
	getRunReport   *connect.Client[GetRunReportRequest, GetRunReportResponse]
	summarize      *connect.Client[SummarizeRequest, SummarizeResponse]
	listModels     *connect.Client[ListModelsRequest, ListModelsResponse]
	setModelHealth *connect.Client[SetModelHealthRequest, SetModelHealthResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL, identity string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &Client{
		identity:       strings.TrimSpace(identity),
		orchestrate:    connect.NewClient[OrchestrateRequest, OrchestrateResponse](httpClient, baseURL+OrchestrateProcedure, opts...),
		getRunReport:   connect.NewClient[GetRunReportRequest, GetRunReportResponse](httpClient, baseURL+GetRunReportProcedure, opts...),
		summarize:      connect.NewClient[SummarizeRequest, SummarizeResponse](httpClient, baseURL+SummarizeProcedure, opts...),
		listModels:     connect.NewClient[ListModelsRequest, ListModelsResponse](httpClient, baseURL+ListModelsProcedure, opts...),
		setModelHealth: connect.NewClient[SetModelHealthRequest, SetModelHealthResponse](httpClient, baseURL+SetModelHealthProcedure, opts...),
	}
}

func request[T any](identity string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if identity != "" {
		req.Header().Set(IdentityHeader, identity)
	}
	return req
}

func (c *Client) Orchestrate(ctx context.Context, in *OrchestrateRequest) (*OrchestrateResponse, error) {
	res, err := c.orchestrate.CallUnary(ctx, request(c.identity, in))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetRunReport(ctx context.Context, in *GetRunReportRequest) (*GetRunReportResponse, error) {
	res, err := c.getRunReport.CallUnary(ctx, request(c.identity, in))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Summarize(ctx context.Context, in *SummarizeRequest) (*SummarizeResponse, error) {
	res, err := c.summarize.CallUnary(ctx, request(c.identity, in))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) ListModels(ctx context.Context) (*ListModelsResponse, error) {
	res, err := c.listModels.CallUnary(ctx, request(c.identity, &ListModelsRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) SetModelHealth(ctx context.Context, in *SetModelHealthRequest) (*SetModelHealthResponse, error) {
	res, err := c.setModelHealth.CallUnary(ctx, request(c.identity, in))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
