package rpc

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	log "github.com/sirupsen/logrus"

	"llmnexus/internal/gateway/api"
	"llmnexus/internal/globalctx"
	"llmnexus/internal/llm"
	"llmnexus/internal/metrics"
	"llmnexus/internal/orchestrator"
	"llmnexus/internal/report"
	"llmnexus/internal/router"
)

type Orchestrator interface {
	Orchestrate(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	Report(ctx context.Context, runID string) (report.RunReport, error)
	Summarize(ctx context.Context, f metrics.Filter, step time.Duration) (report.Summary, error)
}

type ModelDirectory interface {
	Descriptor(id string) (llm.ModelDescriptor, bool)
	Descriptors() []llm.ModelDescriptor
}

type HealthBoard interface {
	SetHealthy(id string, healthy bool)
	Snapshot(ids []string) []llm.ModelHealth
}

type RouteTable interface {
	Route(obj router.Objective) (router.Route, bool)
}

type NexusHandler struct {
	orch   Orchestrator
	models ModelDirectory
	health HealthBoard
	routes RouteTable
}

func NewNexusHandler(orch Orchestrator, models ModelDirectory, health HealthBoard, routes RouteTable) *NexusHandler {
	return &NexusHandler{orch: orch, models: models, health: health, routes: routes}
}

// NewNexusServiceHandler mounts every procedure of the service under its
// path prefix.
func NewNexusServiceHandler(h *NexusHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(api.JSONCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(api.OrchestrateProcedure, connect.NewUnaryHandler(api.OrchestrateProcedure, h.Orchestrate, opts...))
	mux.Handle(api.GetRunReportProcedure, connect.NewUnaryHandler(api.GetRunReportProcedure, h.GetRunReport, opts...))
	mux.Handle(api.SummarizeProcedure, connect.NewUnaryHandler(api.SummarizeProcedure, h.Summarize, opts...))
	mux.Handle(api.ListModelsProcedure, connect.NewUnaryHandler(api.ListModelsProcedure, h.ListModels, opts...))
	mux.Handle(api.SetModelHealthProcedure, connect.NewUnaryHandler(api.SetModelHealthProcedure, h.SetModelHealth, opts...))
	return "/" + api.ServiceName + "/", mux
}

func identityOf(ctx context.Context, header http.Header) string {
	if id := globalctx.IdentityFrom(ctx); id != "" {
		return id
	}
	return strings.TrimSpace(header.Get(api.IdentityHeader))
}

func (h *NexusHandler) Orchestrate(ctx context.Context, req *connect.Request[api.OrchestrateRequest]) (*connect.Response[api.OrchestrateResponse], error) {
	obj, err := router.ParseObjective(req.Msg.Objective)
	if err != nil {
		return nil, toConnectError(err)
	}
	in := orchestrator.Request{
		Identity:  identityOf(ctx, req.Header()),
		Objective: obj,
		Prompt:    req.Msg.Prompt,
		MaxTokens: req.Msg.MaxTokens,
	}
	if t := req.Msg.Temperature; t != nil {
		in.Temperature = *t
		in.TemperatureSet = true
	}
	res, err := h.orch.Orchestrate(ctx, in)
	if err != nil {
		log.WithFields(log.Fields{"event": "orchestrate_failed", "identity": in.Identity, "objective": obj}).WithError(err).Info("orchestrate rejected")
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.OrchestrateResponse{
		RunID:     res.RunID,
		Objective: string(res.Objective),
		Models:    res.Models,
		Responses: res.Responses,
		ElapsedMs: res.Elapsed.Milliseconds(),
		Report:    res.Report,
	}), nil
}

func (h *NexusHandler) GetRunReport(ctx context.Context, req *connect.Request[api.GetRunReportRequest]) (*connect.Response[api.GetRunReportResponse], error) {
	rr, err := h.orch.Report(ctx, req.Msg.RunID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.GetRunReportResponse{Report: rr}), nil
}

func (h *NexusHandler) Summarize(ctx context.Context, req *connect.Request[api.SummarizeRequest]) (*connect.Response[api.SummarizeResponse], error) {
	m := req.Msg
	if m.StepSeconds < 0 || m.Limit < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errInvalid("step_seconds and limit must not be negative"))
	}
	f := metrics.Filter{
		RunID:    strings.TrimSpace(m.RunID),
		Identity: strings.TrimSpace(m.Identity),
		ModelID:  strings.TrimSpace(m.ModelID),
		Limit:    m.Limit,
	}
	if m.Since != nil {
		f.Since = *m.Since
	}
	if m.Until != nil {
		f.Until = *m.Until
	}
	s, err := h.orch.Summarize(ctx, f, time.Duration(m.StepSeconds)*time.Second)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.SummarizeResponse{Summary: s}), nil
}

func (h *NexusHandler) ListModels(_ context.Context, _ *connect.Request[api.ListModelsRequest]) (*connect.Response[api.ListModelsResponse], error) {
	descs := h.models.Descriptors()
	out := &api.ListModelsResponse{Models: toModelInfos(descs, h.snapshot(descs))}
	for _, obj := range router.Objectives() {
		if r, ok := h.routes.Route(obj); ok {
			out.Routes = append(out.Routes, api.RouteInfo{Objective: string(obj), Candidates: r.Candidates, FanOut: r.FanOut})
		}
	}
	return connect.NewResponse(out), nil
}

func (h *NexusHandler) SetModelHealth(_ context.Context, req *connect.Request[api.SetModelHealthRequest]) (*connect.Response[api.SetModelHealthResponse], error) {
	desc, ok := h.models.Descriptor(req.Msg.ModelID)
	if !ok {
		return nil, toConnectError(llm.ErrModelNotRegistered)
	}
	h.health.SetHealthy(desc.ID, req.Msg.Healthy)
	log.WithFields(log.Fields{"event": "model_health_set", "model": desc.ID, "healthy": req.Msg.Healthy}).Info("model health updated")
	descs := []llm.ModelDescriptor{desc}
	return connect.NewResponse(&api.SetModelHealthResponse{Model: toModelInfos(descs, h.snapshot(descs))[0]}), nil
}

func (h *NexusHandler) snapshot(descs []llm.ModelDescriptor) []llm.ModelHealth {
	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.ID
	}
	return h.health.Snapshot(ids)
}
