// Package api holds the wire types and procedure names of the nexus
// service, shared by the gateway handlers and the nexusctl client.
package api

import (
	"time"

	"llmnexus/internal/dispatch"
	"llmnexus/internal/report"
)

const ServiceName = "nexus.v1.NexusService"

const (
	OrchestrateProcedure    = "/" + ServiceName + "/Orchestrate"
	GetRunReportProcedure   = "/" + ServiceName + "/GetRunReport"
	SummarizeProcedure      = "/" + ServiceName + "/Summarize"
	ListModelsProcedure     = "/" + ServiceName + "/ListModels"
	SetModelHealthProcedure = "/" + ServiceName + "/SetModelHealth"

	MetricsFeedPath = "/ws/metrics"
)

// IdentityHeader carries the caller identity used for rate limiting.
const IdentityHeader = "X-Nexus-Identity"

type OrchestrateRequest struct {
	Objective string `json:"objective"`
	Prompt    string `json:"prompt"`
	// Temperature defaults to 0.7 when omitted.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type OrchestrateResponse struct {
	RunID     string            `json:"run_id"`
	Objective string            `json:"objective"`
	Models    []string          `json:"models"`
	Responses *dispatch.Results `json:"responses"`
	ElapsedMs int64             `json:"elapsed_ms"`
	Report    report.Summary    `json:"report"`
}

type GetRunReportRequest struct {
	RunID string `json:"run_id"`
}

type GetRunReportResponse struct {
	Report report.RunReport `json:"report"`
}

type SummarizeRequest struct {
	RunID    string     `json:"run_id,omitempty"`
	Identity string     `json:"identity,omitempty"`
	ModelID  string     `json:"model_id,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Until    *time.Time `json:"until,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	// StepSeconds adds a timeline with buckets of this width.
	StepSeconds int `json:"step_seconds,omitempty"`
}

type SummarizeResponse struct {
	Summary report.Summary `json:"summary"`
}

type ListModelsRequest struct{}

type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	Tags          []string `json:"tags,omitempty"`
	CostPerToken  float64  `json:"cost_per_token"`
	AvgLatencyMs  int64    `json:"avg_latency_ms"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Available     bool     `json:"available"`
	ManualHealthy bool     `json:"manual_healthy"`
	Breaker       string   `json:"breaker"`
	Failures      int      `json:"failures,omitempty"`
}

type RouteInfo struct {
	Objective  string   `json:"objective"`
	Candidates []string `json:"candidates"`
	FanOut     int      `json:"fanout"`
}

type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
	Routes []RouteInfo `json:"routes"`
}

type SetModelHealthRequest struct {
	ModelID string `json:"model_id"`
	Healthy bool   `json:"healthy"`
}

type SetModelHealthResponse struct {
	Model ModelInfo `json:"model"`
}
