package server

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"llmnexus/internal/gateway/api"
	"llmnexus/internal/gateway/handler"
	"llmnexus/internal/gateway/handler/rpc"
	"llmnexus/internal/gateway/middleware"
)

func NewMux(
	nexusHandler *rpc.NexusHandler,
	feedHandler *handler.MetricsFeedHandler,
	traceHandler *handler.TraceHandler,
	logger log.FieldLogger,
) http.Handler {
	mux := http.NewServeMux()

	// RPC Handlers
	mux.Handle(rpc.NewNexusServiceHandler(nexusHandler))

	// Live metrics
	mux.Handle(api.MetricsFeedPath, feedHandler)

	// Debug Handlers
	mux.HandleFunc("/debug/run-metrics", traceHandler.HandleRunMetrics)
	mux.HandleFunc("/healthz", traceHandler.HandleHealthz)

	// Middleware
	return middleware.CORS(middleware.Identity(middleware.RequestLog(logger)(mux)))
}
