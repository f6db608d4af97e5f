package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"llmnexus/internal/metrics"
)

type RecordQuerier interface {
	Query(ctx context.Context, f metrics.Filter) ([]metrics.Record, error)
}

// TraceHandler serves raw per-run metric records for debugging.
type TraceHandler struct {
	records RecordQuerier
}

func NewTraceHandler(records RecordQuerier) *TraceHandler {
	return &TraceHandler{records: records}
}

func (h *TraceHandler) HandleRunMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}
	records, err := h.records.Query(r.Context(), metrics.Filter{RunID: runID})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []metrics.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"run_id":  runID,
		"records": records,
	})
}

func (h *TraceHandler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}
