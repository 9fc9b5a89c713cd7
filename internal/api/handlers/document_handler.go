package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/markdave123-py/iatidocs/internal/core/ingestion_engine"
	"github.com/markdave123-py/iatidocs/internal/models"
)

type DocumentHandler struct {
	ingestor ingestion_engine.Ingestor
}

func NewDocumentHandler(ing ingestion_engine.Ingestor) *DocumentHandler {
	return &DocumentHandler{ingestor: ing}
}

// GetProgress reports completed versus total descriptors for the run.
func (h *DocumentHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	p := h.ingestor.Progress()
	writeJSON(w, http.StatusOK, progressResponse{
		Progress:  p,
		ElapsedMS: p.Elapsed.Milliseconds(),
	})
}

type progressResponse struct {
	models.Progress
	ElapsedMS int64 `json:"elapsed_ms"`
}

// GetDocuments lists the outcomes recorded so far. Optional query params:
// status=success|failure and limit=N.
func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	if status != "" && status != models.StatusSuccess && status != models.StatusFailure {
		http.Error(w, "status must be success or failure", http.StatusBadRequest)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	out := make([]*models.Outcome, 0)
	for _, o := range h.ingestor.Outcomes() {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}
