package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xela07ax/rootgw/internal/audit"
	"github.com/xela07ax/rootgw/internal/domain"
)

type AuditService interface {
	FetchLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

type AuditHandler struct {
	service AuditService
}

func NewAuditHandler(s AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs - GET /v1/audit?action=...&status=...&reason=...&source=...&limit=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Action: q.Get("action"),
		Status: domain.Status(q.Get("status")),
		Reason: domain.Reason(q.Get("reason")),
		Source: domain.Source(q.Get("source")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	logs, err := h.service.FetchLogs(r.Context(), f)
	if err != nil {
		http.Error(w, "Failed to fetch audit logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
