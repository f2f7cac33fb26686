package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/rootgw/internal/domain"
)

type DashboardService interface {
	GetDashboard(ctx context.Context) (*domain.Dashboard, error)
}

type DashboardHandler struct {
	service DashboardService
}

func NewDashboardHandler(s DashboardService) *DashboardHandler {
	return &DashboardHandler{service: s}
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetDashboard(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
