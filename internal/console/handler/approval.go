package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/rootgw/internal/console/service"
	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/infra/auth"
)

type ApprovalService interface {
	GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	GetApprovals(ctx context.Context, status string) ([]*domain.ApprovalRequest, error)
	DecideApproval(ctx context.Context, id string, approved bool, reviewer, comment string) error
}

type ApprovalHandler struct {
	service ApprovalService
}

func NewApprovalHandler(s ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: s}
}

func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	approval, err := h.service.GetApproval(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrApprovalNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to fetch approval", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

// List - GET /v1/approvals?status=pending|approved|rejected|expired|all
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(domain.StatusPending)
	}

	list, err := h.service.GetApprovals(r.Context(), status)
	if err != nil {
		if errors.Is(err, service.ErrUnknownStatus) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to fetch approvals", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type DecideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// Decide - оператор подтверждает или отклоняет High-действие.
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok || claims.UserID == "" {
		http.Error(w, "reviewer identity is required", http.StatusUnauthorized)
		return
	}

	err := h.service.DecideApproval(r.Context(), id, req.Approved, claims.UserID, req.Comment)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrApprovalNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAlreadyProcessed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
