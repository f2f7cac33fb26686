package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/rootgw/internal/console/service"
	"github.com/xela07ax/rootgw/internal/infra/auth"
)

type FlagService interface {
	List(ctx context.Context) (map[string]bool, error)
	Set(ctx context.Context, name string, on bool, operator string) error
}

// FlagHandler - рубильники local_ai_control и cloud_ai_control.
type FlagHandler struct {
	service FlagService
}

func NewFlagHandler(s FlagService) *FlagHandler {
	return &FlagHandler{service: s}
}

func (h *FlagHandler) List(w http.ResponseWriter, r *http.Request) {
	flags, err := h.service.List(r.Context())
	if err != nil {
		http.Error(w, "failed to load flags", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

type setFlagRequest struct {
	On *bool `json:"on"`
}

// Set - PUT /v1/flags/{name} {"on": true}
func (h *FlagHandler) Set(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req setFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		http.Error(w, `body must be {"on": bool}`, http.StatusBadRequest)
		return
	}

	operator := ""
	if claims, ok := auth.ClaimsFrom(r.Context()); ok {
		operator = claims.UserID
	}

	err := h.service.Set(r.Context(), name, *req.On, operator)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{name: *req.On})
	case errors.Is(err, service.ErrUnknownFlag):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "failed to store flag", http.StatusBadGateway)
	}
}
