package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/session"
)

const maxBodyBytes = 64 << 10

// ElevationControl - управление сессией, доступное локальному агенту.
type ElevationControl interface {
	Elevation
	Backend() string
	IsElevationAvailable() bool
	RequestElevation(ctx context.Context) bool
	Invalidate()
}

type HTTPHandler struct {
	pipeline *Pipeline
	elev     ElevationControl
	logger   *zap.Logger
}

func NewHTTPHandler(p *Pipeline, elev ElevationControl, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{pipeline: p, elev: elev, logger: logger.Named("http")}
}

// Router собирает роуты для одного слушателя. ingress определяет источник
// (LocalIngress для сокета, RemoteIngress для TCP).
func (h *HTTPHandler) Router(ingress func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(ingress)

		r.Post("/v1/commands", h.Submit)
		r.Post("/v1/commands/extract", h.Extract)
		r.Get("/v1/actions", h.Actions)
		r.Get("/v1/audit", h.Audit)

		r.Get("/v1/elevation", h.Elevation)
		r.Post("/v1/elevation/request", localOnly(h.RequestElevation))
		r.Post("/v1/elevation/invalidate", localOnly(h.InvalidateElevation))
	})

	return r
}

// Submit - POST /v1/commands, тело - JSON команды.
func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	src, body, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	out := h.pipeline.SubmitRaw(r.Context(), src, body, nil)
	writeJSON(w, statusFor(out), out)
}

// Extract - POST /v1/commands/extract, тело - свободный текст ответа модели.
func (h *HTTPHandler) Extract(w http.ResponseWriter, r *http.Request) {
	src, body, ok := h.readRequest(w, r)
	if !ok {
		return
	}
	out := h.pipeline.SubmitText(r.Context(), src, string(body), nil)
	writeJSON(w, statusFor(out), out)
}

func (h *HTTPHandler) Actions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Catalog().List())
}

func (h *HTTPHandler) Audit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Trail().Snapshot())
}

type elevationView struct {
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
	State     string `json:"state"`
}

func (h *HTTPHandler) view() elevationView {
	return elevationView{
		Backend:   h.elev.Backend(),
		Available: h.elev.IsElevationAvailable(),
		State:     h.elev.State().String(),
	}
}

func (h *HTTPHandler) Elevation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view())
}

// RequestElevation может ждать диалог менеджера root на устройстве.
func (h *HTTPHandler) RequestElevation(w http.ResponseWriter, r *http.Request) {
	granted := h.elev.RequestElevation(r.Context())
	h.logger.Info("elevation requested", zap.Bool("granted", granted), zap.String("trace_id", extractTraceID(r.Context())))
	code := http.StatusOK
	if !granted {
		code = http.StatusForbidden
	}
	writeJSON(w, code, h.view())
}

func (h *HTTPHandler) InvalidateElevation(w http.ResponseWriter, r *http.Request) {
	h.elev.Invalidate()
	writeJSON(w, http.StatusOK, h.view())
}

func (h *HTTPHandler) readRequest(w http.ResponseWriter, r *http.Request) (domain.Source, []byte, bool) {
	src, ok := SourceFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "unknown ingress"})
		return "", nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return "", nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return "", nil, false
	}
	return src, body, true
}

// statusFor - HTTP-код для исхода. Тело всегда Outcome.
func statusFor(o domain.Outcome) int {
	switch o.Reason {
	case domain.ReasonNone:
		return http.StatusOK
	case domain.ReasonParseError:
		return http.StatusBadRequest
	case domain.ReasonPermissionDenied, domain.ReasonNotWhitelisted,
		domain.ReasonDeniedContent, domain.ReasonConfirmationDenied:
		return http.StatusForbidden
	case domain.ReasonConfirmationRequired:
		return http.StatusConflict
	case domain.ReasonTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

var _ ElevationControl = (*session.Session)(nil)
