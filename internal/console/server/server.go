package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/console/handler"
	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/infra/auth"
)

// Handlers - обработчики бизнес-доменов консоли.
type Handlers struct {
	Auth      *handler.AuthHandler      // /auth/token
	Approvals *handler.ApprovalHandler  // /v1/approvals (HITL)
	Dashboard *handler.DashboardHandler // /api/v1/dashboard/stats
	Audit     *handler.AuditHandler     // /v1/audit
	Flags     *handler.FlagHandler      // /v1/flags
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка RS256 токенов операторов
	validator auth.TokenValidator
	h         Handlers
}

func NewConsoleServer(validator auth.TokenValidator, h Handlers, logger *zap.Logger) *ConsoleServer {
	s := &ConsoleServer{
		router:    chi.NewRouter(),
		logger:    logger.Named("console-api"),
		validator: validator,
		h:         h,
	}
	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Публичные
	r.Post("/auth/token", s.h.Auth.Login)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Только операторы
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, domain.ScopeOperator, s.logger))

		r.Get("/api/v1/dashboard/stats", s.h.Dashboard.GetStats)

		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.h.Approvals.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.h.Approvals.GetDetails)
				r.Post("/decide", s.h.Approvals.Decide) // Approve/Reject + Redis Publish
			})
		})

		r.Route("/v1/flags", func(r chi.Router) {
			r.Get("/", s.h.Flags.List)
			r.Put("/{name}", s.h.Flags.Set)
		})

		r.Get("/v1/audit", s.h.Audit.GetLogs)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
