package engine

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/infra/auth"
)

const sourceKey ctxKey = "source"

// Источник определяется слушателем, через который пришел запрос, а не телом команды.
func WithSource(ctx context.Context, src domain.Source) context.Context {
	return context.WithValue(ctx, sourceKey, src)
}

func SourceFrom(ctx context.Context) (domain.Source, bool) {
	src, ok := ctx.Value(sourceKey).(domain.Source)
	return src, ok && src != ""
}

// LocalIngress помечает запросы с unix-сокета. Доступ к сокету ограничен правами файла.
func LocalIngress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithSource(r.Context(), domain.SourceLocal)))
	})
}

// RemoteIngress требует JWT со скоупом cloud_ai и помечает запрос как Remote.
func RemoteIngress(v auth.TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	authMW := auth.NewMiddleware(v, domain.ScopeCloudAI, logger.Named("ingress"))
	return func(next http.Handler) http.Handler {
		return authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithSource(r.Context(), domain.SourceRemote)))
		}))
	}
}

// localOnly закрывает управление сессией от удаленных агентов.
func localOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src, _ := SourceFrom(r.Context()); src != domain.SourceLocal {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "local ingress only"})
			return
		}
		next(w, r)
	}
}
