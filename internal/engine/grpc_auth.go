package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/infra/auth"
)

// UnaryAuthInterceptor проверяет JWT в метаданных вызова. gRPC слушает только
// TCP, поэтому каждый вызов считается удаленным.
func UnaryAuthInterceptor(v auth.TokenValidator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	log := logger.Named("grpc-auth")
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
		}

		// в gRPC заголовки приходят в нижнем регистре
		tokens := md.Get("authorization")
		if len(tokens) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing access token")
		}

		claims, err := v.VerifyToken(tokens[0])
		if err != nil {
			log.Warn("auth failure", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Errorf(codes.Unauthenticated, "invalid access token")
		}
		if !claims.HasScope(domain.ScopeCloudAI) {
			log.Warn("scope missing", zap.String("user_id", claims.UserID), zap.String("method", info.FullMethod))
			return nil, status.Errorf(codes.PermissionDenied, "token lacks scope %q", domain.ScopeCloudAI)
		}

		traceID := uuid.New().String()
		if ids := md.Get("x-trace-id"); len(ids) > 0 && ids[0] != "" && len(ids[0]) <= 128 {
			traceID = ids[0]
		}

		ctx = auth.WithClaims(ctx, claims)
		ctx = WithSource(ctx, domain.SourceRemote)
		ctx = WithTraceID(ctx, traceID)
		return handler(ctx, req)
	}
}
