package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/approval"
	"github.com/xela07ax/rootgw/internal/console/handler"
	"github.com/xela07ax/rootgw/internal/console/server"
	"github.com/xela07ax/rootgw/internal/console/service"
	"github.com/xela07ax/rootgw/internal/infra"
	"github.com/xela07ax/rootgw/internal/infra/auth"
	"github.com/xela07ax/rootgw/internal/repository/postgres"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Ресурсы: консоли нужны и Postgres, и Redis
	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required for the console")
	}
	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	initCtx, initCancel := context.WithTimeout(ctx, 5*time.Second)
	store, err := postgres.NewStore(initCtx, cfg.Database)
	initCancel()
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	// 2. Ключи: приватный подписывает токены, публичный их проверяет
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("auth private key", zap.Error(err))
	}
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("auth public key", zap.Error(err))
	}

	// 3. Dependency Injection
	handlers := server.Handlers{
		Auth:      handler.NewAuthHandler(service.NewAuthService(store, privKey)),
		Approvals: handler.NewApprovalHandler(service.NewApprovalService(store, approval.NewRedisBus(rdb), logger)),
		Dashboard: handler.NewDashboardHandler(store),
		Audit:     handler.NewAuditHandler(service.NewAuditService(store)),
		Flags:     handler.NewFlagHandler(service.NewFlagService(service.NewRedisFlagStore(rdb), logger)),
	}
	console := server.NewConsoleServer(auth.NewBaseValidator(pubKey), handlers, logger)

	srv := &http.Server{
		Addr:         cfg.Server.ConsoleAddr,
		Handler:      console,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("console listener failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("console shutdown failed", zap.Error(err))
	}
	logger.Info("console exited properly")
}
