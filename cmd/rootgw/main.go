package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/xela07ax/rootgw/internal/actions"
	"github.com/xela07ax/rootgw/internal/approval"
	"github.com/xela07ax/rootgw/internal/audit"
	"github.com/xela07ax/rootgw/internal/engine"
	"github.com/xela07ax/rootgw/internal/infra"
	"github.com/xela07ax/rootgw/internal/infra/auth"
	"github.com/xela07ax/rootgw/internal/policy"
	"github.com/xela07ax/rootgw/internal/repository/postgres"
	"github.com/xela07ax/rootgw/internal/repository/sqlite"
	"github.com/xela07ax/rootgw/internal/risk"
	"github.com/xela07ax/rootgw/internal/session"
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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("rootgw stopped with error", zap.Error(err))
	}
	logger.Info("rootgw exited properly")
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст живет до SIGINT/SIGTERM и останавливает фоновых слушателей
	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// 1. Привилегированная сессия + надежность
	backend, ok := session.BackendByName(cfg.Engine.Backend)
	if !ok {
		return fmt.Errorf("unknown elevation backend %q", cfg.Engine.Backend)
	}
	sess := session.New(backend, session.Config{ProbeTimeout: cfg.Engine.ProbeTimeout}, logger)
	executor := engine.NewProtectedExecutor(sess, backend.Name(), engine.ReliabilityConfig{
		RateLimit:          cfg.Engine.RateLimit,
		RateBurst:          cfg.Engine.RateBurst,
		CBMaxRequests:      cfg.Engine.CBMaxRequests,
		CBInterval:         cfg.Engine.CBInterval,
		CBTimeout:          cfg.Engine.CBTimeout,
		CBFailureThreshold: cfg.Engine.CBFailureThreshold,
	}, metrics, logger)

	// 2. Control Plane: флаги из Redis, без Redis работаем на дефолтах
	flags := policy.NewMemoFlags(logger)
	rdb := connectRedis(appCtx, cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
		fm := engine.NewFlagManager(rdb, flags, cfg.Engine.DefaultFlags, logger)
		if err := fm.Init(appCtx); err != nil {
			logger.Warn("flags sync failed, running on defaults", zap.Error(err))
		}
		go fm.Listen(appCtx)
	} else {
		for name, on := range cfg.Engine.DefaultFlags {
			flags.Set(name, on)
		}
	}

	// 3. Журнал: Postgres, если настроен, иначе SQLite на устройстве
	var (
		sink audit.StorageInterface
		pg   *postgres.Store
	)
	if cfg.Database.URL != "" {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return err
		}
		store, err := postgres.NewStore(appCtx, cfg.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		sink, pg = store, store
	} else {
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		sink = store
	}
	agentFS := audit.NewAgentFS(sink, audit.AgentFSConfig{
		BufferSize:    cfg.Engine.AuditBufferSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
	}, logger)
	agentFS.Start()
	go reportAuditFill(appCtx, agentFS, metrics)

	// 4. Подтверждение High-действий оператором (нужны и Postgres, и Redis)
	var confirmer approval.Confirmer
	if pg != nil && rdb != nil {
		confirmer = approval.NewHITLConfirmer(pg, approval.NewRedisBus(rdb), cfg.Engine.ConfirmTimeout, logger)
	} else {
		logger.Warn("no confirmation channel, high-risk actions will be rejected")
	}

	// 5. Ядро
	pipeline, err := engine.NewPipeline(engine.Deps{
		Gate:        policy.NewFlagEnforcer(flags),
		Catalog:     actions.MustDefault(cfg.Targets),
		Analyzer:    risk.NewAnalyzer(cfg.Engine.ExtraDenylist, logger),
		Confirmer:   confirmer,
		Elevation:   sess,
		Executor:    executor,
		Trail:       audit.NewTrail(audit.NewRing(cfg.Engine.AuditCapacity), agentFS),
		Metrics:     metrics,
		Logger:      logger,
		ExecTimeout: cfg.Engine.ExecTimeout,
	})
	if err != nil {
		return err
	}

	// На Android это покажет диалог менеджера root; ждать его не нужно
	go func() {
		granted := sess.RequestElevation(appCtx)
		logger.Info("initial elevation probe finished", zap.Bool("granted", granted), zap.Stringer("state", sess.State()))
	}()

	// 6. Ingress
	api := engine.NewHTTPHandler(pipeline, sess, logger)
	errCh := make(chan error, 4)
	var servers []*http.Server

	localSrv := newHTTPServer(cfg.Server, api.Router(engine.LocalIngress))
	lis, err := listenUnix(cfg.Server.UnixSocket)
	if err != nil {
		return err
	}
	servers = append(servers, localSrv)
	go serveHTTP(localSrv, lis, errCh)
	logger.Info("local ingress started", zap.String("socket", cfg.Server.UnixSocket))

	var grpcSrv *grpc.Server
	if validator, err := newValidator(cfg.Auth); err != nil {
		logger.Warn("remote ingress disabled", zap.Error(err))
	} else {
		remoteSrv := newHTTPServer(cfg.Server, api.Router(engine.RemoteIngress(validator, logger)))
		remoteSrv.Addr = cfg.Server.HTTPAddr
		servers = append(servers, remoteSrv)
		go serveHTTP(remoteSrv, nil, errCh)
		logger.Info("remote ingress started", zap.String("addr", remoteSrv.Addr))

		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryAuthInterceptor(validator, logger)))
		engine.RegisterCommandServiceServer(grpcSrv, engine.NewGRPCGatewayServer(pipeline))
		glis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			if err := grpcSrv.Serve(glis); err != nil {
				errCh <- fmt.Errorf("serve grpc: %w", err)
			}
		}()
		logger.Info("gRPC ingress started", zap.String("addr", cfg.Server.GRPCAddr))
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
	servers = append(servers, metricsSrv)
	go serveHTTP(metricsSrv, nil, errCh)

	// 7. Graceful Shutdown
	var runErr error
	select {
	case <-appCtx.Done():
		logger.Info("rootgw stopping...")
	case runErr = <-errCh:
		logger.Error("listener failed, stopping", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown failed", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	// После остановки ingress новых записей нет, дописываем остаток
	agentFS.Stop()
	os.Remove(cfg.Server.UnixSocket)
	return runErr
}

func connectRedis(ctx context.Context, cfg infra.RedisConfig, logger *zap.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, flags are local only", zap.String("addr", cfg.Addr), zap.Error(err))
		rdb.Close()
		return nil
	}
	return rdb
}

func newValidator(cfg infra.AuthConfig) (*auth.BaseValidator, error) {
	if len(cfg.PublicKey) == 0 {
		return nil, errors.New("auth public key is not configured")
	}
	pub, err := auth.ParseRSAPublicKey(cfg.PublicKey)
	if err != nil {
		return nil, err
	}
	return auth.NewBaseValidator(pub), nil
}

func newHTTPServer(cfg infra.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// listenUnix убирает сокет от прошлого запуска; доступ только владельцу.
// Сокет создается сразу с правами 0600: umask на время Listen.
func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	old := syscall.Umask(0o177)
	lis, err := net.Listen("unix", path)
	syscall.Umask(old)
	if err != nil {
		return nil, fmt.Errorf("listen unix: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		lis.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return lis, nil
}

func serveHTTP(srv *http.Server, lis net.Listener, errCh chan<- error) {
	var err error
	if lis != nil {
		err = srv.Serve(lis)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
	}
}

func reportAuditFill(ctx context.Context, fs *audit.AgentFS, m *engine.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.AuditBufferFill.Set(fs.Utilization())
		}
	}
}
