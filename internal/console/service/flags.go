package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/engine"
	"github.com/xela07ax/rootgw/internal/policy"
)

// FlagStore - общий для всех шлюзов hash флагов.
type FlagStore interface {
	Load(ctx context.Context) (map[string]bool, error)
	Store(ctx context.Context, name string, on bool) error
}

type redisFlagStore struct {
	rdb *redis.Client
}

func NewRedisFlagStore(rdb *redis.Client) FlagStore { return &redisFlagStore{rdb: rdb} }

func (s *redisFlagStore) Load(ctx context.Context) (map[string]bool, error) {
	return engine.LoadFlags(ctx, s.rdb)
}

func (s *redisFlagStore) Store(ctx context.Context, name string, on bool) error {
	return engine.StoreFlag(ctx, s.rdb, name, on)
}

// KnownFlags - флаги, которые шлюз проверяет на входе.
var KnownFlags = []string{policy.FlagLocalAIControl, policy.FlagCloudAIControl}

var ErrUnknownFlag = errors.New("unknown feature flag")

type FlagService struct {
	store  FlagStore
	logger *zap.Logger
}

func NewFlagService(store FlagStore, logger *zap.Logger) *FlagService {
	return &FlagService{store: store, logger: logger.Named("flag-service")}
}

// List отдает все известные флаги; отсутствующий в hash считается выключенным.
func (s *FlagService) List(ctx context.Context) (map[string]bool, error) {
	stored, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(KnownFlags))
	for _, name := range KnownFlags {
		out[name] = stored[name]
	}
	return out, nil
}

func (s *FlagService) Set(ctx context.Context, name string, on bool, operator string) error {
	if !isKnownFlag(name) {
		return fmt.Errorf("%w: %q", ErrUnknownFlag, name)
	}
	if err := s.store.Store(ctx, name, on); err != nil {
		return err
	}
	s.logger.Warn("feature flag changed",
		zap.String("flag", name),
		zap.Bool("on", on),
		zap.String("operator", operator))
	return nil
}

func isKnownFlag(name string) bool {
	for _, f := range KnownFlags {
		if f == name {
			return true
		}
	}
	return false
}
