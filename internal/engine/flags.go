package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/infra"
	"github.com/xela07ax/rootgw/internal/policy"
)

// FlagManager держит MemoFlags в согласии с hash флагов в Redis:
// холодная загрузка, засев по умолчанию и подписка на изменения.
type FlagManager struct {
	rdb      *redis.Client
	flags    *policy.MemoFlags
	defaults map[string]bool
	logger   *zap.Logger
}

func NewFlagManager(rdb *redis.Client, flags *policy.MemoFlags, defaults map[string]bool, logger *zap.Logger) *FlagManager {
	return &FlagManager{
		rdb:      rdb,
		flags:    flags,
		defaults: defaults,
		logger:   logger.With(zap.String("mod", "flags")),
	}
}

// Init засевает Redis и загружает флаги. Если Redis недоступен,
// кэш остается на значениях по умолчанию.
func (m *FlagManager) Init(ctx context.Context) error {
	m.applyDefaults()

	if err := WarmupFlags(ctx, m.rdb, m.logger, m.defaults, infra.RedisKeyFlags, infra.GetWarmupLockKey("flags")); err != nil {
		m.logger.Warn("flag warm-up failed", zap.Error(err))
	}

	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	).Do(func() error { return m.Sync(ctx) })
	if err != nil {
		return fmt.Errorf("flags init: %w", err)
	}
	return nil
}

// Sync перечитывает весь hash. Пустой hash означает значения по умолчанию.
func (m *FlagManager) Sync(ctx context.Context) error {
	raw, err := m.rdb.HGetAll(ctx, infra.RedisKeyFlags).Result()
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		m.applyDefaults()
		return nil
	}
	m.flags.Replace(raw)
	return nil
}

// Listen блокируется до отмены ctx.
func (m *FlagManager) Listen(ctx context.Context) {
	m.logger.Info("flag listener started", zap.String("chan", infra.RedisChanFlags))
	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanFlags,
		func() error { return m.Sync(ctx) },
		m.flags.Set,
	)
}

func (m *FlagManager) applyDefaults() {
	raw := make(map[string]string, len(m.defaults))
	for name, on := range m.defaults {
		raw[name] = strconv.FormatBool(on)
	}
	m.flags.Replace(raw)
}

// StoreFlag записывает флаг и оповещает шлюзы. Используется консолью.
func StoreFlag(ctx context.Context, rdb *redis.Client, name string, on bool) error {
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, infra.RedisKeyFlags, name, strconv.FormatBool(on))
	pipe.Publish(ctx, infra.RedisChanFlags, formatSignal(name, on))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store flag %s: %w", name, err)
	}
	return nil
}

// LoadFlags читает hash флагов как есть.
func LoadFlags(ctx context.Context, rdb *redis.Client) (map[string]bool, error) {
	raw, err := rdb.HGetAll(ctx, infra.RedisKeyFlags).Result()
	if err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}
	out := make(map[string]bool, len(raw))
	for k, v := range raw {
		if on, err := strconv.ParseBool(v); err == nil {
			out[k] = on
		}
	}
	return out, nil
}
