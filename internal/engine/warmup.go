package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const warmupLockTTL = 30 * time.Second

// WarmupFlags засевает пустой hash флагов значениями по умолчанию.
// Существующие значения не трогаются: источник правды - Redis.
func WarmupFlags(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	defaults map[string]bool,
	redisKey string,
	lockKey string,
) error {
	if len(defaults) == 0 {
		return nil
	}

	// Распределенная блокировка (SetNX), чтобы засевал только один инстанс
	ok, err := rdb.SetNX(ctx, lockKey, "processing", warmupLockTTL).Result()
	if err != nil || !ok {
		return err
	}
	defer rdb.Del(context.WithoutCancel(ctx), lockKey)

	count, err := rdb.HLen(ctx, redisKey).Result()
	if err != nil {
		logger.Warn("could not check flag hash size, proceeding with warm-up",
			zap.String("key", redisKey), zap.Error(err))
		count = 0
	}
	if count > 0 {
		return nil
	}

	logger.Info("flag hash is empty, seeding defaults",
		zap.String("key", redisKey), zap.Int("count", len(defaults)))

	pipe := rdb.Pipeline()
	for name, on := range defaults {
		// HSetNX: соседний инстанс мог успеть записать флаг оператора
		pipe.HSetNX(ctx, redisKey, name, strconv.FormatBool(on))
	}
	_, err = pipe.Exec(ctx)
	return err
}
