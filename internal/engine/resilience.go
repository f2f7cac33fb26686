package engine

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	resubscribeDelay = 5 * time.Second
	reconnectDelay   = 1 * time.Second
)

// ListenStateResilient - цикл "живучей" подписки на сигналы Redis вида "имя:on".
// При каждой успешной подписке вызывает onReconnect для полной синхронизации.
func ListenStateResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error,
	onMessage func(name string, on bool),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, resubscribeDelay) {
				return
			}
			continue
		}

		// Сигналы могли потеряться, пока подписки не было
		if err := onReconnect(); err != nil {
			logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop
				}
				name, on, valid := parseSignal(msg.Payload)
				if !valid {
					logger.Error("invalid signal format", zap.String("payload", msg.Payload))
					continue
				}
				onMessage(name, on)
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

// parseSignal разбирает "имя:on|off|true|false|1|0".
func parseSignal(payload string) (string, bool, bool) {
	i := strings.LastIndexByte(payload, ':')
	if i <= 0 || i == len(payload)-1 {
		return "", false, false
	}
	name := strings.TrimSpace(payload[:i])
	switch strings.ToLower(strings.TrimSpace(payload[i+1:])) {
	case "on", "true", "1":
		return name, true, name != ""
	case "off", "false", "0":
		return name, false, name != ""
	}
	return "", false, false
}

func formatSignal(name string, on bool) string {
	if on {
		return name + ":on"
	}
	return name + ":off"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
