package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/infra"
)

// RedisBus - решения приходят из консоли через Pub/Sub, канал на каждую команду.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus { return &RedisBus{rdb: rdb} }

func (b *RedisBus) Subscribe(ctx context.Context, executionID string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, infra.ApprovalChannel(executionID))
	// Receive дожидается подтверждения подписки от сервера
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("approval: subscribe failed: %w", err)
	}

	s := &redisSubscription{ps: ps, ch: make(chan domain.ApprovalStatus, 1)}
	go s.pump()
	return s, nil
}

// Publish отправляет решение ожидающему шлюзу.
func (b *RedisBus) Publish(ctx context.Context, executionID string, status domain.ApprovalStatus) error {
	return b.rdb.Publish(ctx, infra.ApprovalChannel(executionID), string(status)).Err()
}

type redisSubscription struct {
	ps *redis.PubSub
	ch chan domain.ApprovalStatus
}

func (s *redisSubscription) pump() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		status := domain.ApprovalStatus(strings.ToUpper(strings.TrimSpace(msg.Payload)))
		select {
		case s.ch <- status:
		default:
		}
	}
}

func (s *redisSubscription) Decisions() <-chan domain.ApprovalStatus { return s.ch }

func (s *redisSubscription) Close() error { return s.ps.Close() }
