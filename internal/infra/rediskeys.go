package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "rootgw"
)

// Ключи (состояние)
const (
	RedisKeyFlags = RedisNamespace + ":flags" // hash: имя флага -> "true"/"false"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanFlags - изменения фич-флагов, payload "имя:on|off".
	RedisChanFlags = RedisNamespace + ":flags-signal"
	// RedisChanApprovalPrefix - решения оператора по конкретной команде (HITL).
	RedisChanApprovalPrefix = RedisNamespace + ":approvals:execution:"
)

// ApprovalChannel - канал, в котором шлюз ждет решение по executionID.
func ApprovalChannel(executionID string) string {
	return RedisChanApprovalPrefix + executionID
}

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
