package policy

import (
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// MemoFlags - in-memory кэш фич-флагов. Горячий путь читает только память,
// синхронизацию с Redis делает FlagManager в engine.
type MemoFlags struct {
	mu    sync.RWMutex
	flags map[string]bool

	logger *zap.Logger
}

func NewMemoFlags(logger *zap.Logger) *MemoFlags {
	return &MemoFlags{
		flags:  make(map[string]bool),
		logger: logger.Named("flags"),
	}
}

// Enabled - отсутствующий флаг выключен.
func (m *MemoFlags) Enabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[name]
}

func (m *MemoFlags) Set(name string, on bool) {
	m.mu.Lock()
	prev, known := m.flags[name]
	m.flags[name] = on
	m.mu.Unlock()

	if !known || prev != on {
		m.logger.Info("feature flag changed", zap.String("flag", name), zap.Bool("enabled", on))
	}
}

// Replace атомарно подменяет весь набор (холодная загрузка из хранилища).
func (m *MemoFlags) Replace(raw map[string]string) {
	next := make(map[string]bool, len(raw))
	for k, v := range raw {
		on, err := strconv.ParseBool(v)
		if err != nil {
			m.logger.Warn("ignoring malformed flag value", zap.String("flag", k), zap.String("value", v))
			continue
		}
		next[k] = on
	}

	m.mu.Lock()
	m.flags = next
	m.mu.Unlock()

	m.logger.Info("flag cache refreshed", zap.Int("count", len(next)))
}

func (m *MemoFlags) All() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}
