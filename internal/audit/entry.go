package audit

import (
	"time"

	"github.com/xela07ax/rootgw/internal/domain"
)

// Entry - одна запись журнала на каждую команду, принятую или отклоненную.
type Entry struct {
	ID           string        `json:"id"`       // UUID записи
	TraceID      string        `json:"trace_id"` // Сквозной ID запроса
	At           time.Time     `json:"at"`
	Action       string        `json:"action"`
	ParamSummary string        `json:"param_summary"`
	Outcome      string        `json:"outcome"` // detail исхода
	Succeeded    bool          `json:"succeeded"`
	Source       domain.Source `json:"source"`
	Reason       domain.Reason `json:"reason,omitempty"`
	Stage        string        `json:"stage"`       // последнее пройденное состояние пайплайна
	DurationMs   int64         `json:"duration_ms"` // Время обработки
}

// Status - значение для колонки status в хранилищах.
func (e Entry) Status() domain.Status {
	if e.Succeeded {
		return domain.StatusSuccess
	}
	return domain.StatusFail
}

// Filter - выборка из долговременного журнала. Пустое поле не фильтрует.
type Filter struct {
	Action string
	Status domain.Status
	Reason domain.Reason
	Source domain.Source
	Limit  int
}

const (
	DefaultFetchLimit = 100
	MaxFetchLimit     = 1000
)

// EffectiveLimit ограничивает размер выборки.
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultFetchLimit
	case f.Limit > MaxFetchLimit:
		return MaxFetchLimit
	}
	return f.Limit
}
