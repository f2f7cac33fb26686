// Package actions содержит единственную статическую таблицу привилегированных
// действий: схема параметров, уровень риска и построитель командной строки.
// Белый список, классификация риска и диспетчеризация читают одну и ту же таблицу.
package actions

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/xela07ax/rootgw/internal/domain"
)

var (
	// ErrInvariantViolation - действие в белом списке без схемы или построителя.
	// Это ошибка программиста, а не ответ пользователю.
	ErrInvariantViolation = errors.New("actions: invariant violation")
	ErrTargetNotAllowed   = errors.New("actions: target not allowlisted")
	ErrInvalidParam       = errors.New("actions: invalid parameter")
)

type Category string

const (
	CategoryHardware Category = "hardware"
	CategoryAudio    Category = "audio_display"
	CategoryPower    Category = "power"
	CategoryApps     Category = "app_lifecycle"
	CategoryMemory   Category = "memory_performance"
	CategoryScreen   Category = "screen"
	CategoryInput    Category = "input"
	CategoryFiles    Category = "files_properties"
	CategoryNetwork  Category = "network"
)

// ParamSpec описывает один параметр действия и правила его проверки.
type ParamSpec struct {
	Name     string         `json:"name"`
	Kind     domain.Kind    `json:"-"`
	Required bool           `json:"required"`
	Default  domain.Value   `json:"-"`
	Enum     []string       `json:"enum,omitempty"`
	Min      int64          `json:"min,omitempty"`
	Max      int64          `json:"max,omitempty"` // диапазон проверяется, если Max > Min
	Pattern  *regexp.Regexp `json:"-"`
	MaxLen   int            `json:"max_len,omitempty"`
}

type BuildFunc func(p TypedParams) (string, error)

// GuardFunc проверяет цель действия по второму белому списку (пути, свойства).
type GuardFunc func(p TypedParams, t Targets) error

// Spec - строка таблицы действий. Все действия исполняются в root-сессии,
// поэтому отдельного признака повышения нет.
type Spec struct {
	ID          string
	Category    Category
	Risk        domain.RiskTier
	Description string
	Params      []ParamSpec
	Timeout     time.Duration // 0 - таймаут по умолчанию из конфига
	Guard       GuardFunc
	Build       BuildFunc
}

// TypedParams - параметры после приведения к типам схемы.
type TypedParams struct {
	values map[string]domain.Value
}

func (p TypedParams) Str(name string) string         { return p.values[name].AsString("") }
func (p TypedParams) Int(name string) int64          { return p.values[name].AsInt(0) }
func (p TypedParams) Bool(name string) bool          { return p.values[name].AsBool(false) }
func (p TypedParams) Float(name string) float64      { return p.values[name].AsFloat(0) }
func (p TypedParams) Has(name string) bool           { return p.values[name].IsValid() }
func (p TypedParams) Value(name string) domain.Value { return p.values[name] }

// Bind приводит сырые параметры к схеме. Отсутствующий или битый параметр -
// ParseError, а не паника.
func Bind(spec *Spec, raw domain.Params) (TypedParams, error) {
	out := TypedParams{values: make(map[string]domain.Value, len(spec.Params))}

	for _, ps := range spec.Params {
		v := raw.Get(ps.Name)
		if !v.IsValid() {
			if ps.Required {
				return TypedParams{}, domain.Reject(domain.ReasonParseError, "missing parameter %q", ps.Name)
			}
			if ps.Default.IsValid() {
				out.values[ps.Name] = ps.Default
			}
			continue
		}

		typed, err := coerce(ps, v)
		if err != nil {
			return TypedParams{}, domain.Reject(domain.ReasonParseError, "malformed parameter %q: %v", ps.Name, err)
		}
		out.values[ps.Name] = typed
	}
	return out, nil
}

func coerce(ps ParamSpec, v domain.Value) (domain.Value, error) {
	switch ps.Kind {
	case domain.KindString:
		s := v.AsString("")
		if s == "" {
			return domain.Value{}, fmt.Errorf("%w: empty", ErrInvalidParam)
		}
		if ps.MaxLen > 0 && len(s) > ps.MaxLen {
			return domain.Value{}, fmt.Errorf("%w: longer than %d", ErrInvalidParam, ps.MaxLen)
		}
		if len(ps.Enum) > 0 && !contains(ps.Enum, s) {
			return domain.Value{}, fmt.Errorf("%w: %q not in %v", ErrInvalidParam, s, ps.Enum)
		}
		if ps.Pattern != nil && !ps.Pattern.MatchString(s) {
			return domain.Value{}, fmt.Errorf("%w: %q has unexpected format", ErrInvalidParam, s)
		}
		return domain.String(s), nil

	case domain.KindInt:
		n := v.AsInt(math.MinInt64)
		if n == math.MinInt64 {
			return domain.Value{}, fmt.Errorf("%w: not an integer", ErrInvalidParam)
		}
		if ps.Max > ps.Min && (n < ps.Min || n > ps.Max) {
			return domain.Value{}, fmt.Errorf("%w: %d out of range [%d, %d]", ErrInvalidParam, n, ps.Min, ps.Max)
		}
		return domain.Int(n), nil

	case domain.KindBool:
		// Если результат зависит от default - значение не распознано
		if v.AsBool(true) != v.AsBool(false) {
			return domain.Value{}, fmt.Errorf("%w: not a boolean", ErrInvalidParam)
		}
		return domain.Bool(v.AsBool(false)), nil

	case domain.KindFloat:
		f := v.AsFloat(math.NaN())
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.Value{}, fmt.Errorf("%w: not a number", ErrInvalidParam)
		}
		return domain.Float(f), nil
	}
	return domain.Value{}, fmt.Errorf("%w: unsupported kind %s", ErrInvariantViolation, ps.Kind)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
