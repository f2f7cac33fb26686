package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind - тип скалярного значения параметра команды.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindBool
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	default:
		return "invalid"
	}
}

var ErrNonScalar = errors.New("value is not a scalar")

// Value - закрытое объединение {String, Int, Bool, Float}.
// Нулевое значение невалидно, все аксессоры на нем возвращают default.
type Value struct {
	kind Kind
	s    string
	i    int64
	b    bool
	f    float64
}

func String(s string) Value   { return Value{kind: KindString, s: s} }
func Int(i int64) Value       { return Value{kind: KindInt, i: i} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Float(f float64) Value   { return Value{kind: KindFloat, f: f} }
func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsString никогда не падает: числа и bool форматируются.
func (v Value) AsString(def string) string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return def
	}
}

func (v Value) AsInt(def int64) int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f <= math.MaxInt64 {
			return int64(v.f)
		}
	case KindString:
		if n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil && f == math.Trunc(f) {
			return int64(f)
		}
	}
	return def
}

// AsBool понимает типичные ответы модели: "on"/"off", "yes"/"no", "enable"/"disable", 1/0.
func (v Value) AsBool(def bool) bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		switch v.i {
		case 0:
			return false
		case 1:
			return true
		}
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.s)) {
		case "true", "on", "1", "yes", "enable", "enabled":
			return true
		case "false", "off", "0", "no", "disable", "disabled":
			return false
		}
	}
	return def
}

func (v Value) AsFloat(def float64) float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.i)
	case KindString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return f
		}
	}
	return def
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindBool:
		return v.b == o.b
	case KindFloat:
		return v.f == o.f
	}
	return true
}

func (v Value) String() string { return v.AsString("") }

// MarshalJSON пишет Float всегда с дробной частью или экспонентой,
// чтобы при обратном разборе значение снова стало Float.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("value: unsupported float %v", v.f)
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	default:
		return nil, errors.New("value: invalid kind")
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf приводит результат json-декодирования к Value.
// Вложенные объекты, массивы и null не допускаются.
func ValueOf(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := t.Int64(); err == nil {
				return Int(n), nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: bad number %q: %w", s, err)
		}
		return Float(f), nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return Int(int64(t)), nil
		}
		return Float(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrNonScalar, raw)
	}
}
