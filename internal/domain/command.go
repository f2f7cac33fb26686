package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Source - откуда пришла команда. От него зависит, какой флаг проверяется на входе.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// RiskTier - уровень риска действия из статической таблицы.
type RiskTier string

const (
	RiskNormal RiskTier = "normal"
	RiskHigh   RiskTier = "high"
)

// Params - плоский набор скалярных параметров команды.
type Params map[string]Value

// Get возвращает значение или невалидный Value, если ключа нет.
func (p Params) Get(key string) Value {
	if p == nil {
		return Value{}
	}
	return p[key]
}

func (p Params) Equal(o Params) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

const summaryValueLimit = 64

// Summary - стабильное (сортированное) представление "k=v k=v" для аудита.
// Длинные значения обрезаются.
func (p Params) Summary() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		val := p[k].AsString("")
		if len(val) > summaryValueLimit {
			// Режем по границе руны
			n := summaryValueLimit
			for n > 0 && !utf8.RuneStart(val[n]) {
				n--
			}
			val = val[:n] + "..."
		}
		fmt.Fprintf(&b, "%s=%s", k, val)
	}
	return b.String()
}

// Command - структурированный запрос агента на выполнение одного действия.
type Command struct {
	Action            string
	Params            Params
	IssuedAt          time.Time
	RequiresElevation bool
	Verify            string
}

func (c Command) Equal(o Command) bool {
	return c.Action == o.Action &&
		c.Params.Equal(o.Params) &&
		c.IssuedAt.Equal(o.IssuedAt) &&
		c.RequiresElevation == o.RequiresElevation &&
		c.Verify == o.Verify
}
