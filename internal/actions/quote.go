package actions

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// quote экранирует пользовательский токен для POSIX sh (mksh на Android совместим).
// Сырые параметры никогда не попадают в командную строку без quote или строгого паттерна.
func quote(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("%w: cannot quote %q: %v", ErrInvalidParam, s, err)
	}
	return q, nil
}

// line собирает командную строку: строковые аргументы проходят через quote,
// числа форматируются как есть.
func line(cmd string, args ...interface{}) (string, error) {
	var b strings.Builder
	b.WriteString(cmd)
	for _, a := range args {
		b.WriteByte(' ')
		switch v := a.(type) {
		case string:
			q, err := quote(v)
			if err != nil {
				return "", err
			}
			b.WriteString(q)
		case int64:
			fmt.Fprintf(&b, "%d", v)
		case int:
			fmt.Fprintf(&b, "%d", v)
		default:
			return "", fmt.Errorf("%w: unsupported argument type %T", ErrInvariantViolation, a)
		}
	}
	return b.String(), nil
}
