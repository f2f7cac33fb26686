package command

import (
	"github.com/xela07ax/rootgw/internal/domain"
)

const (
	maxFreeTextLen = 64 << 10
	// maxExtractAttempts ограничивает число разборов: каждый стоит O(длины объекта).
	maxExtractAttempts = 64
)

// ExtractFromFreeText ищет в ответе модели первый объект {...} с полем action.
// Кандидаты перебираются в порядке открывающих скобок, но не больше
// maxExtractAttempts.
//
// Скобки считаются по сырым байтам без учета строковых литералов: фигурная
// скобка внутри значения параметра ломает извлечение. Известное ограничение.
func ExtractFromFreeText(text string) (domain.Command, bool) {
	if len(text) > maxFreeTextLen {
		text = text[:maxFreeTextLen]
	}
	closers := matchBraces(text)

	attempts := 0
	for start := 0; start < len(text) && attempts < maxExtractAttempts; start++ {
		end := closers[start]
		if end <= 0 {
			continue
		}
		attempts++
		cmd, err := Parse([]byte(text[start : end+1]))
		if err == nil {
			return cmd, true
		}
	}
	return domain.Command{}, false
}

// matchBraces за один проход сопоставляет каждой '{' индекс ее закрывающей '}'.
// Для остальных позиций и незакрытых скобок значение 0.
func matchBraces(text string) []int {
	closers := make([]int, len(text))
	var open []int
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			open = append(open, i)
		case '}':
			if n := len(open); n > 0 {
				closers[open[n-1]] = i
				open = open[:n-1]
			}
		}
	}
	return closers
}
