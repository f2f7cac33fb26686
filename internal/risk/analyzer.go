// Package risk - контентный фильтр параметров команды.
//
// Это эшелонированная защита, а не песочница: основную гарантию дают шаблоны
// командных строк в actions. Подстрочный поиск может как перекрыть безобидный
// текст, так и пропустить замаскированный фрагмент.
package risk

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/domain"
)

// DefaultDenylist - опасные фрагменты shell. Сравнение без учета регистра.
var DefaultDenylist = []string{
	// Разрушение файловой системы
	"rm -rf",
	"rm -fr",
	"rm -r /",
	"rm -f /",
	"mkfs",
	"format /",
	"wipe data",
	"wipe cache",
	// Запись в блочные устройства
	"dd if=",
	"of=/dev/",
	"/dev/block",
	"> /dev/",
	"flash_image",
	"fastboot",
	// Расширение прав
	"chmod 777",
	"chmod -r 777",
	"chmod +s",
	"chown -r",
	"setenforce 0",
	"mount -o remount,rw",
	// Форк-бомба
	":(){",
	":|:&",
}

type Analyzer struct {
	patterns []string
	logger   *zap.Logger
}

// NewAnalyzer собирает фильтр из встроенного списка и дополнительных фрагментов из конфига.
func NewAnalyzer(extra []string, logger *zap.Logger) *Analyzer {
	seen := make(map[string]struct{})
	patterns := make([]string, 0, len(DefaultDenylist)+len(extra))
	for _, p := range append(append([]string{}, DefaultDenylist...), extra...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}
	return &Analyzer{patterns: patterns, logger: logger.Named("analyzer")}
}

// ContainsDeniedContent сканирует строковое представление каждого параметра.
// Возвращает первый найденный фрагмент; ключи обходятся в порядке сортировки,
// чтобы ответ был детерминирован.
func (a *Analyzer) ContainsDeniedContent(params domain.Params) (string, bool) {
	if len(params) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		// Ключ тоже попадает в скан: он мог прийти из свободного текста
		text := strings.ToLower(k + "=" + params[k].AsString(""))
		for _, p := range a.patterns {
			if strings.Contains(text, p) {
				a.logger.Warn("DENIED CONTENT DETECTED",
					zap.String("param", k),
					zap.String("fragment", p),
				)
				return p, true
			}
		}
	}
	return "", false
}

func (a *Analyzer) Patterns() []string {
	out := make([]string, len(a.patterns))
	copy(out, a.patterns)
	return out
}
