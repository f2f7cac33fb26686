package actions

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/xela07ax/rootgw/internal/domain"
)

// Catalog - проиндексированная таблица действий плюс второй белый список целей.
type Catalog struct {
	specs   []Spec
	index   map[string]*Spec
	targets Targets
}

// New проверяет таблицу и строит индекс. Ошибка здесь - ошибка программиста.
func New(specs []Spec, targets Targets) (*Catalog, error) {
	c := &Catalog{
		specs:   make([]Spec, len(specs)),
		index:   make(map[string]*Spec, len(specs)),
		targets: targets,
	}
	copy(c.specs, specs)

	for i := range c.specs {
		s := &c.specs[i]
		if err := validateSpec(s); err != nil {
			return nil, err
		}
		if _, dup := c.index[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate action %q", ErrInvariantViolation, s.ID)
		}
		c.index[s.ID] = s
	}
	return c, nil
}

func validateSpec(s *Spec) error {
	if s.ID == "" {
		return fmt.Errorf("%w: action without id", ErrInvariantViolation)
	}
	if s.Build == nil {
		return fmt.Errorf("%w: action %q has no builder", ErrInvariantViolation, s.ID)
	}
	if s.Risk != domain.RiskNormal && s.Risk != domain.RiskHigh {
		return fmt.Errorf("%w: action %q has unknown risk tier %q", ErrInvariantViolation, s.ID, s.Risk)
	}
	if s.Category == CategoryFiles && s.Guard == nil {
		return fmt.Errorf("%w: action %q touches files or properties without a guard", ErrInvariantViolation, s.ID)
	}
	seen := make(map[string]struct{}, len(s.Params))
	for _, ps := range s.Params {
		if _, dup := seen[ps.Name]; dup {
			return fmt.Errorf("%w: action %q declares %q twice", ErrInvariantViolation, s.ID, ps.Name)
		}
		seen[ps.Name] = struct{}{}
		if ps.Kind == domain.KindInvalid {
			return fmt.Errorf("%w: action %q param %q has no kind", ErrInvariantViolation, s.ID, ps.Name)
		}
	}
	return nil
}

var defaultCatalog = MustDefault(DefaultTargets())

// MustDefault собирает каталог из встроенной таблицы. Паникует на битой таблице.
func MustDefault(targets Targets) *Catalog {
	c, err := New(table, targets)
	if err != nil {
		panic(err)
	}
	return c
}

// IsWhitelisted - чистая проверка по встроенной таблице, без побочных эффектов.
func IsWhitelisted(id string) bool { return defaultCatalog.IsWhitelisted(id) }

// RiskTier классифицирует действие. Неизвестное действие считается High.
func RiskTier(id string) domain.RiskTier { return defaultCatalog.RiskTier(id) }

func (c *Catalog) IsWhitelisted(id string) bool {
	_, ok := c.index[id]
	return ok
}

func (c *Catalog) RiskTier(id string) domain.RiskTier {
	if s, ok := c.index[id]; ok {
		return s.Risk
	}
	return domain.RiskHigh
}

func (c *Catalog) Lookup(id string) (*Spec, bool) {
	s, ok := c.index[id]
	return s, ok
}

func (c *Catalog) Len() int { return len(c.specs) }

func (c *Catalog) Targets() Targets { return c.targets }

// Suggest возвращает ближайшее известное действие для подсказки в отказе.
func (c *Catalog) Suggest(id string) (string, bool) {
	best, bestDist := "", -1
	for i := range c.specs {
		d := levenshtein.ComputeDistance(id, c.specs[i].ID)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c.specs[i].ID, d
		}
	}
	if best == "" || bestDist > len(best)/3 {
		return "", false
	}
	return best, true
}

// Prepare связывает параметры со схемой, проверяет цель и строит командную строку.
// Сама команда здесь не исполняется.
func (c *Catalog) Prepare(id string, params domain.Params) (Prepared, error) {
	spec, ok := c.index[id]
	if !ok {
		if hint, found := c.Suggest(id); found {
			return Prepared{}, domain.Reject(domain.ReasonNotWhitelisted, "unknown action %q (did you mean %q?)", id, hint)
		}
		return Prepared{}, domain.Reject(domain.ReasonNotWhitelisted, "unknown action %q", id)
	}

	typed, err := Bind(spec, params)
	if err != nil {
		return Prepared{}, err
	}

	if spec.Guard != nil {
		if err := spec.Guard(typed, c.targets); err != nil {
			if errors.Is(err, ErrTargetNotAllowed) {
				return Prepared{}, domain.Reject(domain.ReasonNotWhitelisted, "%v", err)
			}
			return Prepared{}, domain.Reject(domain.ReasonParseError, "%v", err)
		}
	}

	cmdline, err := spec.Build(typed)
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			return Prepared{}, err
		}
		return Prepared{}, domain.Reject(domain.ReasonParseError, "%s: %v", id, err)
	}
	if cmdline == "" {
		return Prepared{}, fmt.Errorf("%w: action %q built an empty command", ErrInvariantViolation, id)
	}

	return Prepared{Spec: spec, Params: typed, CommandLine: cmdline}, nil
}

// Descriptor - публичное описание действия для GET /v1/actions.
type Descriptor struct {
	ID          string          `json:"id"`
	Category    Category        `json:"category"`
	Risk        domain.RiskTier `json:"risk"`
	Description string          `json:"description"`
	Params      []ParamView     `json:"params"`
	Timeout     string          `json:"timeout,omitempty"`
}

type ParamView struct {
	ParamSpec
	Type    string `json:"type"`
	Default string `json:"default,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// List возвращает описания, отсортированные по категории и id.
func (c *Catalog) List() []Descriptor {
	out := make([]Descriptor, 0, len(c.specs))
	for i := range c.specs {
		s := &c.specs[i]
		d := Descriptor{
			ID:          s.ID,
			Category:    s.Category,
			Risk:        s.Risk,
			Description: s.Description,
			Params:      make([]ParamView, 0, len(s.Params)),
		}
		if s.Timeout > 0 {
			d.Timeout = s.Timeout.String()
		}
		for _, ps := range s.Params {
			v := ParamView{ParamSpec: ps, Type: ps.Kind.String(), Default: ps.Default.AsString("")}
			if ps.Pattern != nil {
				v.Pattern = ps.Pattern.String()
			}
			d.Params = append(d.Params, v)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out
}
