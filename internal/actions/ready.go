package actions

import (
	"github.com/xela07ax/rootgw/internal/domain"
)

// Prepared - действие с проверенными параметрами и готовой командной строкой.
type Prepared struct {
	Spec        *Spec
	Params      TypedParams
	CommandLine string
}

func (p Prepared) IsHighRisk() bool { return p.Spec != nil && p.Spec.Risk == domain.RiskHigh }

// Pending - High-risk действие, которое ждет решения оператора.
// Получить из него Ready можно только через Confirm.
type Pending struct {
	prepared Prepared
}

func (p Pending) Prepared() Prepared { return p.prepared }

// Ready - действие, которое разрешено исполнить. Конструкторы ниже -
// единственный путь к нему, поэтому High-risk без подтверждения не исполняется.
type Ready struct {
	prepared  Prepared
	confirmed bool
}

func (r Ready) Prepared() Prepared { return r.prepared }
func (r Ready) Confirmed() bool    { return r.confirmed }

// Normal пропускает обычное действие. Для High-risk возвращает ConfirmationRequired.
func Normal(p Prepared) (Ready, error) {
	if p.IsHighRisk() {
		return Ready{}, domain.Reject(domain.ReasonConfirmationRequired, "action %q is high risk", p.Spec.ID)
	}
	return Ready{prepared: p}, nil
}

func RequireConfirmation(p Prepared) Pending { return Pending{prepared: p} }

// Confirm превращает решение оператора в Ready. Все, кроме Confirmed, - отказ.
func Confirm(p Pending, d domain.Decision) (Ready, error) {
	switch d {
	case domain.DecisionConfirmed:
		return Ready{prepared: p.prepared, confirmed: true}, nil
	case domain.DecisionTimedOut:
		return Ready{}, domain.Reject(domain.ReasonConfirmationDenied, "timed out")
	default:
		return Ready{}, domain.Reject(domain.ReasonConfirmationDenied, "operator declined %q", p.prepared.Spec.ID)
	}
}
