// Package policy решает, может ли источник команд вообще управлять устройством.
package policy

import (
	"context"

	"github.com/xela07ax/rootgw/internal/domain"
)

// Имена фич-флагов во внешнем хранилище.
const (
	FlagLocalAIControl = "local_ai_control"
	FlagCloudAIControl = "cloud_ai_control"
)

// FlagFor сопоставляет источник и флаг, который его открывает.
func FlagFor(src domain.Source) (string, bool) {
	switch src {
	case domain.SourceLocal:
		return FlagLocalAIControl, true
	case domain.SourceRemote:
		return FlagCloudAIControl, true
	}
	return "", false
}

type FlagReader interface {
	Enabled(name string) bool
}

type Enforcer interface {
	Authorize(ctx context.Context, src domain.Source) error
}

// FlagEnforcer - гейт по фич-флагу источника. Неизвестный источник или
// неизвестный флаг - запрет (Default Deny).
type FlagEnforcer struct {
	flags FlagReader
}

func NewFlagEnforcer(flags FlagReader) *FlagEnforcer {
	return &FlagEnforcer{flags: flags}
}

func (e *FlagEnforcer) Authorize(_ context.Context, src domain.Source) error {
	flag, ok := FlagFor(src)
	if !ok {
		return domain.Reject(domain.ReasonPermissionDenied, "unknown source %q", src)
	}
	if !e.flags.Enabled(flag) {
		return domain.Reject(domain.ReasonPermissionDenied, "feature %q is disabled", flag)
	}
	return nil
}
