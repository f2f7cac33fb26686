package risk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/risk"
)

func TestContainsDeniedContent(t *testing.T) {
	a := risk.NewAnalyzer([]string{"  Reboot -p ", ""}, zap.NewNop())

	tests := []struct {
		name     string
		params   domain.Params
		fragment string
		found    bool
	}{
		{"classic", domain.Params{"text": domain.String("hello; rm -rf /")}, "rm -rf", true},
		{"case insensitive", domain.Params{"text": domain.String("RM -RF /data")}, "rm -rf", true},
		{"block device", domain.Params{"path": domain.String("/dev/block/mmcblk0")}, "/dev/block", true},
		{"fork bomb", domain.Params{"text": domain.String(":(){ :|:& };:")}, ":(){", true},
		{"selinux", domain.Params{"cmd": domain.String("setenforce 0")}, "setenforce 0", true},
		{"extra from config", domain.Params{"text": domain.String("reboot -p now")}, "reboot -p", true},
		{"benign", domain.Params{"text": domain.String("hello world"), "state": domain.Bool(true)}, "", false},
		{"numbers", domain.Params{"level": domain.Int(7)}, "", false},
		{"empty", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fragment, found := a.ContainsDeniedContent(tt.params)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.fragment, fragment)
		})
	}
}

// Подстрочный поиск перекрывает безобидный текст: известное ограничение.
func TestDenylistOverblocks(t *testing.T) {
	a := risk.NewAnalyzer(nil, zap.NewNop())
	_, found := a.ContainsDeniedContent(domain.Params{"text": domain.String("see the fastboot docs")})
	assert.True(t, found)
}

func TestPatternsDeduplicated(t *testing.T) {
	a := risk.NewAnalyzer([]string{"RM -RF"}, zap.NewNop())
	assert.Len(t, a.Patterns(), len(risk.DefaultDenylist))
}
