package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGINE_BACKEND", "direct")
	t.Setenv("SERVER_HTTP_ADDR", ":9999")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "direct", cfg.Engine.Backend)
	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
	assert.Equal(t, 15*time.Second, cfg.Engine.ExecTimeout)
	assert.Equal(t, 100, cfg.Engine.AuditCapacity)
	assert.NotEmpty(t, cfg.Targets.ReadPaths)
	assert.True(t, cfg.Engine.DefaultFlags["local_ai_control"])
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
engine:
  exec_timeout: 3s
  extra_denylist: ["pm uninstall"]
targets:
  read_paths: ["/sdcard/"]
logger:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Engine.ExecTimeout)
	assert.Equal(t, []string{"pm uninstall"}, cfg.Engine.ExtraDenylist)
	assert.Equal(t, []string{"/sdcard/"}, cfg.Targets.ReadPaths)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoadKeyResourcePrefersEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	assert.Equal(t, []byte("from-file"), loadKeyResource(path, "ROOTGW_TEST_KEY"))
	t.Setenv("ROOTGW_TEST_KEY", "from-env")
	assert.Equal(t, []byte("from-env"), loadKeyResource(path, "ROOTGW_TEST_KEY"))
	assert.Nil(t, loadKeyResource("", "ROOTGW_MISSING_KEY"))
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "debug", Format: "json"})
	assert.NoError(t, err)
	_, err = NewLogger(LoggerConfig{Level: "info", Format: "auto"})
	assert.NoError(t, err)
	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
	_, err = NewLogger(LoggerConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestApprovalChannel(t *testing.T) {
	assert.Equal(t, "rootgw:approvals:execution:abc", ApprovalChannel("abc"))
}
