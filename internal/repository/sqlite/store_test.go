package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/rootgw/internal/audit"
	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/repository/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(base time.Time) []audit.Entry {
	return []audit.Entry{
		{ID: "e1", TraceID: "t1", At: base, Action: "wifi_on", Succeeded: true, Source: domain.SourceLocal, Stage: "delivered", Outcome: "ok"},
		{ID: "e2", TraceID: "t2", At: base.Add(time.Second), Action: "reboot", Source: domain.SourceRemote, Reason: domain.ReasonConfirmationRequired, Stage: "content_checked"},
		{ID: "e3", TraceID: "t3", At: base.Add(2 * time.Second), Action: "wifi_on", Source: domain.SourceRemote, Reason: domain.ReasonPermissionDenied, Stage: "received"},
	}
}

func TestWriteAndFetchNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.WriteBatch(ctx, seed(base)))

	got, err := s.FetchLogs(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "e3", got[0].ID)
	assert.Equal(t, "e1", got[2].ID)

	assert.True(t, got[2].Succeeded)
	assert.Equal(t, domain.SourceLocal, got[2].Source)
	assert.Equal(t, "delivered", got[2].Stage)
	assert.True(t, base.Equal(got[2].At))
	assert.Equal(t, domain.ReasonPermissionDenied, got[0].Reason)
}

func TestWriteBatchIgnoresDuplicates(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	batch := seed(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	require.NoError(t, s.WriteBatch(ctx, batch))
	require.NoError(t, s.WriteBatch(ctx, batch))

	got, err := s.FetchLogs(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestFetchLogsFilters(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteBatch(ctx, seed(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))))

	tests := []struct {
		name   string
		filter audit.Filter
		ids    []string
	}{
		{"by action", audit.Filter{Action: "wifi_on"}, []string{"e3", "e1"}},
		{"by status", audit.Filter{Status: domain.StatusFail}, []string{"e3", "e2"}},
		{"by reason", audit.Filter{Reason: domain.ReasonConfirmationRequired}, []string{"e2"}},
		{"by source and action", audit.Filter{Source: domain.SourceRemote, Action: "wifi_on"}, []string{"e3"}},
		{"limit", audit.Filter{Limit: 1}, []string{"e3"}},
		{"no match", audit.Filter{Action: "reboot", Status: domain.StatusSuccess}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FetchLogs(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	s, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteBatch(ctx, seed(time.Now().UTC())))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FetchLogs(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := sqlite.Open("")
	assert.Error(t, err)
}
