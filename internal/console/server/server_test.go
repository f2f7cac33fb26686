package server_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/rootgw/internal/audit"
	"github.com/xela07ax/rootgw/internal/console/handler"
	"github.com/xela07ax/rootgw/internal/console/server"
	"github.com/xela07ax/rootgw/internal/console/service"
	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/policy"
)

type tokens struct{}

func (tokens) VerifyToken(token string) (*domain.CustomClaims, error) {
	switch token {
	case "Bearer operator":
		return &domain.CustomClaims{UserID: "op-1", Scopes: map[string]bool{domain.ScopeOperator: true}}, nil
	case "Bearer cloud":
		return &domain.CustomClaims{UserID: "agent", Scopes: map[string]bool{domain.ScopeCloudAI: true}}, nil
	}
	return nil, errors.New("invalid token")
}

type approvals struct {
	pending map[string]*domain.ApprovalRequest
	decided map[string]string // id -> reviewer
}

func (a *approvals) GetApprovalByID(_ context.Context, id string) (*domain.ApprovalRequest, error) {
	if app, ok := a.pending[id]; ok {
		return app, nil
	}
	return nil, domain.ErrApprovalNotFound
}

func (a *approvals) FindApprovals(context.Context, domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	out := make([]*domain.ApprovalRequest, 0, len(a.pending))
	for _, app := range a.pending {
		out = append(out, app)
	}
	return out, nil
}

func (a *approvals) UpdateApprovalStatus(_ context.Context, id string, _ domain.ApprovalStatus, reviewer, _ string) (string, error) {
	if _, done := a.decided[id]; done {
		return "", domain.ErrAlreadyProcessed
	}
	app, ok := a.pending[id]
	if !ok {
		return "", domain.ErrApprovalNotFound
	}
	a.decided[id] = reviewer
	return app.ExecutionID, nil
}

type bus struct{ sent []string }

func (b *bus) Publish(_ context.Context, executionID string, _ domain.ApprovalStatus) error {
	b.sent = append(b.sent, executionID)
	return nil
}

type flagStore struct{ m map[string]bool }

func (f *flagStore) Load(context.Context) (map[string]bool, error) { return f.m, nil }
func (f *flagStore) Store(_ context.Context, name string, on bool) error {
	f.m[name] = on
	return nil
}

type auditLogs struct{ last audit.Filter }

func (a *auditLogs) FetchLogs(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	a.last = f
	return []audit.Entry{{ID: "e1", Action: "reboot"}}, nil
}

type dashboard struct{}

func (dashboard) GetDashboard(context.Context) (*domain.Dashboard, error) {
	return &domain.Dashboard{Activity: domain.ActivityStats{TotalCommands: 7}}, nil
}

type users map[string]*domain.User

func (u users) GetUserByUsername(_ context.Context, name string) (*domain.User, error) {
	return u[name], nil
}

type fixture struct {
	srv   http.Handler
	apps  *approvals
	bus   *bus
	flags *flagStore
	audit *auditLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	f := &fixture{
		apps: &approvals{
			pending: map[string]*domain.ApprovalRequest{
				"a1": {ID: "a1", ExecutionID: "x1", Action: "reboot", Status: domain.StatusPending},
			},
			decided: map[string]string{},
		},
		bus:   &bus{},
		flags: &flagStore{m: map[string]bool{policy.FlagLocalAIControl: true}},
		audit: &auditLogs{},
	}
	logger := zap.NewNop()
	f.srv = server.NewConsoleServer(tokens{}, server.Handlers{
		Auth:      handler.NewAuthHandler(service.NewAuthService(users{"op": {ID: "op-1", PasswordHash: string(hash)}}, key)),
		Approvals: handler.NewApprovalHandler(service.NewApprovalService(f.apps, f.bus, logger)),
		Dashboard: handler.NewDashboardHandler(dashboard{}),
		Audit:     handler.NewAuditHandler(service.NewAuditService(f.audit)),
		Flags:     handler.NewFlagHandler(service.NewFlagService(f.flags, logger)),
	}, logger)
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", "").Code)

	rec := f.do(http.MethodPost, "/auth/token", "", `{"username":"op","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var tok domain.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.NotEmpty(t, tok.AccessToken)

	assert.Equal(t, http.StatusUnauthorized,
		f.do(http.MethodPost, "/auth/token", "", `{"username":"op","password":"nope"}`).Code)
}

func TestOperatorScopeRequired(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/v1/approvals", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/v1/approvals", "garbage", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/v1/approvals", "cloud", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/approvals", "operator", "").Code)
}

func TestApprovals(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/approvals?status=weird", "operator", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/approvals/a1", "operator", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/approvals/zz", "operator", "").Code)

	rec := f.do(http.MethodPost, "/v1/approvals/a1/decide", "operator", `{"approved":true}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "op-1", f.apps.decided["a1"])
	assert.Equal(t, []string{"x1"}, f.bus.sent)

	rec = f.do(http.MethodPost, "/v1/approvals/a1/decide", "operator", `{"approved":false}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, f.bus.sent, 1)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/v1/approvals/zz/decide", "operator", `{"approved":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/approvals/a1/decide", "operator", `{`).Code)
}

func TestFlags(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v1/flags", "operator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]bool{policy.FlagLocalAIControl: true, policy.FlagCloudAIControl: false}, got)

	rec = f.do(http.MethodPut, "/v1/flags/"+policy.FlagCloudAIControl, "operator", `{"on":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.flags.m[policy.FlagCloudAIControl])

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPut, "/v1/flags/unknown", "operator", `{"on":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/v1/flags/"+policy.FlagCloudAIControl, "operator", `{}`).Code)
}

func TestAuditFilters(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v1/audit?action=reboot&status=fail&reason=timed_out&source=remote&limit=5", "operator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, audit.Filter{
		Action: "reboot",
		Status: domain.StatusFail,
		Reason: domain.ReasonTimedOut,
		Source: domain.SourceRemote,
		Limit:  5,
	}, f.audit.last)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/audit?limit=x", "operator", "").Code)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/dashboard/stats", "operator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_commands":7`)
}
