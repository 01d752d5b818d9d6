package auth_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/lumastream/go-auth"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// TestIdentity is a simple implementation of Identity interface for testing
type TestIdentity struct {
	id    string
	email string
	name  string
	role  string
	tier  string
}

func (t TestIdentity) ID() string               { return t.id }
func (t TestIdentity) Email() string            { return t.email }
func (t TestIdentity) Name() string             { return t.name }
func (t TestIdentity) Role() string             { return t.role }
func (t TestIdentity) SubscriptionTier() string { return t.tier }

// MockIdentityProvider implements auth.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, email, password string) (auth.Identity, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Identity), args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByID(ctx context.Context, id string) (auth.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Identity), args.Error(1)
}

// MockRateLimiter implements auth.RateLimiter
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// MockVaultClient implements auth.VaultClient
type MockVaultClient struct {
	mock.Mock
}

func (m *MockVaultClient) MintSession(ctx context.Context, userID string, device auth.DeviceInfo) (string, error) {
	args := m.Called(ctx, userID, device)
	return args.String(0), args.Error(1)
}

// MockCustomerRegistrar implements auth.CustomerRegistrar
type MockCustomerRegistrar struct {
	mock.Mock
}

func (m *MockCustomerRegistrar) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	args := m.Called(ctx, email, name)
	return args.String(0), args.Error(1)
}

// MockWelcomeMailer implements auth.WelcomeMailer
type MockWelcomeMailer struct {
	mock.Mock
}

func (m *MockWelcomeMailer) SendWelcome(ctx context.Context, email, name string) error {
	args := m.Called(ctx, email, name)
	return args.Error(0)
}

// capturingSink collects every audit event it receives.
type capturingSink struct {
	events []auth.AuditEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.AuditEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) byKind(kind auth.AuditKind) []auth.AuditEvent {
	var out []auth.AuditEvent
	for _, evt := range c.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

func requireRichError(t *testing.T, err error) *goerrors.Error {
	t.Helper()

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a structured error, got %T", err)
	return richErr
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []any{
		(*auth.User)(nil),
		(*auth.Session)(nil),
		(*auth.AuditEvent)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func newTestConfig() auth.SimpleConfig {
	return auth.SimpleConfig{
		SigningKey:             "test-signing-key",
		RefreshSigningKey:      "test-refresh-signing-key",
		Issuer:                 "test-issuer",
		Audience:               []string{"test:audience"},
		TokenExpiration:        time.Hour,
		RefreshTokenExpiration: 24 * time.Hour,
		RateLimitWindow:        time.Minute,
		RateLimitMax:           1000,
		DependencyTimeout:      time.Second,
	}
}
