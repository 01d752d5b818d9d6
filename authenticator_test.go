package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/lumastream/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newLifecycleAuth(t *testing.T) (*auth.Auther, auth.RepositoryManager, *capturingSink) {
	t.Helper()

	db := newTestDB(t)
	repo := auth.NewRepositoryManager(db)
	provider := auth.NewUserProvider(repo.Users())
	sink := &capturingSink{}

	authenticator := auth.NewAuthenticator(provider, repo, newTestConfig()).
		WithAuditSink(sink)

	return authenticator, repo, sink
}

func registerInput(email string) auth.RegisterInput {
	return auth.RegisterInput{
		Email:    email,
		Password: "Sup3r-Secret!",
		Name:     "Test User",
		Device:   auth.DeviceInfo{IP: "10.0.0.1", UserAgent: "test-agent"},
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("successful registration", func(t *testing.T) {
		authenticator, repo, sink := newLifecycleAuth(t)

		result, err := authenticator.Register(ctx, registerInput("new.user@example.com"))
		require.NoError(t, err)

		assert.Equal(t, "new.user@example.com", result.User.Email)
		assert.Equal(t, auth.RoleStandard, result.User.Role)
		assert.Equal(t, auth.TierFree, result.User.SubscriptionTier)
		assert.NotEmpty(t, result.Token)
		assert.NotEmpty(t, result.RefreshToken)
		assert.WithinDuration(t, time.Now().Add(time.Hour), result.ExpiresAt, 5*time.Second)
		assert.Empty(t, result.Degraded)

		claims, err := authenticator.AccessTokens().Validate(result.Token)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID.String(), claims.UserID())
		assert.Equal(t, "new.user@example.com", claims.Email())

		session, err := repo.Sessions().GetByToken(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, session.UserID)
		assert.Equal(t, "10.0.0.1", session.IPAddress)
		assert.Equal(t, "test-agent", session.UserAgent)

		events := sink.byKind(auth.AuditRegistration)
		require.Len(t, events, 1)
		require.NotNil(t, events[0].UserID)
		assert.Equal(t, result.User.ID, *events[0].UserID)
		assert.Equal(t, "10.0.0.1", events[0].IPAddress)
	})

	t.Run("email is normalized before the uniqueness check", func(t *testing.T) {
		authenticator, _, _ := newLifecycleAuth(t)

		_, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		_, err = authenticator.Register(ctx, registerInput("  USER@Example.COM "))
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("every violation is reported at once", func(t *testing.T) {
		authenticator, _, _ := newLifecycleAuth(t)

		_, err := authenticator.Register(ctx, auth.RegisterInput{
			Email:    "not-an-email",
			Password: "abc",
			Name:     "",
		})
		require.Error(t, err)

		violations := violationsFromError(t, err)
		assert.Contains(t, violations, "email must be a valid address")
		assert.Contains(t, violations, "name is required")
		assert.Contains(t, violations, "password must be at least 8 characters long")
		assert.Contains(t, violations, "password must contain an uppercase letter")
		assert.Contains(t, violations, "password must contain a digit")
		assert.Contains(t, violations, "password must contain a symbol")
	})

	t.Run("over-long password is a validation failure", func(t *testing.T) {
		authenticator, _, _ := newLifecycleAuth(t)

		input := registerInput("long.pass@example.com")
		input.Password = strings.Repeat("Aa1!", 20)

		_, err := authenticator.Register(ctx, input)
		require.Error(t, err)

		violations := violationsFromError(t, err)
		assert.Equal(t, []string{"password must be at most 72 characters long"}, violations)
	})

	t.Run("rate limiter denial short-circuits", func(t *testing.T) {
		authenticator, repo, _ := newLifecycleAuth(t)

		limiter := new(MockRateLimiter)
		limiter.On("Allow", mock.Anything, "register:10.0.0.1").Return(false, nil)
		authenticator.WithRateLimiter(limiter)

		_, err := authenticator.Register(ctx, registerInput("blocked@example.com"))
		assert.ErrorIs(t, err, auth.ErrRateLimited)

		// Nothing was created.
		_, err = repo.Users().GetByEmail(ctx, "blocked@example.com")
		assert.Error(t, err)
	})

	t.Run("rate limiter breakage fails open", func(t *testing.T) {
		authenticator, _, _ := newLifecycleAuth(t)

		limiter := new(MockRateLimiter)
		limiter.On("Allow", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
		authenticator.WithRateLimiter(limiter)

		_, err := authenticator.Register(ctx, registerInput("open@example.com"))
		assert.NoError(t, err)
	})
}

func TestRegisterCollaborators(t *testing.T) {
	ctx := context.Background()

	t.Run("customer id is stored when the registrar succeeds", func(t *testing.T) {
		authenticator, repo, _ := newLifecycleAuth(t)

		customers := new(MockCustomerRegistrar)
		customers.On("CreateCustomer", mock.Anything, "billed@example.com", "Test User").
			Return("cus_123", nil).Once()
		authenticator.WithCustomerRegistrar(customers)

		result, err := authenticator.Register(ctx, registerInput("billed@example.com"))
		require.NoError(t, err)
		assert.Empty(t, result.Degraded)

		stored, err := repo.Users().GetByEmail(ctx, "billed@example.com")
		require.NoError(t, err)
		assert.Equal(t, "cus_123", stored.StripeCustomerID)

		customers.AssertExpectations(t)
	})

	t.Run("vault handle is stored on the session", func(t *testing.T) {
		authenticator, repo, _ := newLifecycleAuth(t)

		vault := new(MockVaultClient)
		vault.On("MintSession", mock.Anything, mock.Anything, mock.Anything).
			Return("vault-handle-1", nil).Once()
		authenticator.WithVaultClient(vault)

		result, err := authenticator.Register(ctx, registerInput("vaulted@example.com"))
		require.NoError(t, err)

		session, err := repo.Sessions().GetByToken(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, "vault-handle-1", session.VaultSessionID)
	})

	t.Run("failing collaborators degrade instead of failing", func(t *testing.T) {
		authenticator, repo, sink := newLifecycleAuth(t)

		customers := new(MockCustomerRegistrar)
		customers.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("stripe down"))

		vault := new(MockVaultClient)
		vault.On("MintSession", mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("vault down"))

		mailer := new(MockWelcomeMailer)
		mailer.On("SendWelcome", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("smtp down"))

		authenticator.
			WithCustomerRegistrar(customers).
			WithVaultClient(vault).
			WithWelcomeMailer(mailer)

		result, err := authenticator.Register(ctx, registerInput("degraded@example.com"))
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"customer", "vault", "mailer"}, result.Degraded)

		// The session still exists, with an empty vault handle.
		session, err := repo.Sessions().GetByToken(ctx, result.Token)
		require.NoError(t, err)
		assert.Empty(t, session.VaultSessionID)

		// The audit trail records every degraded collaborator, the mailer
		// included.
		events := sink.byKind(auth.AuditRegistration)
		require.Len(t, events, 1)
		assert.ElementsMatch(t, []string{"customer", "vault", "mailer"}, events[0].Context["degraded"])
	})
}

// failingUsers overrides the insert so storage failures can be simulated
// behind an otherwise real repository.
type failingUsers struct {
	auth.Users
	registerErr error
}

func (f *failingUsers) Register(ctx context.Context, user *auth.User) (*auth.User, error) {
	return nil, f.registerErr
}

type usersOverrideRepo struct {
	auth.RepositoryManager
	users auth.Users
}

func (r *usersOverrideRepo) Users() auth.Users { return r.users }

func TestRegisterInsertFailures(t *testing.T) {
	ctx := context.Background()

	newFailingAuth := func(t *testing.T, insertErr error) *auth.Auther {
		t.Helper()

		db := newTestDB(t)
		base := auth.NewRepositoryManager(db)
		repo := &usersOverrideRepo{
			RepositoryManager: base,
			users:             &failingUsers{Users: base.Users(), registerErr: insertErr},
		}

		return auth.NewAuthenticator(auth.NewUserProvider(repo.Users()), repo, newTestConfig())
	}

	t.Run("lost uniqueness race maps to the duplicate error", func(t *testing.T) {
		authenticator := newFailingAuth(t, errors.New("UNIQUE constraint failed: users.email"))

		_, err := authenticator.Register(ctx, registerInput("raced@example.com"))
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("storage outage is not a conflict", func(t *testing.T) {
		authenticator := newFailingAuth(t, errors.New("database is locked"))

		_, err := authenticator.Register(ctx, registerInput("outage@example.com"))
		require.Error(t, err)

		richErr := requireRichError(t, err)
		assert.Equal(t, goerrors.CategoryInternal, richErr.Category)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	device := auth.DeviceInfo{IP: "10.0.0.2", UserAgent: "login-agent"}

	t.Run("successful login", func(t *testing.T) {
		authenticator, repo, sink := newLifecycleAuth(t)

		_, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		result, err := authenticator.Login(ctx, auth.LoginInput{
			Email:    "user@example.com",
			Password: "Sup3r-Secret!",
			Device:   device,
		})
		require.NoError(t, err)

		assert.NotEmpty(t, result.Token)
		assert.NotEmpty(t, result.RefreshToken)
		assert.NotNil(t, result.User.LastLogin)

		_, err = repo.Sessions().GetByToken(ctx, result.Token)
		assert.NoError(t, err)

		events := sink.byKind(auth.AuditLoginSuccess)
		require.Len(t, events, 1)
		assert.Equal(t, "10.0.0.2", events[0].IPAddress)
	})

	t.Run("wrong password", func(t *testing.T) {
		authenticator, _, sink := newLifecycleAuth(t)

		registered, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		_, err = authenticator.Login(ctx, auth.LoginInput{
			Email:    "user@example.com",
			Password: "wrong-password",
			Device:   device,
		})
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)

		// The denial named a real account, so the event is attributed to it.
		events := sink.byKind(auth.AuditLoginFailed)
		require.Len(t, events, 1)
		assert.Equal(t, "invalid_credentials", events[0].Context["reason"])
		require.NotNil(t, events[0].UserID)
		assert.Equal(t, registered.User.ID, *events[0].UserID)
	})

	t.Run("unknown email gets the same denial", func(t *testing.T) {
		authenticator, _, sink := newLifecycleAuth(t)

		_, err := authenticator.Login(ctx, auth.LoginInput{
			Email:    "missing@example.com",
			Password: "Sup3r-Secret!",
			Device:   device,
		})
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)

		// Nothing but the generic credential denial leaves the orchestrator.
		richErr := requireRichError(t, err)
		assert.Equal(t, auth.TextCodeInvalidCreds, richErr.TextCode)

		// No account was matched, so the event has no subject.
		events := sink.byKind(auth.AuditLoginFailed)
		require.Len(t, events, 1)
		assert.Nil(t, events[0].UserID)
	})

	t.Run("disabled account with valid credentials", func(t *testing.T) {
		authenticator, repo, sink := newLifecycleAuth(t)

		disabled := seedUser(t, repo.Users(), "disabled@example.com", "Sup3r-Secret!", false)

		_, err := authenticator.Login(ctx, auth.LoginInput{
			Email:    "disabled@example.com",
			Password: "Sup3r-Secret!",
			Device:   device,
		})
		assert.ErrorIs(t, err, auth.ErrAccountDisabled)

		events := sink.byKind(auth.AuditLoginFailed)
		require.Len(t, events, 1)
		assert.Equal(t, "account_disabled", events[0].Context["reason"])
		require.NotNil(t, events[0].UserID)
		assert.Equal(t, disabled.ID, *events[0].UserID)
	})

	t.Run("rate limited login never touches credentials", func(t *testing.T) {
		authenticator, _, _ := newLifecycleAuth(t)

		_, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		limiter := new(MockRateLimiter)
		limiter.On("Allow", mock.Anything, "login:10.0.0.2").Return(false, nil)
		authenticator.WithRateLimiter(limiter)

		// Even valid credentials are rejected while the window is exhausted.
		_, err = authenticator.Login(ctx, auth.LoginInput{
			Email:    "user@example.com",
			Password: "Sup3r-Secret!",
			Device:   device,
		})
		assert.ErrorIs(t, err, auth.ErrRateLimited)
	})

	t.Run("two sessions for the same user are independent", func(t *testing.T) {
		authenticator, repo, _ := newLifecycleAuth(t)

		_, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		first, err := authenticator.Login(ctx, auth.LoginInput{
			Email:    "user@example.com",
			Password: "Sup3r-Secret!",
			Device:   auth.DeviceInfo{IP: "10.0.0.3"},
		})
		require.NoError(t, err)

		second, err := authenticator.Login(ctx, auth.LoginInput{
			Email:    "user@example.com",
			Password: "Sup3r-Secret!",
			Device:   auth.DeviceInfo{IP: "10.0.0.4"},
		})
		require.NoError(t, err)

		require.NotEqual(t, first.Token, second.Token)

		require.NoError(t, authenticator.Logout(ctx, first.Token, auth.DeviceInfo{}))

		_, err = repo.Sessions().GetByToken(ctx, first.Token)
		assert.ErrorIs(t, err, auth.ErrSessionNotFound)

		_, err = repo.Sessions().GetByToken(ctx, second.Token)
		assert.NoError(t, err)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh rotates the access token and session", func(t *testing.T) {
		authenticator, repo, _ := newLifecycleAuth(t)

		login, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		refreshed, err := authenticator.Refresh(ctx, login.RefreshToken)
		require.NoError(t, err)

		assert.NotEmpty(t, refreshed.Token)
		assert.NotEqual(t, login.Token, refreshed.Token)
		assert.Empty(t, refreshed.RefreshToken)

		// The rotated token is revocable like any other.
		_, err = repo.Sessions().GetByToken(ctx, refreshed.Token)
		assert.NoError(t, err)
	})

	t.Run("access token is rejected as a refresh token", func(t *testing.T) {
		authenticator, _, _ := newLifecycleAuth(t)

		login, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		_, err = authenticator.Refresh(ctx, login.Token)
		assert.True(t, auth.IsMalformedError(err))
	})

	t.Run("garbage refresh token", func(t *testing.T) {
		authenticator, _, _ := newLifecycleAuth(t)

		_, err := authenticator.Refresh(ctx, "not-a-token")
		assert.True(t, auth.IsMalformedError(err))
	})

	t.Run("expired refresh token", func(t *testing.T) {
		authenticator, repo, _ := newLifecycleAuth(t)

		user := seedUser(t, repo.Users(), "user@example.com", "Sup3r-Secret!", true)

		stale, _, err := auth.MintToken(authenticator.RefreshTokens(), TestIdentity{
			id:    user.ID.String(),
			email: user.Email,
			role:  user.Role,
			tier:  user.SubscriptionTier,
		}, auth.TokenOptions{
			TTL:      time.Minute,
			IssuedAt: time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)

		_, err = authenticator.Refresh(ctx, stale)
		assert.ErrorIs(t, err, auth.ErrTokenExpired)
	})

	t.Run("refresh for a disabled user does not disclose why", func(t *testing.T) {
		authenticator, repo, _ := newLifecycleAuth(t)

		login, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		require.NoError(t, repo.Users().SetActive(ctx, login.User.ID, false))

		_, err = authenticator.Refresh(ctx, login.RefreshToken)
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("refreshed claims track the current role and tier", func(t *testing.T) {
		authenticator, repo, _ := newLifecycleAuth(t)

		login, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		require.NoError(t, repo.Users().SetSubscriptionTier(ctx, login.User.ID, auth.TierStudio))

		refreshed, err := authenticator.Refresh(ctx, login.RefreshToken)
		require.NoError(t, err)

		claims, err := authenticator.AccessTokens().Validate(refreshed.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.TierStudio, claims.SubscriptionTier())
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("logout revokes the session", func(t *testing.T) {
		authenticator, repo, sink := newLifecycleAuth(t)

		login, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		require.NoError(t, authenticator.Logout(ctx, login.Token, auth.DeviceInfo{IP: "10.0.0.1"}))

		_, err = repo.Sessions().GetByToken(ctx, login.Token)
		assert.ErrorIs(t, err, auth.ErrSessionNotFound)

		events := sink.byKind(auth.AuditLogout)
		require.Len(t, events, 1)
		assert.NotEmpty(t, events[0].Context["session_id"])
	})

	t.Run("logout is idempotent", func(t *testing.T) {
		authenticator, _, sink := newLifecycleAuth(t)

		login, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		require.NoError(t, authenticator.Logout(ctx, login.Token, auth.DeviceInfo{}))
		require.NoError(t, authenticator.Logout(ctx, login.Token, auth.DeviceInfo{}))

		// Only the first revocation produced an event.
		assert.Len(t, sink.byKind(auth.AuditLogout), 1)
	})

	t.Run("unknown and empty tokens succeed quietly", func(t *testing.T) {
		authenticator, _, sink := newLifecycleAuth(t)

		assert.NoError(t, authenticator.Logout(ctx, "never-issued", auth.DeviceInfo{}))
		assert.NoError(t, authenticator.Logout(ctx, "", auth.DeviceInfo{}))
		assert.Empty(t, sink.byKind(auth.AuditLogout))
	})
}

func TestClaimsDecorator(t *testing.T) {
	ctx := context.Background()

	t.Run("decorator enriches metadata", func(t *testing.T) {
		authenticator, _, _ := newLifecycleAuth(t)

		authenticator.WithClaimsDecorator(auth.ClaimsDecoratorFunc(func(ctx context.Context, identity auth.Identity, claims *auth.JWTClaims) error {
			if claims.Metadata == nil {
				claims.Metadata = map[string]any{}
			}
			claims.Metadata["beta_features"] = true
			return nil
		}))

		result, err := authenticator.Register(ctx, registerInput("user@example.com"))
		require.NoError(t, err)

		claims, err := authenticator.AccessTokens().Validate(result.Token)
		require.NoError(t, err)

		jwtClaims, ok := claims.(*auth.JWTClaims)
		require.True(t, ok)
		assert.Equal(t, true, jwtClaims.Metadata["beta_features"])
	})

	t.Run("decorator touching protected claims fails the operation", func(t *testing.T) {
		authenticator, _, _ := newLifecycleAuth(t)

		authenticator.WithClaimsDecorator(auth.ClaimsDecoratorFunc(func(ctx context.Context, identity auth.Identity, claims *auth.JWTClaims) error {
			claims.UserRole = auth.RoleAdmin
			return nil
		}))

		_, err := authenticator.Register(ctx, registerInput("user@example.com"))
		assert.Error(t, err)
	})
}

func violationsFromError(t *testing.T, err error) []string {
	t.Helper()

	richErr := requireRichError(t, err)
	raw, ok := richErr.Metadata["violations"]
	require.True(t, ok, "expected violations metadata")

	violations, ok := raw.([]string)
	require.True(t, ok, "violations should be []string")
	return violations
}
