package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// RegisterInput carries the registration payload plus the advisory device
// fingerprint of the caller.
type RegisterInput struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Name     string     `json:"name"`
	Device   DeviceInfo `json:"-"`
}

// LoginInput carries the login payload plus the device fingerprint.
type LoginInput struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Device   DeviceInfo `json:"-"`
}

// AuthResult is the successful outcome of Register, Login, or Refresh.
type AuthResult struct {
	User         PublicUser `json:"user"`
	Token        string     `json:"token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	// Degraded lists best-effort collaborators that failed while the
	// primary operation still succeeded.
	Degraded []string `json:"degraded,omitempty"`
}

type Auther struct {
	provider        IdentityProvider
	repo            RepositoryManager
	limiter         RateLimiter
	accessTokens    TokenService
	refreshTokens   TokenService
	auditSink       AuditSink
	vault           VaultClient
	customers       CustomerRegistrar
	mailer          WelcomeMailer
	claimsDecorator ClaimsDecorator
	passwordRules   []PasswordRule
	depTimeout      time.Duration
	logger          Logger
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, repo RepositoryManager, cfg Config) *Auther {
	logger := defLogger{}

	accessTokens := NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenExpiration(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		logger,
	)

	// Refresh tokens are a separate token class behind a separate secret;
	// one never validates against the other.
	refreshTokens := NewTokenService(
		[]byte(cfg.GetRefreshSigningKey()),
		cfg.GetRefreshTokenExpiration(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		logger,
	)

	return &Auther{
		provider:        provider,
		repo:            repo,
		limiter:         NewMemoryRateLimiter(cfg.GetRateLimitWindow(), cfg.GetRateLimitMax()),
		accessTokens:    accessTokens,
		refreshTokens:   refreshTokens,
		auditSink:       NewRepositoryAuditSink(repo.AuditEvents()),
		vault:           noopVaultClient{},
		customers:       noopCustomerRegistrar{},
		mailer:          noopWelcomeMailer{},
		claimsDecorator: noopClaimsDecorator{},
		passwordRules:   DefaultPasswordRules,
		depTimeout:      cfg.GetDependencyTimeout(),
		logger:          logger,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithRateLimiter swaps the in-memory limiter, e.g. for the Redis-backed
// one in multi-instance deployments.
func (s *Auther) WithRateLimiter(limiter RateLimiter) *Auther {
	if limiter != nil {
		s.limiter = limiter
	}
	return s
}

// WithAuditSink configures the AuditSink receiving security events.
func (s *Auther) WithAuditSink(sink AuditSink) *Auther {
	s.auditSink = normalizeAuditSink(sink)
	return s
}

// WithVaultClient configures the external vault session collaborator.
func (s *Auther) WithVaultClient(vault VaultClient) *Auther {
	s.vault = normalizeVaultClient(vault)
	return s
}

// WithCustomerRegistrar configures the billing-provider collaborator.
func (s *Auther) WithCustomerRegistrar(customers CustomerRegistrar) *Auther {
	s.customers = normalizeCustomerRegistrar(customers)
	return s
}

// WithWelcomeMailer configures the transactional email collaborator.
func (s *Auther) WithWelcomeMailer(mailer WelcomeMailer) *Auther {
	s.mailer = normalizeWelcomeMailer(mailer)
	return s
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching JWTs.
func (s *Auther) WithClaimsDecorator(decorator ClaimsDecorator) *Auther {
	s.claimsDecorator = normalizeClaimsDecorator(decorator)
	return s
}

// WithPasswordRules overrides the registration password policy.
func (s *Auther) WithPasswordRules(rules []PasswordRule) *Auther {
	if len(rules) > 0 {
		s.passwordRules = rules
	}
	return s
}

// AccessTokens returns the access TokenService used by this Authenticator
func (s *Auther) AccessTokens() TokenService {
	return s.accessTokens
}

// RefreshTokens returns the refresh TokenService used by this Authenticator
func (s *Auther) RefreshTokens() TokenService {
	return s.refreshTokens
}

// Register creates the account, issues the first session, and reports any
// degraded collaborators.
func (s *Auther) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if err := s.gate(ctx, "register", input.Device); err != nil {
		return nil, err
	}

	if violations := s.validateRegistration(input); len(violations) > 0 {
		return nil, ValidationError(violations)
	}

	email := NormalizeEmail(input.Email)

	if _, err := s.repo.Users().GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	var degraded []string

	customerID := ""
	if err := withDependencyTimeout(ctx, s.depTimeout, func(ctx context.Context) error {
		var cerr error
		customerID, cerr = s.customers.CreateCustomer(ctx, email, input.Name)
		return cerr
	}); err != nil {
		s.logger.Warn("customer record creation degraded for %s: %v", email, err)
		degraded = append(degraded, "customer")
	}

	user := &User{
		Email:            email,
		PasswordHash:     hash,
		Name:             input.Name,
		IsActive:         true,
		StripeCustomerID: customerID,
	}
	user.AddMetadata("registration_ip", input.Device.IP)
	user.AddMetadata("user_agent", input.Device.UserAgent)
	user.AddMetadata("email_verified", false)

	user, err = s.repo.Users().Register(ctx, user)
	if err != nil {
		// The uniqueness pre-check can lose a race with a concurrent
		// registration for the same email.
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
	}

	result, sessionDegraded, err := s.issueSession(ctx, NewIdentityFromUser(user), user, input.Device)
	if err != nil {
		return nil, err
	}
	degraded = append(degraded, sessionDegraded...)

	if err := withDependencyTimeout(ctx, s.depTimeout, func(ctx context.Context) error {
		return s.mailer.SendWelcome(ctx, email, input.Name)
	}); err != nil {
		s.logger.Warn("welcome email degraded for %s: %v", email, err)
		degraded = append(degraded, "mailer")
	}

	s.recordAudit(ctx, AuditRegistration, &user.ID, input.Device, map[string]any{
		"email":    email,
		"degraded": degraded,
	})

	result.Degraded = degraded
	return result, nil
}

// isUniqueViolation matches the constraint-violation wording shared by the
// supported engines; anything else is a plain storage failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// Login verifies credentials and issues a fresh session.
func (s *Auther) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	if err := s.gate(ctx, "login", input.Device); err != nil {
		return nil, err
	}

	identity, err := s.provider.VerifyIdentity(ctx, input.Email, input.Password)
	if err != nil {
		// When the denial names a real account, the audit event carries its
		// id; an unknown email leaves the subject nil.
		var subjectID *uuid.UUID
		var denial *CredentialDenial
		if errors.As(err, &denial) {
			id := denial.UserID
			subjectID = &id
		}

		switch {
		case errors.Is(err, ErrMismatchedHashAndPassword):
			s.recordAudit(ctx, AuditLoginFailed, subjectID, input.Device, map[string]any{
				"email":  NormalizeEmail(input.Email),
				"reason": "invalid_credentials",
			})
			return nil, ErrMismatchedHashAndPassword
		case errors.Is(err, ErrAccountDisabled):
			s.recordAudit(ctx, AuditLoginFailed, subjectID, input.Device, map[string]any{
				"email":  NormalizeEmail(input.Email),
				"reason": "account_disabled",
			})
			return nil, ErrAccountDisabled
		default:
			// No decision was reached; transient failures are not audited.
			s.logger.Error("Login verify identity error: %v", err)
			return nil, err
		}
	}

	user := userFromIdentity(identity)
	if user == nil {
		return nil, goerrors.New("identity is missing its user record", goerrors.CategoryInternal)
	}

	result, degraded, err := s.issueSession(ctx, identity, user, input.Device)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, AuditLoginSuccess, &user.ID, input.Device, map[string]any{
		"email":    user.Email,
		"degraded": degraded,
	})

	result.Degraded = degraded
	return result, nil
}

// Refresh exchanges a valid refresh token for a brand-new access token
// bound to the user's current role and tier. The session row is rotated so
// refreshed tokens stay revocable like any other.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.refreshTokens.Validate(refreshToken)
	if err != nil {
		return nil, err
	}

	identity, err := s.provider.FindIdentityByID(ctx, claims.UserID())
	if err != nil {
		// Do not disclose whether the account vanished or was disabled.
		s.logger.Warn("Refresh rejected for user %s: %v", claims.UserID(), err)
		return nil, ErrTokenMalformed
	}

	user := userFromIdentity(identity)
	if user == nil {
		return nil, goerrors.New("identity is missing its user record", goerrors.CategoryInternal)
	}

	result, degraded, err := s.issueSession(ctx, identity, user, DeviceInfo{})
	if err != nil {
		return nil, err
	}

	// Refresh responses carry only the rotated access token.
	result.RefreshToken = ""
	result.Degraded = degraded
	return result, nil
}

// Logout revokes the session bound to the token. It is idempotent and never
// reveals whether the session existed.
func (s *Auther) Logout(ctx context.Context, token string, device DeviceInfo) error {
	if token == "" {
		return nil
	}

	session, err := s.repo.Sessions().GetByToken(ctx, token)
	if err != nil {
		// Unknown, expired, already revoked: all indistinguishable, all fine.
		return nil
	}

	if err := s.repo.Sessions().RevokeByToken(ctx, token); err != nil {
		s.logger.Error("Logout failed to revoke session %s: %v", session.ID, err)
		return nil
	}

	s.recordAudit(ctx, AuditLogout, &session.UserID, device, map[string]any{
		"session_id": session.ID.String(),
	})

	return nil
}

// gate runs the rate limiter ahead of any credential work. Limiter
// breakage fails open with a warning; denial short-circuits regardless of
// credential validity.
func (s *Auther) gate(ctx context.Context, endpoint string, device DeviceInfo) error {
	allowed, err := s.limiter.Allow(ctx, endpoint+":"+device.IP)
	if err != nil {
		s.logger.Warn("rate limiter unavailable for %s, failing open: %v", endpoint, err)
		return nil
	}

	if !allowed {
		return ErrRateLimited
	}

	return nil
}

func (s *Auther) validateRegistration(input RegisterInput) []string {
	var violations []string

	if NormalizeEmail(input.Email) == "" {
		violations = append(violations, "email is required")
	} else if !IsEmail(NormalizeEmail(input.Email)) {
		violations = append(violations, "email must be a valid address")
	}

	if input.Name == "" {
		violations = append(violations, "name is required")
	}

	violations = append(violations, CheckPassword(input.Password, s.passwordRules)...)

	return violations
}

// issueSession mints the token pair, persists the session row, and returns
// the assembled result plus the names of degraded collaborators.
func (s *Auther) issueSession(ctx context.Context, identity Identity, user *User, device DeviceInfo) (*AuthResult, []string, error) {
	var degraded []string

	vaultHandle := ""
	if err := withDependencyTimeout(ctx, s.depTimeout, func(ctx context.Context) error {
		var verr error
		vaultHandle, verr = s.vault.MintSession(ctx, identity.ID(), device)
		return verr
	}); err != nil {
		// Degraded-mode session: proceeds with an empty vault handle.
		s.logger.Warn("vault session minting degraded for user %s: %v", identity.ID(), err)
		degraded = append(degraded, "vault")
	}

	token, expiresAt, err := s.generateJWT(ctx, identity)
	if err != nil {
		return nil, nil, err
	}

	refreshToken, err := s.refreshTokens.Generate(identity)
	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign refresh token")
	}

	session := &Session{
		UserID:         user.ID,
		SessionToken:   token,
		VaultSessionID: vaultHandle,
		ExpiresAt:      expiresAt,
		UserAgent:      device.UserAgent,
		IPAddress:      device.IP,
	}

	if _, err := s.repo.Sessions().Create(ctx, session); err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist session")
	}

	return &AuthResult{
		User:         user.Public(),
		Token:        token,
		ExpiresAt:    expiresAt,
		RefreshToken: refreshToken,
	}, degraded, nil
}

// generateJWT mints an access token after running the claims decorator and
// verifying it left protected claims alone.
func (s *Auther) generateJWT(ctx context.Context, identity Identity) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTokens.TTL())

	claims := newJWTClaims(identity, s.accessTokens, now, expiresAt)
	snapshot := captureImmutableClaims(claims)

	decorator := normalizeClaimsDecorator(s.claimsDecorator)
	if err := decorator.Decorate(ctx, identity, claims); err != nil {
		s.logger.Error("claims decorator failed: %v", err)
		return "", time.Time{}, err
	}

	if err := snapshot.validate(claims); err != nil {
		s.logger.Error("claims decorator mutated immutable claims: %v", err)
		return "", time.Time{}, err
	}

	token, err := s.accessTokens.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

func (s *Auther) recordAudit(ctx context.Context, kind AuditKind, userID *uuid.UUID, device DeviceInfo, context map[string]any) {
	sink := normalizeAuditSink(s.auditSink)

	if context == nil {
		context = map[string]any{}
	}

	event := AuditEvent{
		Kind:      kind,
		UserID:    userID,
		IPAddress: device.IP,
		UserAgent: device.UserAgent,
		Context:   context,
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("audit sink record error: %v", err)
	}
}

func newJWTClaims(identity Identity, ts TokenService, issuedAt, expiresAt time.Time) *JWTClaims {
	var issuer string
	var aud jwt.ClaimStrings
	if defaultsProvider, ok := ts.(tokenDefaultsProvider); ok {
		defaults := defaultsProvider.tokenDefaults()
		issuer = defaults.issuer
		aud = defaults.audience
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:       identity.ID(),
		UserEmail: identity.Email(),
		UserRole:  identity.Role(),
		Tier:      identity.SubscriptionTier(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

type userCarryingIdentity interface {
	User() *User
}

func userFromIdentity(identity Identity) *User {
	if identity == nil {
		return nil
	}

	if uc, ok := identity.(userCarryingIdentity); ok {
		return uc.User()
	}

	return nil
}
