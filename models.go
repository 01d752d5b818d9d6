package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleStandard is the default role assigned at registration
	RoleStandard UserRole = "standard"
	// RoleAdmin marks back-office accounts
	RoleAdmin UserRole = "admin"
)

// SubscriptionTier is the billing tier carried as a token claim. The auth
// core never evaluates it, it only transports it.
type SubscriptionTier = string

const (
	TierFree    SubscriptionTier = "free"
	TierPremium SubscriptionTier = "premium"
	TierStudio  SubscriptionTier = "studio"
)

// User is the user model
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email            string           `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash     string           `bun:"password_hash,notnull" json:"-"`
	Name             string           `bun:"name,notnull" json:"name,omitempty"`
	Role             UserRole         `bun:"role,notnull" json:"role,omitempty"`
	SubscriptionTier SubscriptionTier `bun:"subscription_tier,notnull" json:"subscription_tier,omitempty"`
	IsActive         bool             `bun:"is_active" json:"is_active"`
	LastLogin        *time.Time       `bun:"last_login,nullzero" json:"last_login,omitempty"`
	Metadata         map[string]any   `bun:"metadata" json:"metadata,omitempty"`
	StripeCustomerID string           `bun:"stripe_customer_id" json:"-"`
	CreatedAt        *time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time       `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt        *time.Time       `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// PublicUser is the caller-facing projection of a user; the password hash
// and billing identifiers never cross this boundary.
type PublicUser struct {
	ID               uuid.UUID        `json:"id"`
	Email            string           `json:"email"`
	Name             string           `json:"name"`
	Role             UserRole         `json:"role"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier"`
	LastLogin        *time.Time       `json:"last_login,omitempty"`
}

// Public returns the exposable projection of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             u.Role,
		SubscriptionTier: u.SubscriptionTier,
		LastLogin:        u.LastLogin,
	}
}

// Session binds an issued token to its user and the external vault handle.
// The token column is the lookup key; an expired row is treated as absent
// by every read path even before it is physically purged.
type Session struct {
	bun.BaseModel  `bun:"table:sessions,alias:ses"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID         uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	SessionToken   string     `bun:"session_token,notnull,unique" json:"-"`
	VaultSessionID string     `bun:"vault_session_id" json:"vault_session_id,omitempty"`
	ExpiresAt      time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UserAgent      string     `bun:"user_agent" json:"user_agent,omitempty"`
	IPAddress      string     `bun:"ip_address" json:"ip_address,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the session must be treated as absent.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// CreatedWithin reports whether the session was issued within the given
// duration pattern, e.g. "15m". Callers use it for step-up checks on
// sensitive operations.
func (s *Session) CreatedWithin(pattern string) (bool, error) {
	if s.CreatedAt == nil {
		return false, nil
	}
	return IsWithinThresholdPeriod(*s.CreatedAt, pattern)
}

// AuditKind enumerates the recorded security events.
type AuditKind = string

const (
	AuditRegistration AuditKind = "registration"
	AuditLoginSuccess AuditKind = "login_success"
	AuditLoginFailed  AuditKind = "login_failed"
	AuditLogout       AuditKind = "logout"
)

// AuditEvent is an append-only security event. Rows are never updated or
// deleted by this package.
type AuditEvent struct {
	bun.BaseModel `bun:"table:audit_events,alias:aud"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Kind          AuditKind      `bun:"kind,notnull" json:"kind,omitempty"`
	UserID        *uuid.UUID     `bun:"user_id,nullzero,type:uuid" json:"user_id,omitempty"`
	IPAddress     string         `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string         `bun:"user_agent" json:"user_agent,omitempty"`
	Context       map[string]any `bun:"context" json:"context,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// DeviceInfo captures the advisory fingerprint stored with sessions and
// audit events. It is never used for enforcement.
type DeviceInfo struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}
