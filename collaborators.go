package auth

import (
	"context"
	"time"
)

// DefaultDependencyTimeout bounds every best-effort collaborator call. A
// hung dependency must not stall the primary auth decision past this.
const DefaultDependencyTimeout = 2 * time.Second

// CustomerRegistrar creates a billing-provider customer record for a new
// user. Invoked opportunistically at registration; failures are non-fatal.
type CustomerRegistrar interface {
	CreateCustomer(ctx context.Context, email, name string) (customerID string, err error)
}

// VaultClient mints an opaque session handle bound to a user and device.
// The handle is stored alongside the core's own session row and never
// interpreted here. Failures are non-fatal: the session proceeds with an
// empty handle (degraded mode).
type VaultClient interface {
	MintSession(ctx context.Context, userID string, device DeviceInfo) (handle string, err error)
}

// WelcomeMailer sends the post-registration welcome email. Failures are
// non-fatal and never block the response.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, email, name string) error
}

type noopCustomerRegistrar struct{}

func (noopCustomerRegistrar) CreateCustomer(context.Context, string, string) (string, error) {
	return "", nil
}

type noopVaultClient struct{}

func (noopVaultClient) MintSession(context.Context, string, DeviceInfo) (string, error) {
	return "", nil
}

type noopWelcomeMailer struct{}

func (noopWelcomeMailer) SendWelcome(context.Context, string, string) error {
	return nil
}

func normalizeCustomerRegistrar(c CustomerRegistrar) CustomerRegistrar {
	if c == nil {
		return noopCustomerRegistrar{}
	}
	return c
}

func normalizeVaultClient(v VaultClient) VaultClient {
	if v == nil {
		return noopVaultClient{}
	}
	return v
}

func normalizeWelcomeMailer(m WelcomeMailer) WelcomeMailer {
	if m == nil {
		return noopWelcomeMailer{}
	}
	return m
}

// withDependencyTimeout runs fn under a bounded deadline so a hung
// collaborator degrades the operation instead of stalling it.
func withDependencyTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultDependencyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
