package kyc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// SessionRequest carries what the identity provider needs to open a
// verification session for a user.
type SessionRequest struct {
	UserID    uuid.UUID
	Email     string
	ReturnURL string
}

// ProviderSession is the provider's answer to a session request.
type ProviderSession struct {
	SessionID string
	HostedURL string
}

// IdentityProvider creates hosted verification sessions.
type IdentityProvider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error)
}

// IdentityProviderFunc adapts a function to the IdentityProvider interface.
type IdentityProviderFunc func(ctx context.Context, req SessionRequest) (*ProviderSession, error)

// CreateSession implements IdentityProvider.
func (f IdentityProviderFunc) CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error) {
	return f(ctx, req)
}

// StartLimiter throttles session creation per user.
type StartLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (bool, time.Duration, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] KYC "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] KYC "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] KYC "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] KYC "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
