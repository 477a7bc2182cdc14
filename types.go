package passwordless

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Authenticator holds the public auth flow operations
type Authenticator interface {
	Register(ctx context.Context, email string) (*User, error)
	RequestToken(ctx context.Context, email string) error
	Login(ctx context.Context, email, tempToken string) (string, error)
	Logout(ctx context.Context) error
	Authorize(ctx context.Context, raw string) (*Identity, error)
}

// Mailer delivers token messages. Send failures are reported as delivery
// errors and never roll back the token that triggered them.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetTempTokenExpiration() time.Duration
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
}

// SimpleConfig is a plain Config carrier for embedding applications and
// tests. Zero fields fall back to sane defaults.
type SimpleConfig struct {
	SigningKey          string
	SigningMethod       string
	ContextKey          string
	TokenExpiration     int
	TempTokenExpiration time.Duration
	AuthScheme          string
	Issuer              string
	Audience            []string
}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c SimpleConfig) GetSigningMethod() string {
	if c.SigningMethod == "" {
		return "HS256"
	}
	return c.SigningMethod
}

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "identity"
	}
	return c.ContextKey
}

func (c SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration == 0 {
		return 24
	}
	return c.TokenExpiration
}

func (c SimpleConfig) GetTempTokenExpiration() time.Duration {
	if c.TempTokenExpiration == 0 {
		return DefaultTempTokenExpiration
	}
	return c.TempTokenExpiration
}

func (c SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c SimpleConfig) GetIssuer() string { return c.Issuer }

func (c SimpleConfig) GetAudience() []string { return c.Audience }

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
