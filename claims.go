package passwordless

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the claim set embedded in a signed session credential.
// The sid claim (mirrored into jti) references the SessionCredential row
// whose liveness gates every authenticated request.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID       string `json:"uid,omitempty"`
	SID       string `json:"sid,omitempty"`
	UserEmail string `json:"email,omitempty"`
}

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// CredentialID returns the session credential reference
func (c *SessionClaims) CredentialID() string {
	if c.SID != "" {
		return c.SID
	}
	return c.RegisteredClaims.ID
}

// Email returns the email the session was opened with
func (c *SessionClaims) Email() string {
	return c.UserEmail
}

// UserUUID parses the user ID claim
func (c *SessionClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID())
}

// CredentialUUID parses the credential ID claim
func (c *SessionClaims) CredentialUUID() (uuid.UUID, error) {
	return uuid.Parse(c.CredentialID())
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
