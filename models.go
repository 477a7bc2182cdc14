package passwordless

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity root. A user owns emails, temp tokens, and session
// credentials; none of those outlive the user.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Emails        []*UserEmail   `bun:"rel:has-many,join:id=user_id" json:"emails,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// MainEmail returns the user's main email, if loaded.
// A user without a main email cannot login or receive temp tokens.
func (u *User) MainEmail() *UserEmail {
	if u == nil {
		return nil
	}
	for _, e := range u.Emails {
		if e != nil && e.Main {
			return e
		}
	}
	return nil
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// UserEmail is an email address owned by a user. Addresses are unique across
// all users; at most one email per user carries the main flag.
type UserEmail struct {
	bun.BaseModel `bun:"table:user_emails,alias:uem"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Address       string     `bun:"address,notnull,unique" json:"address,omitempty"`
	Main          bool       `bun:"is_main" json:"is_main,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// TempToken is a single-use proof of mailbox access. Its id is the literal
// value emailed to the user; the used flag flips exactly once.
type TempToken struct {
	bun.BaseModel `bun:"table:temp_tokens,alias:ttk"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Used          bool       `bun:"used,notnull,default:false" json:"used,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the token fell outside the given validity window.
// A zero ttl disables expiry.
func (t *TempToken) Expired(ttl time.Duration) bool {
	if t == nil || ttl <= 0 || t.CreatedAt == nil {
		return false
	}
	return time.Since(*t.CreatedAt) > ttl
}

// SessionCredential is the server-side record backing one issued JWT. Its id
// matches the sid/jti claims. A deactivated credential never reactivates.
type SessionCredential struct {
	bun.BaseModel `bun:"table:session_credentials,alias:sct"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Active        bool       `bun:"active,notnull,default:true" json:"active,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
}
