package passwordless

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Sessions interface {
	repository.Repository[*SessionCredential]

	Open(ctx context.Context, user *User) (*SessionCredential, error)
	OpenTx(ctx context.Context, tx bun.IDB, user *User) (*SessionCredential, error)

	IsActive(ctx context.Context, credentialID, userID uuid.UUID) (bool, error)
	Revoke(ctx context.Context, credentialID uuid.UUID) error
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

type sessions struct {
	repository.Repository[*SessionCredential]
	db *bun.DB
}

var (
	_ Sessions                                  = (*sessions)(nil)
	_ repository.Repository[*SessionCredential] = (*sessions)(nil)
)

func NewSessionsRepository(db *bun.DB) Sessions {
	repo := repository.NewRepository[*SessionCredential](db, repository.ModelHandlers[*SessionCredential]{
		NewRecord: func() *SessionCredential { return &SessionCredential{} },
		GetID: func(s *SessionCredential) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *SessionCredential, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
	})

	return &sessions{
		Repository: repo,
		db:         db,
	}
}

func (a *sessions) Open(ctx context.Context, user *User) (*SessionCredential, error) {
	return a.OpenTx(ctx, a.db, user)
}

// OpenTx creates a new active credential. Users may hold arbitrarily many
// active credentials at once (multi-device login).
func (a *sessions) OpenTx(ctx context.Context, tx bun.IDB, user *User) (*SessionCredential, error) {
	credential := &SessionCredential{
		ID:     uuid.New(),
		UserID: &user.ID,
		Active: true,
	}

	return a.Repository.CreateTx(ctx, tx, credential)
}

// IsActive reports whether the credential exists, is active, and belongs to
// the claimed user. The ownership check keeps cross-user credential-id
// guessing from passing the gate.
func (a *sessions) IsActive(ctx context.Context, credentialID, userID uuid.UUID) (bool, error) {
	return a.db.NewSelect().
		Model((*SessionCredential)(nil)).
		Where("?TableAlias.id = ?", credentialID).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.active = ?", true).
		Exists(ctx)
}

// Revoke marks the credential inactive. Revoking an already revoked or
// unknown credential is a no-op.
func (a *sessions) Revoke(ctx context.Context, credentialID uuid.UUID) error {
	now := time.Now()
	_, err := a.db.NewUpdate().
		Model((*SessionCredential)(nil)).
		Set("active = ?", false).
		Set("revoked_at = ?", now).
		Where("?TableAlias.id = ?", credentialID).
		Where("?TableAlias.active = ?", true).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session credential")
	}

	return nil
}

// RevokeAll deactivates every active credential owned by the user.
func (a *sessions) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	now := time.Now()
	_, err := a.db.NewUpdate().
		Model((*SessionCredential)(nil)).
		Set("active = ?", false).
		Set("revoked_at = ?", now).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.active = ?", true).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session credentials")
	}

	return nil
}
