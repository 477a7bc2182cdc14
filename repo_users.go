package passwordless

import (
	"context"
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]

	EmailExists(ctx context.Context, address string) (bool, error)
	EmailExistsTx(ctx context.Context, tx bun.IDB, address string) (bool, error)

	CreateWithEmail(ctx context.Context, address string, opts ...UserOption) (*User, error)
	CreateWithEmailTx(ctx context.Context, tx bun.IDB, address string, opts ...UserOption) (*User, error)

	GetByMainEmail(ctx context.Context, address string) (*User, error)
	GetByMainEmailTx(ctx context.Context, tx bun.IDB, address string) (*User, error)
}

// UserOption mutates a user record before insertion.
type UserOption func(*User)

// WithHashidID derives the user id deterministically from the address.
func WithHashidID(address string) UserOption {
	return func(u *User) {
		if id, err := hashid.NewUUID(address); err == nil {
			u.ID = id
		}
	}
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

// NormalizeEmail lowercases and trims an address; all lookups and inserts go
// through it so the global uniqueness constraint is case-insensitive.
func NormalizeEmail(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// isUniqueViolation matches the duplicate-key errors of the sqlite, postgres
// and mysql drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}

func (a *users) EmailExists(ctx context.Context, address string) (bool, error) {
	return a.EmailExistsTx(ctx, a.db, address)
}

func (a *users) EmailExistsTx(ctx context.Context, tx bun.IDB, address string) (bool, error) {
	return tx.NewSelect().
		Model((*UserEmail)(nil)).
		Where("?TableAlias.address = ?", NormalizeEmail(address)).
		Exists(ctx)
}

func (a *users) CreateWithEmail(ctx context.Context, address string, opts ...UserOption) (*User, error) {
	var user *User
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = a.CreateWithEmailTx(ctx, tx, address, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateWithEmailTx creates a user owning a single main email. The unique
// constraint on user_emails.address is what closes the check-then-insert
// race; the explicit existence check only provides the friendly error.
func (a *users) CreateWithEmailTx(ctx context.Context, tx bun.IDB, address string, opts ...UserOption) (*User, error) {
	address = NormalizeEmail(address)

	exists, err := a.EmailExistsTx(ctx, tx, address)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
	}
	if exists {
		return nil, ErrEmailConflict
	}

	user := &User{}
	for _, opt := range opts {
		if opt != nil {
			opt(user)
		}
	}

	user, err = a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
	}

	email := &UserEmail{
		ID:      uuid.New(),
		UserID:  &user.ID,
		Address: address,
		Main:    true,
	}

	if _, err := tx.NewInsert().Model(email).Exec(ctx); err != nil {
		// lost the race to the unique constraint
		if isUniqueViolation(err) {
			return nil, ErrEmailConflict
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user email")
	}

	user.Emails = append(user.Emails, email)

	return user, nil
}

func (a *users) GetByMainEmail(ctx context.Context, address string) (*User, error) {
	return a.GetByMainEmailTx(ctx, a.db, address)
}

func (a *users) GetByMainEmailTx(ctx context.Context, tx bun.IDB, address string) (*User, error) {
	address = NormalizeEmail(address)

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Relation("Emails").
		Join(`JOIN user_emails AS uem ON uem.user_id = usr.id`).
		Where("uem.address = ?", address).
		Where("uem.is_main = ?", true).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"address": address,
				})
		}
		return nil, err
	}

	return record, nil
}
