package passwordless

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type TempTokens interface {
	repository.Repository[*TempToken]

	Issue(ctx context.Context, user *User) (*TempToken, error)
	IssueTx(ctx context.Context, tx bun.IDB, user *User) (*TempToken, error)

	Consume(ctx context.Context, tokenID uuid.UUID, address string, ttl time.Duration) (*TempToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, tokenID uuid.UUID, address string, ttl time.Duration) (*TempToken, error)
}

type tempTokens struct {
	repository.Repository[*TempToken]
	db *bun.DB
}

var (
	_ TempTokens                        = (*tempTokens)(nil)
	_ repository.Repository[*TempToken] = (*tempTokens)(nil)
)

func NewTempTokensRepository(db *bun.DB) TempTokens {
	repo := repository.NewRepository[*TempToken](db, repository.ModelHandlers[*TempToken]{
		NewRecord: func() *TempToken { return &TempToken{} },
		GetID: func(t *TempToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *TempToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &tempTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *tempTokens) Issue(ctx context.Context, user *User) (*TempToken, error) {
	var token *TempToken
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		token, err = a.IssueTx(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// IssueTx mints a new unused token bound to the user's main email. Prior
// unused tokens stay valid; several may be outstanding at once.
func (a *tempTokens) IssueTx(ctx context.Context, tx bun.IDB, user *User) (*TempToken, error) {
	if !HasMainEmail(user) {
		return nil, goerrors.New("user has no main email", goerrors.CategoryInternal).
			WithMetadata(map[string]any{
				"user_id": user.ID.String(),
			})
	}
	main := user.MainEmail()

	token := &TempToken{
		ID:     uuid.New(),
		UserID: &user.ID,
		Email:  main.Address,
	}

	return a.Repository.CreateTx(ctx, tx, token)
}

func (a *tempTokens) Consume(ctx context.Context, tokenID uuid.UUID, address string, ttl time.Duration) (*TempToken, error) {
	var token *TempToken
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		token, err = a.ConsumeTx(ctx, tx, tokenID, address, ttl)
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// ConsumeTx atomically flips the used flag of a matching unused token. The
// single UPDATE with a WHERE-unused predicate is the compare-and-set that
// guarantees exactly one of N concurrent redemptions wins. Wrong id, wrong
// email, already used, expired, and email no longer main all collapse into
// the same not-found result.
func (a *tempTokens) ConsumeTx(ctx context.Context, tx bun.IDB, tokenID uuid.UUID, address string, ttl time.Duration) (*TempToken, error) {
	address = NormalizeEmail(address)
	now := time.Now()

	q := tx.NewUpdate().
		Model((*TempToken)(nil)).
		Set("used = ?", true).
		Set("used_at = ?", now).
		Where("?TableAlias.id = ?", tokenID).
		Where("?TableAlias.email = ?", address).
		Where("?TableAlias.used = ?", false)

	if ttl > 0 {
		q = q.Where("?TableAlias.created_at > ?", now.Add(-ttl))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume temp token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume temp token")
	}

	if affected == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"token_id": tokenID.String(),
			})
	}

	token := &TempToken{}
	if err := tx.NewSelect().
		Model(token).
		Where("?TableAlias.id = ?", tokenID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reload consumed token")
	}

	// the window check runs once more against the reloaded, store-assigned
	// created_at; failing it rolls the flag flip back with the tx
	if token.Expired(ttl) {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"token_id": tokenID.String(),
			})
	}

	// the address must still be the owner's main email; failing the check
	// here rolls the flag flip back with the surrounding tx
	main, err := tx.NewSelect().
		Model((*UserEmail)(nil)).
		Where("?TableAlias.user_id = ?", token.UserID).
		Where("?TableAlias.address = ?", address).
		Where("?TableAlias.is_main = ?", true).
		Exists(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify main email")
	}
	if !main {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"token_id": tokenID.String(),
			})
	}

	return token, nil
}
