package passwordless

import (
	"context"
	"text/template"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Auther orchestrates the four public auth flow operations and the inbound
// request authorization used by protected routes.
type Auther struct {
	repo            RepositoryManager
	mailer          Mailer
	tokenService    TokenService
	signingKey      []byte
	signingMethod   string
	tokenExpiration int
	tempTokenTTL    time.Duration
	issuer          string
	audience        []string
	logger          Logger
	activitySink    ActivitySink
	messageTemplate *template.Template
	siteName        string
	senderName      string
	useHashids      bool
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, mailer Mailer, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		opts.GetSigningMethod(),
		defLogger{},
	)

	return &Auther{
		repo:            repo,
		mailer:          mailer,
		tokenService:    tokenService,
		signingKey:      []byte(opts.GetSigningKey()),
		signingMethod:   opts.GetSigningMethod(),
		tokenExpiration: opts.GetTokenExpiration(),
		tempTokenTTL:    opts.GetTempTokenExpiration(),
		issuer:          opts.GetIssuer(),
		audience:        opts.GetAudience(),
		logger:          defLogger{},
		activitySink:    noopActivitySink{},
		messageTemplate: template.Must(template.New("token_message").Parse(DefaultMessageTemplate)),
		siteName:        "this site",
		senderName:      "The team",
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	// Update the TokenService logger as well
	s.tokenService = NewTokenService(
		s.signingKey,
		s.tokenExpiration,
		s.issuer,
		s.audience,
		s.signingMethod,
		logger,
	)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTokenService sets a custom token service for signing and validation.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	s.tokenService = ts
	return s
}

// WithMessageTemplate overrides the token message body template.
func (s *Auther) WithMessageTemplate(tpl *template.Template) *Auther {
	if tpl != nil {
		s.messageTemplate = tpl
	}
	return s
}

// WithSiteInfo sets the site and sender names used in token messages.
func (s *Auther) WithSiteInfo(site, sender string) *Auther {
	if site != "" {
		s.siteName = site
	}
	if sender != "" {
		s.senderName = sender
	}
	return s
}

// WithHashidIDs derives new user ids deterministically from their email.
func (s *Auther) WithHashidIDs() *Auther {
	s.useHashids = true
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Register creates a user with a single main email, issues a temp token,
// and emails the token value. The token never travels in the return value;
// the mailbox is the only channel. Delivery failures are logged and do not
// undo registration.
func (s *Auther) Register(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)

	var user *User
	var token *TempToken

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		var opts []UserOption
		if s.useHashids {
			opts = append(opts, WithHashidID(email))
		}

		if user, err = s.repo.Users().CreateWithEmailTx(ctx, tx, email, opts...); err != nil {
			return err
		}

		if token, err = s.repo.TempTokens().IssueTx(ctx, tx, user); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		if IsConflict(err) {
			s.logger.Info("Register rejected, email already claimed", "email", email)
			return nil, ErrEmailConflict
		}
		s.logger.Error("Register failed", "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration failed")
	}

	s.deliverToken(ctx, email, token)
	s.emitAuthEvent(ctx, ActivityEventRegisterSuccess, user.ID.String(), email, nil)

	return user, nil
}

// RequestToken issues and emails a fresh temp token for a registered email.
// It is enumeration safe: an unknown email is a silent no-op returning the
// same nil error, so the response never reveals whether an account exists.
func (s *Auther) RequestToken(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := s.repo.Users().GetByMainEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Debug("RequestToken for unknown email", "email", email)
			return nil
		}
		s.logger.Error("RequestToken lookup failed", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "token request failed")
	}

	token, err := s.repo.TempTokens().Issue(ctx, user)
	if err != nil {
		s.logger.Error("RequestToken issue failed", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "token request failed")
	}

	s.deliverToken(ctx, email, token)
	s.emitAuthEvent(ctx, ActivityEventTokenRequested, user.ID.String(), email, nil)

	return nil
}

// Login exchanges an unused temp token for a signed session credential. Any
// consume failure surfaces as ErrInvalidToken; callers cannot tell a wrong
// id from a spent token from a mismatched email.
func (s *Auther) Login(ctx context.Context, email, tempToken string) (string, error) {
	email = NormalizeEmail(email)

	tokenID, err := parseTokenID(tempToken)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, "", email, map[string]any{
			"error": ErrInvalidToken.Message,
		})
		return "", ErrInvalidToken
	}

	token, err := s.repo.TempTokens().Consume(ctx, tokenID, email, s.tempTokenTTL)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			s.logger.Error("Login consume failed", "error", err)
		}
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, "", email, map[string]any{
			"error": ErrInvalidToken.Message,
		})
		return "", ErrInvalidToken
	}

	user, err := s.repo.Users().GetByID(ctx, token.UserID.String())
	if err != nil {
		s.logger.Error("Login user lookup failed", "error", err)
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "login failed")
	}

	credential, err := s.repo.Sessions().Open(ctx, user)
	if err != nil {
		s.logger.Error("Login session open failed", "error", err)
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "login failed")
	}

	signed, err := s.tokenService.Sign(s.newSessionClaims(user, credential, email))
	if err != nil {
		s.logger.Error("Login signing failed", "error", err)
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "login failed")
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, user.ID.String(), email, map[string]any{
		"credential_id": credential.ID.String(),
	})

	return signed, nil
}

// Logout revokes the session credential the call was authenticated with.
// Other sessions of the same user stay logged in. The identity must have
// been placed in the context by the gate.
func (s *Auther) Logout(ctx context.Context) error {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return ErrPermissionDenied
	}

	if err := s.repo.Sessions().Revoke(ctx, identity.CredentialID); err != nil {
		s.logger.Error("Logout revoke failed", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "logout failed")
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, identity.UserID.String(), identity.Email, map[string]any{
		"credential_id": identity.CredentialID.String(),
	})

	return nil
}

// Authorize vets a raw bearer token: signature, user existence, and session
// liveness. Every failure mode collapses into ErrPermissionDenied.
func (s *Auther) Authorize(ctx context.Context, raw string) (*Identity, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Debug("Authorize token validation failed", "error", err)
		return nil, ErrPermissionDenied
	}

	userID, err := claims.UserUUID()
	if err != nil {
		return nil, ErrPermissionDenied
	}

	credentialID, err := claims.CredentialUUID()
	if err != nil {
		return nil, ErrPermissionDenied
	}

	if _, err := s.repo.Users().GetByID(ctx, userID.String()); err != nil {
		if !repository.IsRecordNotFound(err) {
			s.logger.Error("Authorize user lookup failed", "error", err)
		}
		return nil, ErrPermissionDenied
	}

	active, err := s.repo.Sessions().IsActive(ctx, credentialID, userID)
	if err != nil {
		s.logger.Error("Authorize liveness check failed", "error", err)
		return nil, ErrPermissionDenied
	}
	if !active {
		return nil, ErrPermissionDenied
	}

	return &Identity{
		UserID:       userID,
		CredentialID: credentialID,
		Email:        claims.Email(),
	}, nil
}

func (s *Auther) newSessionClaims(user *User, credential *SessionCredential, email string) *SessionClaims {
	now := time.Now()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	return &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        credential.ID.String(),
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.tokenExpiration) * time.Hour)),
		},
		UID:       user.ID.String(),
		SID:       credential.ID.String(),
		UserEmail: email,
	}
}

func (s *Auther) deliverToken(ctx context.Context, email string, token *TempToken) {
	body, err := renderTokenMessage(s.messageTemplate, MessageParams{
		Email:           email,
		SiteName:        s.siteName,
		Token:           token.ID.String(),
		TokenExpiration: s.tempTokenTTL,
		SenderName:      s.senderName,
	})
	if err != nil {
		s.logger.Error("deliverToken render failed", "error", err)
		return
	}

	subject := "Your login token for " + s.siteName

	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		// the token stays valid, delivery is retryable by outer policy
		s.logger.Error("deliverToken dispatch failed", "error", err, "email", email)
		s.emitAuthEvent(ctx, ActivityEventDeliveryFailure, "", email, map[string]any{
			"error": err.Error(),
		})
	}
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, userID, email string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
