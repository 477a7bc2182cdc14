package passwordless

import "github.com/goliatone/go-errors"

const (
	TextCodeEmailConflict    = "auth_email_conflict"
	TextCodeInvalidToken     = "auth_invalid_token"
	TextCodePermissionDenied = "auth_permission_denied"
	TextCodeDeliveryFailed   = "auth_delivery_failed"
	TextCodeTokenExpired     = "auth_token_expired"
	TextCodeTokenMalformed   = "auth_token_malformed"
)

// ErrEmailConflict is returned when a registration email is already claimed.
var ErrEmailConflict = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailConflict).
	WithCode(errors.CodeConflict)

// ErrInvalidToken is returned for any failed temp token redemption. Unknown
// id, wrong email, already used and expired all collapse into this error so
// callers cannot tell which check failed.
var ErrInvalidToken = errors.New("invalid temp token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrPermissionDenied is returned for every inbound gate failure: missing or
// malformed bearer token, bad signature, unknown user, or revoked session.
var ErrPermissionDenied = errors.New("permission denied", errors.CategoryAuth).
	WithTextCode(TextCodePermissionDenied).
	WithCode(errors.CodeUnauthorized)

// ErrDeliveryFailed is returned by mailers when a token message cannot be
// dispatched. It never invalidates the token that triggered the send.
var ErrDeliveryFailed = errors.New("unable to deliver token message", errors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed).
	WithCode(errors.CodeInternal)

// ErrTokenExpired is returned by the signer when a session credential is past
// its exp claim.
var ErrTokenExpired = errors.New("session token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned by the signer for anything that fails to
// parse or verify, expiry aside.
var ErrTokenMalformed = errors.New("session token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// IsConflict will check for email conflict errors.
func IsConflict(err error) bool {
	return hasTextCode(err, TextCodeEmailConflict)
}

// IsInvalidToken will check for failed temp token redemptions.
func IsInvalidToken(err error) bool {
	return hasTextCode(err, TextCodeInvalidToken)
}

// IsPermissionDenied will check for gate rejections.
func IsPermissionDenied(err error) bool {
	return hasTextCode(err, TextCodePermissionDenied)
}

// IsDeliveryError will check for mail dispatch failures.
func IsDeliveryError(err error) bool {
	return hasTextCode(err, TextCodeDeliveryFailed)
}

// IsTokenExpiredError will check for expired session tokens.
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}
