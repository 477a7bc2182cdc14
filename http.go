package passwordless

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// RouteAuthenticator is the inbound request authentication gate. It is
// applied to every protected route; health checks and documentation routes
// opt out through the filter.
type RouteAuthenticator struct {
	auth         Authenticator
	cfg          Config
	Logger       Logger
	ErrorHandler func(c *fiber.Ctx, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		auth:   auther,
		cfg:    cfg,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

// ProtectedRoute admits requests carrying a live session credential. The
// algorithm: extract the bearer token, verify the signature, confirm the
// user exists, and check the session registry for liveness. Every failure
// mode collapses into the same permission denied response; which stage
// rejected the request is never observable from outside.
func (a *RouteAuthenticator) ProtectedRoute(filter func(*fiber.Ctx) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if filter != nil && filter(c) {
			return c.Next()
		}

		raw, ok := extractBearerToken(c, a.cfg.GetAuthScheme())
		if !ok {
			return a.ErrorHandler(c, ErrPermissionDenied)
		}

		identity, err := a.auth.Authorize(c.UserContext(), raw)
		if err != nil {
			return a.ErrorHandler(c, err)
		}

		c.Locals(a.cfg.GetContextKey(), identity)
		c.SetUserContext(WithIdentity(c.UserContext(), identity))

		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx, scheme string) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", false
	}

	if scheme == "" {
		return header, true
	}

	prefix := scheme + " "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Gate error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	return writeErrorEnvelope(c, richErr)
}
