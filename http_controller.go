package passwordless

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SuccessEnvelope is the uniform success shape of the HTTP surface.
type SuccessEnvelope struct {
	RequestID string `json:"request_id"`
	Data      any    `json:"data,omitempty"`
}

// ErrorEnvelope is the uniform failure shape of the HTTP surface.
type ErrorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message  string `json:"message"`
	TextCode string `json:"text_code,omitempty"`
}

type AuthControllerRoutes struct {
	Register     string
	RequestToken string
	Login        string
	Logout       string
}

type AuthController struct {
	auth   Authenticator
	cfg    Config
	Routes AuthControllerRoutes
	Logger Logger
}

type AuthControllerOption func(*AuthController)

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) {
		c.Logger = logger
	}
}

func WithControllerRoutes(routes AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) {
		c.Routes = routes
	}
}

func NewAuthController(auth Authenticator, cfg Config, opts ...AuthControllerOption) *AuthController {
	controller := &AuthController{
		auth:   auth,
		cfg:    cfg,
		Logger: defLogger{},
		Routes: AuthControllerRoutes{
			Register:     "/auth/register",
			RequestToken: "/auth/request-token",
			Login:        "/auth/login",
			Logout:       "/auth/logout",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(controller)
		}
	}

	return controller
}

// RegisterAuthRoutes mounts the four auth flow routes. Logout is the only
// one behind the gate; the other three are reachable anonymously.
func RegisterAuthRoutes(app fiber.Router, gate *RouteAuthenticator, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(gate.auth, gate.cfg, opts...)

	app.Post(controller.Routes.Register, controller.RegisterPost)
	app.Post(controller.Routes.RequestToken, controller.RequestTokenPost)
	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.Logout, gate.ProtectedRoute(nil), controller.LogoutPost)

	return controller
}

type RegisterPayload struct {
	Email string `json:"email"`
}

func (p RegisterPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

type RequestTokenPayload struct {
	Email string `json:"email"`
}

func (p RequestTokenPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

type LoginPayload struct {
	Email     string `json:"email"`
	TempToken string `json:"temp_token"`
}

func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.TempToken, validation.Required),
	)
}

// RegisterPost handles POST /auth/register. The issued token travels only
// through the mailbox; the response is a bare acknowledgment.
func (ctrl *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := RegisterPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return ctrl.respondError(c, err)
	}

	if _, err := ctrl.auth.Register(c.UserContext(), payload.Email); err != nil {
		return ctrl.respondError(c, err)
	}

	return respondSuccess(c, fiber.StatusCreated, nil)
}

// RequestTokenPost handles POST /auth/request-token. The response shape is
// identical whether or not the email is registered.
func (ctrl *AuthController) RequestTokenPost(c *fiber.Ctx) error {
	payload := RequestTokenPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return ctrl.respondError(c, err)
	}

	if err := ctrl.auth.RequestToken(c.UserContext(), payload.Email); err != nil {
		return ctrl.respondError(c, err)
	}

	return respondSuccess(c, fiber.StatusOK, nil)
}

// LoginPost handles POST /auth/login, exchanging a temp token for a signed
// session credential.
func (ctrl *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := LoginPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return ctrl.respondError(c, err)
	}

	token, err := ctrl.auth.Login(c.UserContext(), payload.Email, payload.TempToken)
	if err != nil {
		return ctrl.respondError(c, err)
	}

	return respondSuccess(c, fiber.StatusOK, fiber.Map{
		"token": token,
	})
}

// LogoutPost handles POST /auth/logout. The gate has already authenticated
// the call and put the identity in the request context; only the session
// used to make this call is revoked.
func (ctrl *AuthController) LogoutPost(c *fiber.Ctx) error {
	if _, ok := IdentityFromContext(c.UserContext()); !ok {
		return ctrl.respondError(c, ErrPermissionDenied)
	}

	if err := ctrl.auth.Logout(c.UserContext()); err != nil {
		return ctrl.respondError(c, err)
	}

	return respondSuccess(c, fiber.StatusOK, nil)
}

type validatable interface {
	Validate() error
}

func parsePayload(c *fiber.Ctx, payload validatable) error {
	if err := c.BodyParser(payload); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "unable to parse request body").
			WithCode(errors.CodeBadRequest)
	}

	if err := payload.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid request payload").
			WithCode(errors.CodeBadRequest)
	}

	return nil
}

func (ctrl *AuthController) respondError(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	ctrl.Logger.Info(
		"Controller error",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	return writeErrorEnvelope(c, richErr)
}

func respondSuccess(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessEnvelope{
		RequestID: uuid.New().String(),
		Data:      data,
	})
}

func writeErrorEnvelope(c *fiber.Ctx, richErr *errors.Error) error {
	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(ErrorEnvelope{
		RequestID: uuid.New().String(),
		Error: ErrorBody{
			Message:  richErr.Message,
			TextCode: richErr.TextCode,
		},
	})
}
