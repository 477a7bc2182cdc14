package passwordless

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type RequestTokenMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Customer email."`
	OnResponse func(resp *RequestTokenResponse)
}

func (e RequestTokenMessage) Type() string { return "user.request_token" }

// RequestTokenResponse always reports success when the operation completed,
// registered email or not. Leaking the distinction would defeat enumeration
// safety.
type RequestTokenResponse struct {
	Success bool
}

type RequestTokenHandler struct {
	auth Authenticator
}

func NewRequestTokenHandler(auth Authenticator) *RequestTokenHandler {
	return &RequestTokenHandler{auth: auth}
}

func (h *RequestTokenHandler) Execute(ctx context.Context, event RequestTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestTokenHandler) execute(ctx context.Context, event RequestTokenMessage) error {
	resp := &RequestTokenResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := h.auth.RequestToken(ctx, event.Email); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "token request failed")
	}

	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
