package passwordless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app    *fiber.App
	auther *Auther
	mailer *capturingMailer
	repo   RepositoryManager
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := setupTestRepo(t)
	mailer := &capturingMailer{}
	cfg := newTestConfig()
	auther := NewAuthenticator(repo, mailer, cfg)

	gate, err := NewHTTPAuthenticator(auther, cfg)
	require.NoError(t, err)

	app := fiber.New()
	RegisterAuthRoutes(app, gate)

	app.Get("/healthz", gate.ProtectedRoute(func(c *fiber.Ctx) bool {
		return c.Path() == "/healthz"
	}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/me", gate.ProtectedRoute(nil), func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c.UserContext())
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.JSON(fiber.Map{
			"user_id": identity.UserID.String(),
			"email":   identity.Email,
		})
	})

	return &testServer{app: app, auther: auther, mailer: mailer, repo: repo}
}

func (s *testServer) postJSON(t *testing.T, path string, body any, headers ...string) *http.Response {
	t.Helper()

	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (s *testServer) get(t *testing.T, path string, headers ...string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestEndToEndLoginFlow(t *testing.T) {
	srv := setupTestServer(t)

	// register; the response is a bare acknowledgment
	resp := srv.postJSON(t, "/auth/register", fiber.Map{"email": "a@x.com"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var ack SuccessEnvelope
	decodeBody(t, resp, &ack)
	assert.NotEmpty(t, ack.RequestID)
	assert.Nil(t, ack.Data, "the token must never travel in the response body")

	// the token is in the mailbox
	tempToken := tokenFromMessage(t, srv.mailer.last(t))

	// exchange it for a session credential
	resp = srv.postJSON(t, "/auth/login", fiber.Map{"email": "a@x.com", "temp_token": tempToken})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var login SuccessEnvelope
	decodeBody(t, resp, &login)
	data, ok := login.Data.(map[string]any)
	require.True(t, ok)
	credential, _ := data["token"].(string)
	require.NotEmpty(t, credential)

	bearer := "Bearer " + credential

	// the credential admits protected calls and resolves the user
	resp = srv.get(t, "/me", fiber.HeaderAuthorization, bearer)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var me map[string]any
	decodeBody(t, resp, &me)
	assert.Equal(t, "a@x.com", me["email"])
	assert.NotEmpty(t, me["user_id"])

	// logout revokes the session used for the call
	resp = srv.postJSON(t, "/auth/logout", nil, fiber.HeaderAuthorization, bearer)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// the same credential no longer passes the gate
	resp = srv.get(t, "/me", fiber.HeaderAuthorization, bearer)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var denied ErrorEnvelope
	decodeBody(t, resp, &denied)
	assert.Equal(t, TextCodePermissionDenied, denied.Error.TextCode)
}

func TestRequestTokenRouteIsEnumerationSafe(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.postJSON(t, "/auth/register", fiber.Map{"email": "known@x.com"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	sent := srv.mailer.count()

	// unknown email: success envelope, no message, no token
	resp = srv.postJSON(t, "/auth/request-token", fiber.Map{"email": "unknown@x.com"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var unknownAck SuccessEnvelope
	decodeBody(t, resp, &unknownAck)
	assert.NotEmpty(t, unknownAck.RequestID)
	assert.Equal(t, sent, srv.mailer.count())

	// known email: identical envelope shape, one more message
	resp = srv.postJSON(t, "/auth/request-token", fiber.Map{"email": "known@x.com"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var knownAck SuccessEnvelope
	decodeBody(t, resp, &knownAck)
	assert.NotEmpty(t, knownAck.RequestID)
	assert.Equal(t, sent+1, srv.mailer.count())
}

func TestRegisterRouteConflict(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.postJSON(t, "/auth/register", fiber.Map{"email": "a@x.com"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = srv.postJSON(t, "/auth/register", fiber.Map{"email": "a@x.com"})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var envelope ErrorEnvelope
	decodeBody(t, resp, &envelope)
	assert.Equal(t, TextCodeEmailConflict, envelope.Error.TextCode)
}

func TestRegisterRouteValidation(t *testing.T) {
	srv := setupTestServer(t)

	for name, body := range map[string]fiber.Map{
		"missing email": {},
		"not an email":  {"email": "not-an-email"},
	} {
		t.Run(name, func(t *testing.T) {
			resp := srv.postJSON(t, "/auth/register", body)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestLoginRouteInvalidToken(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.postJSON(t, "/auth/register", fiber.Map{"email": "a@x.com"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = srv.postJSON(t, "/auth/login", fiber.Map{
		"email":      "a@x.com",
		"temp_token": "00000000-0000-0000-0000-000000000001",
	})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var envelope ErrorEnvelope
	decodeBody(t, resp, &envelope)
	assert.Equal(t, TextCodeInvalidToken, envelope.Error.TextCode)
}

func TestGateCompleteness(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.postJSON(t, "/auth/register", fiber.Map{"email": "a@x.com"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	tempToken := tokenFromMessage(t, srv.mailer.last(t))

	resp = srv.postJSON(t, "/auth/login", fiber.Map{"email": "a@x.com", "temp_token": tempToken})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var login SuccessEnvelope
	decodeBody(t, resp, &login)
	credential := login.Data.(map[string]any)["token"].(string)

	// sign a structurally valid token for a user this store does not know
	foreignRepo := setupTestRepo(t)
	foreignAuther := NewAuthenticator(foreignRepo, &capturingMailer{}, newTestConfig())
	foreignUser, err := foreignAuther.Register(context.Background(), "ghost@x.com")
	require.NoError(t, err)
	ghostToken, err := srv.auther.TokenService().Sign(srv.auther.newSessionClaims(
		foreignUser, &SessionCredential{ID: foreignUser.ID}, "ghost@x.com"))
	require.NoError(t, err)

	identity, err := srv.auther.Authorize(context.Background(), credential)
	require.NoError(t, err)
	require.NoError(t, srv.repo.Sessions().Revoke(context.Background(), identity.CredentialID))

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic abc"},
		{"malformed token", "Bearer not.a.jwt"},
		{"nonexistent user", "Bearer " + ghostToken},
		{"revoked credential", "Bearer " + credential},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var headers []string
			if tc.header != "" {
				headers = []string{fiber.HeaderAuthorization, tc.header}
			}
			resp := srv.get(t, "/me", headers...)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

			var envelope ErrorEnvelope
			decodeBody(t, resp, &envelope)
			assert.Equal(t, TextCodePermissionDenied, envelope.Error.TextCode)
		})
	}
}

func TestGateFilterAllowList(t *testing.T) {
	srv := setupTestServer(t)

	// no credential needed on the allow-listed route
	resp := srv.get(t, "/healthz")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestLogoutIsScopedToCallingSession(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.postJSON(t, "/auth/register", fiber.Map{"email": "a@x.com"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	bearers := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		if i > 0 {
			resp = srv.postJSON(t, "/auth/request-token", fiber.Map{"email": "a@x.com"})
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
		}
		tempToken := tokenFromMessage(t, srv.mailer.last(t))
		resp = srv.postJSON(t, "/auth/login", fiber.Map{"email": "a@x.com", "temp_token": tempToken})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var login SuccessEnvelope
		decodeBody(t, resp, &login)
		bearers = append(bearers, fmt.Sprintf("Bearer %s", login.Data.(map[string]any)["token"]))
	}

	resp = srv.postJSON(t, "/auth/logout", nil, fiber.HeaderAuthorization, bearers[0])
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = srv.get(t, "/me", fiber.HeaderAuthorization, bearers[0])
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = srv.get(t, "/me", fiber.HeaderAuthorization, bearers[1])
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
