package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-session-system/services"
)

type stubVerifier struct {
	valid string
	seen  string
}

func (s *stubVerifier) Authenticate(_ context.Context, credential string) (services.Identity, error) {
	s.seen = credential
	if credential != s.valid {
		return services.Identity{}, services.ErrAuthentication
	}
	return services.Identity{UserID: "u1", DisplayName: "One"}, nil
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("secret", zerolog.Nop()))
	app.Get("/admin", func(c *fiber.Ctx) error { return c.SendString("ok") })

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong", "Bearer nope", fiber.StatusUnauthorized},
		{"bearer", "Bearer secret", fiber.StatusOK},
		{"raw", "secret", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestGatewayAuthRejectsAllWithoutToken(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("", zerolog.Nop()))
	app.Get("/admin", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer ")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestUserContextMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware(zerolog.Nop()))
	app.Get("/s/stats", func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		return c.JSON(fiber.Map{"user": c.Locals(UserIDLocal), "roles": roles})
	})
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/s/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/s/stats", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("X-User-Roles", "player, admin,")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"user":"u1","roles":["player","admin"]}`, string(body))
}

func newSessionApp(v CredentialVerifier) *fiber.App {
	app := fiber.New()
	app.Get("/ws", SessionAuthMiddleware(v, zerolog.Nop()), func(c *fiber.Ctx) error {
		id := c.Locals(IdentityLocal).(services.Identity)
		return c.SendString(id.UserID)
	})
	return app
}

func TestSessionAuthRequiresUpgrade(t *testing.T) {
	app := newSessionApp(&stubVerifier{valid: "good"})
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ws?token=good", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestSessionAuthCredentialSources(t *testing.T) {
	v := &stubVerifier{valid: "good"}
	app := newSessionApp(v)

	upgrade := func(target, bearer string) int {
		req := httptest.NewRequest(fiber.MethodGet, target, nil)
		req.Header.Set(fiber.HeaderConnection, "Upgrade")
		req.Header.Set(fiber.HeaderUpgrade, "websocket")
		if bearer != "" {
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUnauthorized, upgrade("/ws", ""))
	assert.Equal(t, fiber.StatusUnauthorized, upgrade("/ws?token=bad", ""))
	assert.Equal(t, fiber.StatusOK, upgrade("/ws?token=good", ""))
	assert.Equal(t, fiber.StatusOK, upgrade("/ws", "good"))

	// the query param wins over the header
	assert.Equal(t, fiber.StatusUnauthorized, upgrade("/ws?token=bad", "good"))
	assert.Equal(t, "bad", v.seen)
}
