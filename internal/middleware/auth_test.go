package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/services"
	"github.com/localnerve/meddb/internal/types"
)

func testApp(validate SessionValidator) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var ce *types.CustomError
			if errors.As(err, &ce) {
				return c.Status(ce.Code).SendString(ce.Type)
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	auth := Auth{Validate: validate}
	app.Use(VersionMiddleware())
	app.Post("/members", auth.EditMember(), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user").(string))
	})
	app.Post("/committees", auth.EditCommittee(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAuthRequiresCookie(t *testing.T) {
	called := false
	app := testApp(func(*fiber.Ctx, string, []string) (interface{}, error) {
		called = true
		return "u", nil
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/members", nil))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("Expected 403, got %d", resp.StatusCode)
	}
	if called {
		t.Errorf("Expected the validator not to be called without a cookie")
	}
}

func TestAuthPassesRolesAndUser(t *testing.T) {
	var gotRoles []string
	app := testApp(func(_ *fiber.Ctx, cookie string, roles []string) (interface{}, error) {
		gotRoles = roles
		if cookie != "valid" {
			return nil, errors.New("bad session")
		}
		return "user-1", nil
	})

	req := httptest.NewRequest("POST", "/members", nil)
	req.AddCookie(&http.Cookie{Name: "cookie_session", Value: "valid"})
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if len(gotRoles) != 1 || gotRoles[0] != services.RoleEditMember {
		t.Errorf("Expected edit_member role, got %v", gotRoles)
	}
	if v := resp.Header.Get("X-Api-Version"); v != APIVersion {
		t.Errorf("Expected version header %s, got %q", APIVersion, v)
	}

	req = httptest.NewRequest("POST", "/committees", nil)
	req.AddCookie(&http.Cookie{Name: "cookie_session", Value: "expired"})
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("Expected 403 for an invalid session, got %d", resp.StatusCode)
	}
	if len(gotRoles) != 1 || gotRoles[0] != services.RoleEditCommittee {
		t.Errorf("Expected edit_udvalg role, got %v", gotRoles)
	}
}
