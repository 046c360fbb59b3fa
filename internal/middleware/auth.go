package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/services"
	"github.com/localnerve/meddb/internal/types"
	"go.uber.org/zap"
)

// SessionValidator validates a session cookie for the given roles and returns the user.
type SessionValidator func(c *fiber.Ctx, cookie string, roles []string) (interface{}, error)

// AuthorizerValidator validates sessions against the Authorizer service, creating the
// client on first use.
func AuthorizerValidator(cfg *config.Config, log *zap.Logger) SessionValidator {
	return func(c *fiber.Ctx, cookie string, roles []string) (interface{}, error) {
		if !services.IsAuthorizerInitialized() {
			if err := services.InitAuthorizer(cfg, log, c.Protocol(), c.Hostname()); err != nil {
				return nil, err
			}
		}
		return services.ValidateSession(cookie, roles)
	}
}

// Auth gates routes on Authorizer roles.
type Auth struct {
	Validate SessionValidator
}

// EditMember requires the edit_member role
func (a Auth) EditMember() fiber.Handler {
	return a.require([]string{services.RoleEditMember}, "authorization.edit_member")
}

// EditCommittee requires the edit_udvalg role
func (a Auth) EditCommittee() fiber.Handler {
	return a.require([]string{services.RoleEditCommittee}, "authorization.edit_udvalg")
}

func (a Auth) require(roles []string, errorType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session := c.Cookies("cookie_session")
		if session == "" {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: "Authorizer cookie \"cookie_session\" not found",
				Type:    errorType,
			}
		}

		user, err := a.Validate(c, session, roles)
		if err != nil {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: fmt.Sprintf("Invalid session: %v", err),
				Type:    errorType,
			}
		}

		c.Locals("user", user)
		return c.Next()
	}
}
