package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthHandler reports service health
type HealthHandler struct {
	Config      *config.Config
	DB          *gorm.DB
	Directories map[string]services.Pinger
	Log         *zap.Logger
}

// Health handles GET /health
// @Summary Service health
// @Description Database and Authorizer must be reachable. An unreachable directory reports degraded.
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	result := services.HealthCheck(c.UserContext(), h.Config, h.DB, h.Directories, h.Log)
	status := fiber.StatusOK
	if result.Status == "unhealthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
