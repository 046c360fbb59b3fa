package services

import (
	"context"
	"fmt"

	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pinger is a dependency the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DirectoryEndpoints checks the HTTP directories by TCP reachability of their base URLs.
// Graph is included only when configured.
func DirectoryEndpoints(cfg *config.Config) map[string]Pinger {
	endpoints := map[string]Pinger{
		"delta": utils.Endpoint{URL: cfg.DeltaURL, Timeout: cfg.DirectoryTimeout},
	}
	if cfg.GraphEnabled() {
		endpoints["graph"] = utils.Endpoint{URL: cfg.GraphURL, Timeout: cfg.DirectoryTimeout}
	}
	return endpoints
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Authorizer   string            `json:"authorizer"`
	Directories  map[string]string `json:"directories,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(format string, args ...interface{}) {
	r.Status = "unhealthy"
	msg := fmt.Sprintf(format, args...)
	if r.ErrorMessage == "" {
		r.ErrorMessage = msg
	} else {
		r.ErrorMessage += "; " + msg
	}
}

// HealthCheck probes the database, the Authorizer and every configured directory.
// A directory that is down marks the service degraded, not unhealthy.
func HealthCheck(ctx context.Context, cfg *config.Config, db *gorm.DB, directories map[string]Pinger, log *zap.Logger) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	sqlDB, err := db.DB()
	if err != nil {
		result.Database = "error"
		result.Details["database_error"] = err.Error()
		result.fail("Database connection error: %v", err)
	} else if err := sqlDB.PingContext(ctx); err != nil {
		result.Database = "unreachable"
		result.Details["database_ping_error"] = err.Error()
		result.fail("Database ping failed: %v", err)
	} else {
		result.Database = "ok"
		result.Details["database_type"] = cfg.DB.Type
		result.Details["database_name"] = cfg.DB.Database
	}

	if err := utils.PingAuthorizer(ctx, cfg.AuthzURL); err != nil {
		result.Authorizer = "unreachable"
		result.Details["authorizer_error"] = err.Error()
		result.fail("Authorizer ping failed: %v", err)
	} else {
		result.Authorizer = "ok"
		result.Details["authorizer_url"] = cfg.AuthzURL
	}

	if len(directories) > 0 {
		result.Directories = make(map[string]string, len(directories))
	}
	for name, p := range directories {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			result.Directories[name] = "unreachable"
			result.Details[name+"_error"] = err.Error()
			if result.Status == "healthy" {
				result.Status = "degraded"
			}
			continue
		}
		result.Directories[name] = "ok"
	}

	if result.Status == "healthy" {
		log.Debug("health check passed")
	} else {
		log.Warn("health check failed", zap.String("status", result.Status), zap.String("error", result.ErrorMessage))
	}
	return result
}
