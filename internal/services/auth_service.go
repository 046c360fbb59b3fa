package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/authorizerdev/authorizer-go"
	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/utils"
	"go.uber.org/zap"
)

// Roles checked against the Authorizer session.
const (
	RoleEditMember    = "edit_member"
	RoleEditCommittee = "edit_udvalg"
)

var (
	authClient *authorizer.AuthorizerClient
	authOnce   sync.Once
	authErr    error
)

// IsAuthorizerInitialized returns true if the Authorizer client is initialized
func IsAuthorizerInitialized() bool {
	return authClient != nil
}

// InitAuthorizer creates the Authorizer client once. The redirect URL is taken from the
// first request that needs it.
func InitAuthorizer(cfg *config.Config, log *zap.Logger, requestProtocol, requestHost string) error {
	authOnce.Do(func() {
		if err := utils.PingAuthorizer(context.Background(), cfg.AuthzURL); err != nil {
			authErr = fmt.Errorf("authorizer ping failed: %w", err)
			return
		}

		redirectURL := fmt.Sprintf("%s://%s", requestProtocol, requestHost)
		log.Info("initializing authorizer",
			zap.String("authorizer_url", cfg.AuthzURL),
			zap.String("client_id", cfg.AuthzClientID),
			zap.String("redirect_url", redirectURL))

		client, err := authorizer.NewAuthorizerClient(cfg.AuthzClientID, cfg.AuthzURL, redirectURL, nil)
		if err != nil {
			authErr = fmt.Errorf("failed to create authorizer client: %w", err)
			return
		}
		authClient = client
	})
	return authErr
}

// ValidateSession checks the session cookie and that the user holds any of roles.
// It returns the session user.
func ValidateSession(cookie string, roles []string) (interface{}, error) {
	if authClient == nil {
		return nil, fmt.Errorf("authorizer client not initialized")
	}

	rolesPtrs := make([]*string, len(roles))
	for i := range roles {
		rolesPtrs[i] = &roles[i]
	}

	res, err := authClient.ValidateSession(&authorizer.ValidateSessionInput{
		Cookie: cookie,
		Roles:  rolesPtrs,
	})
	if err != nil {
		return nil, fmt.Errorf("session validation failed: %w", err)
	}
	if res == nil || !res.IsValid {
		return nil, fmt.Errorf("session is not valid")
	}
	return res.User, nil
}
