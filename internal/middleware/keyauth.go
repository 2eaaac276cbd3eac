package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/inkwell/backend/internal/models"
	"github.com/inkwell/backend/internal/services"
	"github.com/inkwell/backend/pkg/logger"
	"github.com/inkwell/backend/pkg/utils"
)

const currentAPIKeyKey = "currentAPIKey"

const keyScheme = "Key "

type KeyAuthMiddleware struct {
	Keys *services.APIKeyService
}

func NewKeyAuthMiddleware(keys *services.APIKeyService) *KeyAuthMiddleware {
	return &KeyAuthMiddleware{Keys: keys}
}

// RequireScope authenticates the request via an "Authorization: Key <secret>"
// header and admits it only when the key grants at least the required scope.
// On admission the owning user and the key are attached to the request and
// last_used_at is stamped.
func (m *KeyAuthMiddleware) RequireScope(required models.KeyScope) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if !strings.HasPrefix(authHeader, keyScheme) {
			return utils.Error(c, fiber.StatusUnauthorized,
				`missing or malformed authorization header, expected "Authorization: Key <key>"`)
		}

		secret := strings.TrimSpace(authHeader[len(keyScheme):])
		if secret == "" {
			return utils.Error(c, fiber.StatusUnauthorized, "API key is empty")
		}

		key, err := m.Keys.Verify(secret)
		if err != nil {
			logger.Error("api_key_lookup_failed", err, map[string]interface{}{
				"path": c.Path(),
			})
			return utils.Error(c, fiber.StatusInternalServerError, "failed verifying API key")
		}
		if key == nil {
			return utils.Error(c, fiber.StatusUnauthorized, "invalid API key")
		}

		if !key.Active {
			return utils.Error(c, fiber.StatusForbidden, "API key has been deactivated")
		}
		if key.IsExpired() {
			return utils.Error(c, fiber.StatusForbidden, "API key has expired")
		}
		if !key.User.Active {
			return utils.Error(c, fiber.StatusForbidden, "API key belongs to an inactive account")
		}
		if !key.HasScope(required) {
			return utils.Error(c, fiber.StatusForbidden,
				fmt.Sprintf("this operation requires '%s' scope or higher", required))
		}

		c.Locals(currentUserKey, &key.User)
		c.Locals(currentAPIKeyKey, key)

		m.Keys.MarkUsed(key)

		return c.Next()
	}
}

func GetCurrentAPIKey(c *fiber.Ctx) *models.APIKey {
	value := c.Locals(currentAPIKeyKey)
	if value == nil {
		return nil
	}
	key, ok := value.(*models.APIKey)
	if !ok {
		return nil
	}
	return key
}
