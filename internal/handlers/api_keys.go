package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/inkwell/backend/internal/middleware"
	"github.com/inkwell/backend/internal/models"
	"github.com/inkwell/backend/internal/services"
	"github.com/inkwell/backend/pkg/logger"
	"github.com/inkwell/backend/pkg/utils"
	"gorm.io/gorm"
)

type APIKeyHandler struct {
	DB    *gorm.DB
	Keys  *services.APIKeyService
	Audit *services.AuditService
}

func NewAPIKeyHandler(db *gorm.DB, keys *services.APIKeyService, audit *services.AuditService) *APIKeyHandler {
	return &APIKeyHandler{DB: db, Keys: keys, Audit: audit}
}

type createAPIKeyRequest struct {
	Name        string `json:"name"`
	Scope       string `json:"scope"`
	ExpiresDays int    `json:"expiresDays"`
}

type apiKeyResponse struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	MaskedKey  string          `json:"maskedKey"`
	KeyPrefix  string          `json:"keyPrefix"`
	Scope      models.KeyScope `json:"scope"`
	Active     bool            `json:"active"`
	ExpiresAt  interface{}     `json:"expiresAt"`
	LastUsedAt interface{}     `json:"lastUsedAt"`
	CreatedAt  interface{}     `json:"createdAt"`
}

func keyResponse(key *models.APIKey) apiKeyResponse {
	resp := apiKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		MaskedKey: key.Masked(),
		KeyPrefix: key.KeyPrefix,
		Scope:     key.Scope,
		Active:    key.Active,
		CreatedAt: key.CreatedAt,
	}
	if key.ExpiresAt != nil {
		resp.ExpiresAt = key.ExpiresAt
	}
	if key.LastUsedAt != nil {
		resp.LastUsedAt = key.LastUsedAt
	}
	return resp
}

// Create issues a new key for the authenticated user. The plaintext secret
// appears in this response and nowhere else.
func (h *APIKeyHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req createAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "key name is required")
	}

	key, secret, err := h.Keys.Issue(user, name, models.KeyScope(req.Scope), req.ExpiresDays)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating API key")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "api_key_created",
		ResourceType: "api_key",
		ResourceID:   &key.ID,
		Details:      map[string]interface{}{"name": key.Name, "scope": string(key.Scope)},
		IPAddress:    c.IP(),
	})

	resp := keyResponse(key)
	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"key":    secret,
		"id":     resp.ID,
		"name":   resp.Name,
		"scope":  resp.Scope,
		"prefix": resp.KeyPrefix,
	})
}

// List returns the caller's own keys, masked.
func (h *APIKeyHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	p := utils.ParsePagination(c)

	var total int64
	h.DB.Model(&models.APIKey{}).Where("user_id = ?", user.ID).Count(&total)

	var keys []models.APIKey
	query := h.DB.Where("user_id = ?", user.ID).Order("created_at DESC")
	if err := utils.ApplyPagination(query, p).Find(&keys).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing API keys")
	}

	items := make([]apiKeyResponse, 0, len(keys))
	for i := range keys {
		items = append(items, keyResponse(&keys[i]))
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"keys":       items,
		"pagination": utils.NewPagination(p.Page, p.PerPage, total),
	})
}

// Deactivate revokes one of the caller's own keys.
func (h *APIKeyHandler) Deactivate(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	keyID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid key ID")
	}

	if err := h.Keys.Deactivate(user.ID, keyID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "API key not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed deactivating API key")
	}

	logger.InfoWithUser(user.ID.String(), "api_key_deactivated", map[string]interface{}{
		"key_id": keyID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "API key deactivated",
	})
}
