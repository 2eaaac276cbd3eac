package handlers

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/inkwell/backend/internal/config"
	"github.com/inkwell/backend/internal/middleware"
	"github.com/inkwell/backend/internal/models"
	"github.com/inkwell/backend/internal/services"
	"github.com/inkwell/backend/pkg/logger"
	"github.com/inkwell/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB       *gorm.DB
	Cfg      *config.Config
	OAuth    *services.OAuthProviderService
	Sessions *services.SessionService
	Audit    *services.AuditService
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config, sessions *services.SessionService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{
		DB:       db,
		Cfg:      cfg,
		OAuth:    services.NewOAuthProviderService(cfg),
		Sessions: sessions,
		Audit:    audit,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return utils.Error(c, fiber.StatusBadRequest, "a valid email is required")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	var count int64
	h.DB.Model(&models.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return utils.Error(c, fiber.StatusBadRequest, "email is already registered")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         h.roleForEmail(email),
		Active:       true,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	token, err := h.Sessions.IssueToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user_registered",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"token": token,
		"user":  user,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	}
	if !user.Active {
		return utils.Error(c, fiber.StatusForbidden, "account is deactivated")
	}

	token, err := h.Sessions.IssueToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

// GoogleLoginRedirect hands the client the Google authorization URL.
func (h *AuthHandler) GoogleLoginRedirect(c *fiber.Ctx) error {
	oauthCfg, err := h.OAuth.GoogleConfig()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url": oauthCfg.AuthCodeURL(""),
	})
}

// GoogleCallback exchanges the authorization code, provisions the account,
// and redirects back to the frontend with a session token. Accounts whose
// verified email appears in ADMIN_EMAILS are promoted to admin.
func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	frontendURL := h.Cfg.Server.FrontendURL

	code := c.Query("code")
	if code == "" {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape("authorization code is required"))
	}

	token, err := h.OAuth.ExchangeCode(c.Context(), code)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape(err.Error()))
	}

	profile, err := h.OAuth.GetUserInfo(c.Context(), token)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape(err.Error()))
	}

	user, err := h.findOrCreateGoogleUser(profile)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape(err.Error()))
	}

	sessionToken, err := h.Sessions.IssueToken(user)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape("failed to generate token"))
	}

	logger.Info("google_login_success", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	return c.Redirect(frontendURL + "/auth/callback?token=" + sessionToken)
}

func (h *AuthHandler) findOrCreateGoogleUser(profile *services.GoogleProfile) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))

	var user models.User
	err := h.DB.First(&user, "email = ?", email).Error
	if err == gorm.ErrRecordNotFound {
		user = models.User{
			Email:        email,
			PasswordHash: "",
			DisplayName:  profile.Name,
			Role:         models.UserRoleUser,
			Active:       true,
		}
		if profile.VerifiedEmail {
			user.Role = h.roleForEmail(email)
		}
		if err := h.DB.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}

	// Existing accounts get promoted when the admin list grows.
	if profile.VerifiedEmail && h.roleForEmail(email) == models.UserRoleAdmin && user.Role != models.UserRoleAdmin {
		if err := h.DB.Model(&user).UpdateColumn("role", models.UserRoleAdmin).Error; err != nil {
			return nil, err
		}
		user.Role = models.UserRoleAdmin
	}

	return &user, nil
}

func (h *AuthHandler) roleForEmail(email string) models.UserRole {
	for _, adminEmail := range h.Cfg.AdminEmails {
		if strings.EqualFold(adminEmail, email) {
			return models.UserRoleAdmin
		}
	}
	return models.UserRoleUser
}
