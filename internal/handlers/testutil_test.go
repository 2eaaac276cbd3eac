package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/inkwell/backend/internal/config"
	"github.com/inkwell/backend/internal/middleware"
	"github.com/inkwell/backend/internal/models"
	"github.com/inkwell/backend/internal/services"
	"github.com/inkwell/backend/pkg/logger"
	"github.com/inkwell/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	keys   *services.APIKeyService
	assets *memorySink
}

// memorySink stands in for MinIO in handler tests.
type memorySink struct {
	saved map[string][]byte
}

func (m *memorySink) SaveAsset(_ context.Context, name string, data []byte, _ string) (string, error) {
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[name] = data
	return "http://assets.test/" + name, nil
}

var (
	testSetupOnce sync.Once
	testSessions  = services.NewSessionService("test-secret", 24)
)

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.Post{},
		&models.Comment{},
		&models.AuditLog{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			FrontendURL: "http://localhost:3001",
		},
		AdminEmails: []string{"owner@inkwell.test"},
	}

	assets := &memorySink{}
	keyService := services.NewAPIKeyService(db)
	auditService := services.NewAuditService(db)
	ingestService := services.NewIngestService(db, assets)

	authHandler := NewAuthHandler(db, cfg, testSessions, auditService)
	keysHandler := NewAPIKeyHandler(db, keyService, auditService)
	postsHandler := NewPostHandler(db, ingestService, auditService)
	commentsHandler := NewCommentHandler(db, auditService)
	auditHandler := NewAuditHandler(db)
	uploadHandler := NewUploadHandler(ingestService, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db, testSessions)
	keyAuth := middleware.NewKeyAuthMiddleware(keyService)

	app := fiber.New(fiber.Config{BodyLimit: 52 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Get("/google", authHandler.GoogleLoginRedirect)
	authRoutes.Get("/google/callback", authHandler.GoogleCallback)

	keyRoutes := api.Group("/keys", authMiddleware.RequireAuth)
	keyRoutes.Post("/", keysHandler.Create)
	keyRoutes.Get("/", keysHandler.List)
	keyRoutes.Delete("/:id", keysHandler.Deactivate)

	api.Get("/posts", keyAuth.RequireScope(models.ScopeRead), postsHandler.List)
	api.Post("/posts", keyAuth.RequireScope(models.ScopeAdmin), postsHandler.Create)
	api.Get("/posts/:slug", keyAuth.RequireScope(models.ScopeRead), postsHandler.Detail)
	api.Post("/posts/:slug/comments", keyAuth.RequireScope(models.ScopeWrite), commentsHandler.Create)
	api.Delete("/comments/:id", keyAuth.RequireScope(models.ScopeWrite), commentsHandler.Delete)
	api.Get("/tags", keyAuth.RequireScope(models.ScopeRead), postsHandler.Tags)
	api.Post("/upload", keyAuth.RequireScope(models.ScopeAdmin), uploadHandler.Upload)

	api.Get("/audit", authMiddleware.RequireAuth, middleware.AdminOnly, auditHandler.List)

	return &testEnv{app: app, db: db, keys: keyService, assets: assets}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Test User",
		Role:         role,
		Active:       true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := testSessions.IssueToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestAPIKey(t *testing.T, env *testEnv, user *models.User, scope models.KeyScope) (*models.APIKey, string) {
	t.Helper()

	key, secret, err := env.keys.Issue(user, "test key", scope, 0)
	if err != nil {
		t.Fatalf("failed issuing test API key: %v", err)
	}
	return key, secret
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func keyHeaders(secret string) map[string]string {
	return map[string]string{"Authorization": "Key " + secret}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertErrorMessage(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
