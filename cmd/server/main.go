package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/inkwell/backend/internal/config"
	"github.com/inkwell/backend/internal/database"
	"github.com/inkwell/backend/internal/handlers"
	"github.com/inkwell/backend/internal/middleware"
	"github.com/inkwell/backend/internal/models"
	"github.com/inkwell/backend/internal/services"
	"github.com/inkwell/backend/internal/storage"
	"github.com/inkwell/backend/pkg/logger"
)

func main() {
	logger.Init()

	cfg := config.Load()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	keyService := services.NewAPIKeyService(db)
	sessionService := services.NewSessionService(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	auditService := services.NewAuditService(db)
	ingestService := services.NewIngestService(db, storageClient)

	authHandler := handlers.NewAuthHandler(db, cfg, sessionService, auditService)
	keysHandler := handlers.NewAPIKeyHandler(db, keyService, auditService)
	postsHandler := handlers.NewPostHandler(db, ingestService, auditService)
	commentsHandler := handlers.NewCommentHandler(db, auditService)
	auditHandler := handlers.NewAuditHandler(db)
	uploadHandler := handlers.NewUploadHandler(ingestService, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db, sessionService)
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

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
