// Package server
//
// @title RazorLinks API
// @version 1.0
// @description URL shortener with click analytics
// @host localhost:8080
// @BasePath /
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/razorquake/razorlinks/internal/assert"
	"github.com/razorquake/razorlinks/internal/auth"
	"github.com/razorquake/razorlinks/internal/config"
	"github.com/razorquake/razorlinks/internal/models"
)

// TaskEnqueuer is the part of *asynq.Client the server needs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    *config.Config
	logger    zerolog.Logger
	validator *validator.Validate
	tasks     TaskEnqueuer
	issuer    *auth.Issuer
	now       func() time.Time
	version   string
}

// New creates a new server instance on an opened, migrated database
func New(cfg *config.Config, db *gorm.DB, tasks TaskEnqueuer, zlog zerolog.Logger, version string) (*Server, error) {
	secret, err := loadJWTSecret(db, cfg.Auth.JWTSecret, zlog)
	if err != nil {
		return nil, err
	}
	issuer, err := auth.NewIssuer(secret, cfg.Auth.JWTTTL)
	if err != nil {
		return nil, err
	}

	server := &Server{
		db:        db,
		config:    cfg,
		logger:    zlog,
		validator: newValidator(),
		tasks:     tasks,
		issuer:    issuer,
		now:       time.Now,
		version:   version,
	}

	server.setupRouter()

	return server, nil
}

// loadJWTSecret prefers the configured secret, then the persisted one, and
// generates and persists a secret on first start
func loadJWTSecret(db *gorm.DB, configured string, zlog zerolog.Logger) (string, error) {
	if configured != "" {
		return configured, nil
	}

	var settings models.Settings
	err := db.First(&settings).Error
	if err == nil {
		zlog.Debug().Msg("Loaded JWT secret from database")
		return settings.JWTSecret, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to load settings: %w", err)
	}

	// 64 hex characters = 32 bytes of randomness
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	settings = models.Settings{JWTSecret: hex.EncodeToString(raw)}
	assert.Length(settings.JWTSecret, 64)
	if err := db.Create(&settings).Error; err != nil {
		return "", fmt.Errorf("failed to persist JWT secret: %w", err)
	}

	zlog.Info().Msg("Generated JWT secret")
	return settings.JWTSecret, nil
}

// newValidator registers the custom rules used by request structs
func newValidator() *validator.Validate {
	validate := validator.New()

	validate.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if len(value) == 0 || len(value) > 16 {
			return false
		}
		for _, char := range value {
			if !((char >= 'a' && char <= 'z') ||
				(char >= 'A' && char <= 'Z') ||
				(char >= '0' && char <= '9')) {
				return false
			}
		}
		return true
	})

	return validate
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// CORS middleware
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{s.config.HTTP.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint (no auth required)
	s.router.GET("/health", s.healthCheck)

	// Short link redirect (no auth required)
	s.router.GET("/:code", s.redirect)

	// Public auth endpoints (no auth required)
	public := s.router.Group("/api/auth/public")
	{
		public.POST("/register", s.register)
		public.POST("/login", s.login)
		public.POST("/verify-2fa-login", s.verifyTwoFactorLogin)
		public.GET("/verify-email", s.verifyEmail)
		public.POST("/resend-verification", s.resendVerification)
		public.POST("/forgot-password", s.forgotPassword)
		public.POST("/reset-password", s.resetPassword)
	}

	// Authenticated API routes (JWT required)
	api := s.router.Group("/api")
	api.Use(JWTAuthMiddleware(s.db, s.issuer, s.logger))
	{
		// Auth endpoints
		api.GET("/auth/user", s.getCurrentUser)
		api.GET("/auth/user/2fa-status", s.twoFactorStatus)
		api.POST("/auth/enable-2fa", s.enableTwoFactor)
		api.POST("/auth/verify-2fa", s.verifyTwoFactor)
		api.POST("/auth/disable-2fa", s.disableTwoFactor)

		// URL management
		api.GET("/urls/myurls", s.listMyURLs)
		api.POST("/urls/shorten", s.shortenURL)
		api.GET("/urls/totalClicks", s.totalClicks)
		api.GET("/urls/analytics/:code", s.urlAnalytics)
		api.GET("/urls/qr/:code", s.urlQRCode)
		api.DELETE("/urls/:code", s.deleteURL)

		// User management (admin only)
		adminRoutes := api.Group("/admin")
		adminRoutes.Use(AdminOnlyMiddleware(s.logger))
		{
			adminRoutes.GET("/get-users", s.listUsers)
			adminRoutes.GET("/user/:id", s.getUser)
			adminRoutes.PUT("/update-role", s.updateUserRole)
		}

		// Audit log (admin only)
		auditRoutes := api.Group("/audit")
		auditRoutes.Use(AdminOnlyMiddleware(s.logger))
		{
			auditRoutes.GET("", s.listAuditLogs)
			auditRoutes.GET("/urls/:id", s.listAuditLogsForURL)
		}
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// @Router /health [get]
// @Success 200 {object} map[string]interface{}
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": s.now().UTC(),
		"service":   "razorlinks-api",
		"version":   s.version,
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM
func (s *Server) Start() error {
	addr := ":" + s.config.HTTP.Port

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	case <-sigChan:
	}
	s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
