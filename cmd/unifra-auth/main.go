package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/unifra/unifra-auth/internal/config"
	httpserver "github.com/unifra/unifra-auth/internal/http"
	"github.com/unifra/unifra-auth/internal/http/middleware"
	"github.com/unifra/unifra-auth/internal/notification"
	"github.com/unifra/unifra-auth/pkg/auth"
	"github.com/unifra/unifra-auth/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	// Initialize repositories
	accountsRepo := repository.NewAccountsRepository(db)
	credsRepo := repository.NewCredentialsRepository(db)
	identitiesRepo := repository.NewIdentitiesRepository(db)
	sessionsRepo := repository.NewSessionsRepository(db)
	resetCodesRepo := repository.NewResetCodesRepository(db)
	uploadsRepo := repository.NewUploadsRepository(db)
	analysesRepo := repository.NewAnalysesRepository(db)

	// Initialize services
	registry := auth.NewUsernameRegistry(accountsRepo)
	sessionService := auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		JWTSecret:       []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
	}, sessionsRepo, accountsRepo)

	// Guest purge removes dependent records before the account row.
	guestService := auth.NewGuestService(
		cfg.GuestTTL,
		accountsRepo,
		sessionsRepo,
		registry,
		[]auth.AccountDataPurger{uploadsRepo, analysesRepo, resetCodesRepo},
		logger,
	)

	// Initialize provider verifiers if configured
	var verifiers []auth.Verifier
	if cfg.HasGoogleOAuth() {
		verifiers = append(verifiers, auth.NewGoogleVerifier(auth.GoogleConfig{
			ClientID:        cfg.GoogleClientID,
			MobileClientIDs: cfg.GoogleMobileClientIDs,
		}))
		logger.Info("Google sign-in enabled")
	}
	if cfg.HasEmergentOAuth() {
		verifiers = append(verifiers, auth.NewEmergentVerifier(cfg.EmergentSessionDataURL))
		logger.Info("Emergent sign-in enabled")
	}

	authService := auth.NewAuthService(
		accountsRepo,
		credsRepo,
		identitiesRepo,
		registry,
		guestService,
		sessionService,
		verifiers,
		logger,
	)

	// Initialize email service if configured; without SMTP the reset
	// service logs codes instead of sending them.
	var sender auth.CodeSender
	if cfg.HasSMTP() {
		sender = notification.NewEmailService(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		logger.Info("email service enabled")
	}

	resetService := auth.NewResetService(
		cfg.ResetCodeTTL,
		accountsRepo,
		credsRepo,
		resetCodesRepo,
		sessionService,
		sender,
		logger,
	)

	// Start guest expiry sweeper
	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := auth.NewSweeper(cfg.GuestSweepInterval, guestService, logger)
	go sweeper.Run(sweeperCtx)

	// Create router
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          logger,
		AuthService:     authService,
		ResetService:    resetService,
		SessionService:  sessionService,
		Registry:        registry,
		Accounts:        accountsRepo,
		SecurityHeaders: middleware.DefaultSecurityHeaders(),
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Stop the sweeper before the server drains
	stopSweeper()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
