package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/courtbook/internal/session"
	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Pinger reports store readiness for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies carries the collaborators served over HTTP.
type Dependencies struct {
	Service *booking.Service
	Pinger  Pinger
	Logger  *zap.Logger
}

// Run serves the booking API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, dependencies Dependencies) error {
	router, err := NewRouter(cfg, dependencies)
	if err != nil {
		return err
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("courtbook http listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter validates cfg and builds the gin engine.
func NewRouter(cfg Config, dependencies Dependencies) (*gin.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dependencies.Service == nil {
		return nil, errors.New("booking service is required")
	}
	if dependencies.Pinger == nil {
		return nil, errors.New("store pinger is required")
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	provider, err := session.NewProvider(session.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session provider: %w", err)
	}
	handler := &httpHandler{
		logger:  logger,
		service: dependencies.Service,
		pinger:  dependencies.Pinger,
		cfg:     cfg,
	}
	return setupRouter(cfg, handler, provider), nil
}

func setupRouter(cfg Config, handler *httpHandler, provider *session.Provider) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/")
	api.Use(provider.GinMiddleware())

	api.GET("/courts", handler.handleListCourts)
	api.GET("/courts/:id", handler.handleGetCourt)
	api.GET("/slots/available", handler.handleAvailableSlots)
	api.POST("/reservations", handler.handleCreateReservation)
	api.GET("/reservations/mine", handler.handleMyReservations)

	return router
}
