package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/metrics"
	"autotrader/apps/autotrader/internal/repository"
	"autotrader/apps/autotrader/internal/scheduler"
)

// Runner is the part of the scheduler exposed to admins.
type Runner interface {
	Tick(ctx context.Context) (scheduler.TickReport, error)
	Sweep(ctx context.Context) (int, error)
}

type Deps struct {
	Users     repository.UserStore
	Wallets   repository.WalletStore
	Intents   repository.IntentStore
	Scheduler Runner
	Metrics   *metrics.Metrics
}

// Server represents the API server used by the front-end
type Server struct {
	userHandler   *UserHandler
	intentHandler *IntentHandler
	adminHandler  *AdminHandler
	auth          *Authenticator
	metrics       *metrics.Metrics
	logger        *zap.Logger
	server        *http.Server
}

// NewServer creates a new API server
func NewServer(port int, jwtSecret string, deps Deps, logger *zap.Logger) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	return &Server{
		userHandler:   NewUserHandler(deps.Users, deps.Wallets, logger),
		intentHandler: NewIntentHandler(deps.Intents, deps.Users, deps.Wallets, logger),
		adminHandler:  NewAdminHandler(deps.Scheduler, logger),
		auth:          NewAuthenticator([]byte(jwtSecret)),
		metrics:       deps.Metrics,
		logger:        logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the API server
func (s *Server) Start() error {
	s.server.Handler = s.Handler()

	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Handler builds the routed handler
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	authed := api.NewRoute().Subrouter()
	authed.Use(s.auth.Middleware)

	// Users and wallets
	authed.HandleFunc("/users", s.userHandler.CreateUser).Methods("POST")
	authed.HandleFunc("/users/{id}", s.userHandler.GetUser).Methods("GET")
	authed.HandleFunc("/users/{id}/referrer", s.userHandler.SetReferrer).Methods("PUT")
	authed.HandleFunc("/users/{id}/settings", s.userHandler.UpdateSettings).Methods("PUT")
	authed.HandleFunc("/users/{id}/wallets", s.userHandler.AddWallet).Methods("POST")
	authed.HandleFunc("/users/{id}/wallets", s.userHandler.ListWallets).Methods("GET")

	// Intents
	authed.HandleFunc("/intents", s.intentHandler.CreateIntent).Methods("POST")
	authed.HandleFunc("/users/{id}/intents", s.intentHandler.ListIntents).Methods("GET")
	authed.HandleFunc("/intents/{id}", s.intentHandler.CancelIntent).Methods("DELETE")

	admin := authed.PathPrefix("/admin").Subrouter()
	admin.Use(s.auth.RequireRole(RoleAdmin))
	admin.HandleFunc("/tick", s.adminHandler.Tick).Methods("POST")
	admin.HandleFunc("/sweep", s.adminHandler.Sweep).Methods("POST")

	return router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health check response", zap.Error(err))
	}
}
