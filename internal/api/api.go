package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/daimoniac/aaalint/build/swagger" // Import generated docs
	"github.com/daimoniac/aaalint/internal/analyzer"
	"github.com/daimoniac/aaalint/internal/config"
	"github.com/daimoniac/aaalint/internal/pyast"
	"github.com/daimoniac/aaalint/internal/queue"
	"github.com/daimoniac/aaalint/internal/statestore"
)

// @title aaalint API
// @version 1.0
// @description REST API for analyzing pytest code structure, querying analysis results, and managing issue tolerations.
// @description
// @description ## Features
// @description - Synchronous analysis of submitted Python test code
// @description - Query analysis records and detected AAA issues
// @description - List issue tolerations
// @description - Trigger background reanalysis of suites
// @description - Health checks and metrics

// @contact.name aaalint
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8000
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter your API key (with or without "Bearer " prefix)

// APIServer provides the HTTP surface: the synchronous /analyze endpoint the
// client talks to, plus query and trigger endpoints over the analysis history.
type APIServer struct {
	config       *config.APIConfig
	stateStore   statestore.StateStoreQuery
	taskQueue    queue.TaskQueue
	parser       *pyast.Parser
	backend      analyzer.Backend
	lintfilePath string
	router       *http.ServeMux
	server       *http.Server
	logger       *slog.Logger
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.APIConfig, store statestore.StateStoreQuery, taskQueue queue.TaskQueue, parser *pyast.Parser, backend analyzer.Backend, lintfilePath string, logger *slog.Logger) *APIServer {
	api := &APIServer{
		config:       cfg,
		stateStore:   store,
		taskQueue:    taskQueue,
		parser:       parser,
		backend:      backend,
		lintfilePath: lintfilePath,
		router:       http.NewServeMux(),
		logger:       logger,
	}

	api.setupRoutes()

	api.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second, // analyze requests block on the LLM backend
		IdleTimeout:  60 * time.Second,
	}

	return api
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Synchronous analysis endpoint used by the client CLI. Unauthenticated, the
	// original backend this mirrors served a local editor extension.
	s.router.HandleFunc("/analyze", s.corsMiddleware(s.handleAnalyze))

	// Query endpoints (GET)
	s.router.HandleFunc("/api/v1/analyses", s.corsMiddleware(s.authMiddleware(s.handleListAnalyses, false)))
	s.router.HandleFunc("/api/v1/analyses/", s.corsMiddleware(s.authMiddleware(s.handleGetAnalysis, false)))
	s.router.HandleFunc("/api/v1/issues", s.corsMiddleware(s.authMiddleware(s.handleQueryIssues, false)))
	s.router.HandleFunc("/api/v1/tolerations", s.corsMiddleware(s.authMiddleware(s.handleListTolerations, false)))
	s.router.HandleFunc("/api/v1/version", s.corsMiddleware(s.handleVersion))

	// Action endpoints (POST)
	s.router.HandleFunc("/api/v1/analyses/trigger", s.corsMiddleware(s.authMiddleware(s.handleTriggerAnalysis, true)))

	// Health and metrics
	s.router.HandleFunc("/health", s.corsMiddleware(s.handleHealth))
	s.router.HandleFunc("/metrics", s.corsMiddleware(s.handleMetrics))

	// Swagger documentation
	s.router.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Root greeting for client connectivity checks
	s.router.HandleFunc("/", s.corsMiddleware(s.handleRoot))
}

// corsMiddleware adds CORS headers to allow cross-origin requests
func (s *APIServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// authMiddleware provides optional API key authentication.
// requireWrite indicates if this is a write operation that should be blocked in read-only mode
func (s *APIServer) authMiddleware(next http.HandlerFunc, requireWrite bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requireWrite && s.config.ReadOnly {
			s.respondError(w, http.StatusForbidden, "API is in read-only mode")
			return
		}

		// If API key is configured, validate it
		if s.config.APIKey != "" {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				s.respondError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			// Accept both "Bearer <token>" and just "<token>"
			token := authHeader
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}

			if token != s.config.APIKey {
				s.respondError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}
		}

		next(w, r)
	}
}

// Start starts the API server
func (s *APIServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("API server is disabled")
		return nil
	}

	s.logger.Info("starting API server",
		"port", s.config.Port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error",
				"error", err.Error())
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down API server")
	return s.server.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the API server
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the request mux for embedding and tests
func (s *APIServer) Router() http.Handler {
	return s.router
}

// respondJSON sends a JSON response
func (s *APIServer) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("error encoding JSON response",
			"error", err.Error())
	}
}

// respondError sends an error response
func (s *APIServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseQueryParam extracts a query parameter from the request
func parseQueryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// parseQueryParamInt extracts an integer query parameter
func parseQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
		return intValue
	}
	return defaultValue
}

// parseQueryParamBool extracts a boolean query parameter
func parseQueryParamBool(r *http.Request, key string) *bool {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil
	}
	boolValue := value == "true" || value == "1" || value == "yes"
	return &boolValue
}
