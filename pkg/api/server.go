// Package api exposes the skill service over HTTP. It serves JSON endpoints
// for searching skills, fetching a single skill, listing sources and
// reporting health.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/service"
)

// Server is the REST front end of the skill service
type Server struct {
	router  *mux.Router
	service service.SkillServiceInterface
	config  *ServerConfig
	server  *http.Server
}

// ServerConfig holds the configuration for the HTTP server
type ServerConfig struct {
	Host string
	Port int
	// AllowedOrigin is sent as Access-Control-Allow-Origin; defaults to "*"
	AllowedOrigin string
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// NewServer creates a server routing requests to svc. The caller keeps
// ownership of svc.
func NewServer(svc service.SkillServiceInterface, config *ServerConfig) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}
	if config.AllowedOrigin == "" {
		config.AllowedOrigin = "*"
	}

	s := &Server{
		router:  mux.NewRouter(),
		service: svc,
		config:  config,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/sources", s.handleSources).Methods("GET")
	s.router.HandleFunc("/sources/refresh", s.handleRefresh).Methods("POST")
	s.router.HandleFunc("/search", s.handleSearchGet).Methods("GET")
	s.router.HandleFunc("/search", s.handleSearchPost).Methods("POST")
	s.router.HandleFunc("/skills/{owner}/{repo}/{id:.+}", s.handleGetSkill).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorResponse(w, r, http.StatusNotFound, "not found", nil)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorResponse(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
	})
}

// Handler returns the routed handler with all middleware applied. The
// middleware wraps the router rather than being registered on it so that
// preflight and unmatched requests pass through it too.
func (s *Server) Handler() http.Handler {
	return requestIDMiddleware(loggingMiddleware(s.corsMiddleware(s.router)))
}

// Address is the host:port the server listens on
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.G(ctx).WithField("address", s.Address()).Info("starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "HTTP server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Close stops the server immediately
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(r.Context()).WithError(err).Error("failed to encode JSON response")
	}
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		logger.G(r.Context()).WithError(err).Error(message)
	}
	s.writeJSONResponse(w, r, status, ErrorResponse{Error: message, Status: status})
}
