package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gkobilansky/abgoat/internal/bucketing"
	"github.com/gkobilansky/abgoat/internal/store"
)

// DefaultMaxIterations caps the iterations a single rerandomize request may ask for.
const DefaultMaxIterations = 100000

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Logger *zap.Logger
	// Token authorizes registry writes. A random token is generated when empty.
	Token     string
	TokenFile string

	Hasher        bucketing.Hasher
	Workers       int
	TopK          int
	Iterations    int // used when a request omits iterations
	MaxIterations int
	HistogramBins int
}

type Server struct {
	store     *store.SQLiteStore
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	startTime time.Time
	logger    *zap.Logger
	opts      Options
}

func New(s *store.SQLiteStore, port int, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Hasher == nil {
		opts.Hasher = bucketing.DefaultHasher
	}
	if opts.Iterations <= 0 {
		opts.Iterations = 1000
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.HistogramBins <= 0 {
		opts.HistogramBins = bucketing.DefaultHistogramBins
	}
	token := opts.Token
	if token == "" {
		token = generateToken()
	}

	srv := &Server{
		store:     s,
		port:      port,
		token:     token,
		tokenFile: opts.TokenFile,
		router:    http.NewServeMux(),
		startTime: time.Now(),
		logger:    opts.Logger,
		opts:      opts,
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.handle("GET /health", "health", s.handleHealth)
	s.handle("GET /login", "login", s.handleLogin)
	s.router.Handle("GET /metrics", promhttp.Handler())

	// Stateless computation
	s.handle("POST /api/sample-size", "sample_size", s.handleSampleSize)
	s.handle("POST /api/significance", "significance", s.handleSignificance)
	s.handle("POST /api/rerandomize", "rerandomize", s.handleRerandomize)
	s.handle("POST /api/analyze", "analyze", s.handleAnalyze)

	// Experiment registry
	s.handle("GET /api/experiments", "experiments_list", s.handleListExperiments)
	s.handle("GET /api/experiments/{name}", "experiments_get", s.handleGetExperiment)
	s.handle("GET /api/experiments/{name}/assign", "experiments_assign", s.handleAssign)

	// Registry writes (protected)
	s.handle("POST /api/experiments/{name}/state", "experiments_state", s.requireToken(s.handleUpdateState))
	s.handle("DELETE /api/experiments/{name}", "experiments_delete", s.requireToken(s.handleDeleteExperiment))
}

func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.router.Handle(pattern, instrument(route, h))
}

func (s *Server) Start() error {
	return s.StartWithOptions(true)
}

// StartQuiet starts the server without printing startup messages
func (s *Server) StartQuiet() error {
	return s.StartWithOptions(false)
}

func (s *Server) StartWithOptions(printMessages bool) error {
	return s.ListenAndServe(context.Background(), printMessages)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, printMessages bool) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", zap.String("path", s.tokenFile), zap.Error(err))
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if printMessages {
		fmt.Println()
		fmt.Printf("abgoat running on http://localhost:%d\n", s.port)
		fmt.Printf("Authorize registry writes: http://localhost:%d/login?token=%s\n", s.port, s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}
	s.logger.Info("server listening", zap.Int("port", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Store() *store.SQLiteStore {
	return s.store
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
