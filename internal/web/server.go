// Package web serves the HTTP API.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/securevote/backend/internal/config"
	"github.com/securevote/backend/internal/election"
	"github.com/securevote/backend/internal/ledger"
	"github.com/securevote/backend/internal/voting"
	"github.com/securevote/backend/internal/web/handlers"
	"github.com/securevote/backend/internal/web/middleware"
)

// Server represents the web server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
}

// Deps are the collaborators the API surface is built from.
type Deps struct {
	Config       *config.Config
	Service      *election.Service
	Orchestrator *voting.Orchestrator
	Gateway      *ledger.EthereumGateway
	Extractor    handlers.Extractor
}

// NewServer creates a new web server.
func NewServer(deps Deps, port int, host string) *Server {
	r := chi.NewRouter()

	s := &Server{router: r}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))
	r.Use(middleware.CORS())

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes(deps Deps) {
	voterHandler := handlers.NewVoterHandler(deps.Service, deps.Extractor)
	voteHandler := handlers.NewVoteHandler(deps.Config, deps.Orchestrator)
	statsHandler := handlers.NewStatsHandler(deps.Service)
	ledgerHandler := handlers.NewLedgerHandler(deps.Gateway, deps.Config)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Post("/register-voter", voterHandler.Register)
		r.Post("/authenticate-voter", voterHandler.Authenticate)
		r.Post("/similar-voters", voterHandler.Similar)
		r.Post("/cast-vote", voteHandler.CastVote)
		r.Get("/candidates", voteHandler.Candidates)
		r.Get("/voter-stats", statsHandler.Stats)
		r.Post("/configure-ledger", ledgerHandler.Configure)
		r.Get("/ledger-status", ledgerHandler.Status)
		r.Get("/ledger-results", ledgerHandler.Results)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
