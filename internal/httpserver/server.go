// Package httpserver exposes the promotion step over HTTP for
// pipeline controllers that call a service instead of running the CLI.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bookverse/promotion/internal/apptrust"
	"github.com/bookverse/promotion/internal/auth"
	"github.com/bookverse/promotion/internal/promotion"
)

// Pinger is an optional health dependency (the audit Postgres trail).
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	orch     *promotion.Orchestrator
	verifier *auth.Verifier
	pinger   Pinger
	logger   *log.Logger
}

// New builds the server. verifier may be nil, which disables auth for
// local runs; pinger may be nil when no database trail is configured.
func New(orch *promotion.Orchestrator, verifier *auth.Verifier, pinger Pinger, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{orch: orch, verifier: verifier, pinger: pinger, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/promotion", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.writeAuth)
			r.Post("/advance", s.handleAdvance)
			r.Post("/rollback", s.handleRollback)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			status["ok"] = false
			status["db"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}

type advanceRequest struct {
	ApplicationKey        string   `json:"application_key"`
	Version               string   `json:"version"`
	TargetStage           string   `json:"target_stage"`
	ReleaseAllowed        bool     `json:"release_allowed"`
	ReleaseRepositoryKeys []string `json:"release_repository_keys"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := s.orch.AdvanceOneStep(r.Context(), promotion.StepRequest{
		ApplicationKey:        req.ApplicationKey,
		Version:               req.Version,
		TargetStage:           req.TargetStage,
		ReleaseAllowed:        req.ReleaseAllowed,
		ReleaseRepositoryKeys: req.ReleaseRepositoryKeys,
	})
	if err != nil {
		s.respondStepError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

type rollbackRequest struct {
	ApplicationKey string `json:"application_key"`
	Version        string `json:"version"`
	DryRun         bool   `json:"dry_run"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := s.orch.Rollback(r.Context(), promotion.RollbackRequest{
		ApplicationKey: req.ApplicationKey,
		Version:        req.Version,
		DryRun:         req.DryRun,
	})
	if err != nil {
		s.respondStepError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// respondStepError maps the error taxonomy onto status codes: bad
// caller configuration is 400, platform failures surface as 502.
func (s *Server) respondStepError(w http.ResponseWriter, err error) {
	var cfgErr *promotion.ConfigError
	if errors.As(err, &cfgErr) {
		respondError(w, http.StatusBadRequest, cfgErr.Error())
		return
	}
	var upstream *apptrust.UpstreamError
	if errors.As(err, &upstream) {
		s.logger.Printf("upstream failure: %v", err)
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.logger.Printf("step failed: %v", err)
	respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) writeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := s.verifier.VerifyRequest(r); err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
