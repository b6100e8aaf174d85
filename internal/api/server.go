// Package api exposes the opt-out surface over HTTP: the one-click
// unsubscribe endpoint linked from every outgoing email and a small JSON API
// for programmatic opt-outs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"luach/internal/optout"
	"luach/internal/types"
)

// DigestUnsubscriber removes a digest subscriber. Satisfied by
// db.DigestRepository.
type DigestUnsubscriber interface {
	Unsubscribe(ctx context.Context, email string) (int64, error)
}

// Server hosts the opt-out endpoints.
type Server struct {
	tokens   *optout.TokenCodec
	optouts  *optout.Service
	digests  DigestUnsubscriber
	validate *validator.Validate
	log      types.Logger
}

// NewServer creates a Server.
func NewServer(tokens *optout.TokenCodec, optouts *optout.Service, digests DigestUnsubscriber, logger types.Logger) *Server {
	return &Server{
		tokens:   tokens,
		optouts:  optouts,
		digests:  digests,
		validate: validator.New(),
		log:      logger,
	}
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/unsubscribe", s.handleUnsubscribe)
	// RFC 8058 one-click unsubscribe posts to the same URL.
	r.Post("/unsubscribe", s.handleUnsubscribe)
	r.Post("/v1/optouts", s.handleCreateOptOut)

	return r
}

// Run serves until ctx is canceled, then drains in-flight requests for up to
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("opt-out API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
