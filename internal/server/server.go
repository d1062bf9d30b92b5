// Package server assembles the HTTP server: dependency construction,
// route wiring and lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/config"
	"github.com/factly/gopie/internal/engine"
)

type Server struct {
	cfg     *config.Config
	http    *http.Server
	querier engine.Querier // held for graceful close
}

func New(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	router, querier, err := s.setupRoutes()
	if err != nil {
		return nil, fmt.Errorf("setup routes: %w", err)
	}
	s.querier = querier

	s.http = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Streaming responses can run for the whole agent timeout.
		WriteTimeout: time.Duration(cfg.AgentTimeout+30) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)

		if s.querier != nil {
			if closeErr := s.querier.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("error closing SQL engine")
			} else {
				log.Info().Msg("SQL engine closed")
			}
		}

		return err
	case err := <-errCh:
		return err
	}
}
