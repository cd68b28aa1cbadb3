// Package server exposes the WorkTool callback over HTTP. The webhook is
// always acked with 200; processing failures are reported in the response
// body and logged, never bounced back as HTTP errors.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
	pipelinex "github.com/leadloop-ai/leadloop/agent/pipeline"
)

type Config struct {
	Addr            string        `envconfig:"ADDR" split_words:"true" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`
}

// MessageHandler is the pipeline seam, narrowed for tests.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg contractx.InboundMessage) (pipelinex.Result, error)
}

type Server struct {
	cfg       Config
	handler   MessageHandler
	deliverer contractx.Deliverer
	httpSrv   *http.Server
}

func New(cfg Config, handler MessageHandler, deliverer contractx.Deliverer) *Server {
	s := &Server{
		cfg:       cfg,
		handler:   handler,
		deliverer: deliverer,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth)
	r.Get("/wework/callback", handleHandshake)
	r.Post("/wework/callback", s.handleCallback)

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the routed mux for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled, then drains within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", s.cfg.Addr).Msg("webhook server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
