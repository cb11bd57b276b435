package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"campaign-console/internal/api"
	"campaign-console/internal/campaign"
	"campaign-console/internal/config"
	"campaign-console/internal/crmapi"
	"campaign-console/internal/listener"
	"campaign-console/internal/storage"
)

// Server is the console: composer sessions and campaign history served over
// HTTP, backed by the CRM API.
type Server struct {
	cfg      config.Config
	client   *crmapi.Client
	history  *campaign.History
	handler  *api.ConsoleHandler
	triggers chan string
	srv      *http.Server
}

// New wires the console. Composers opened on it live until ctx is done.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	client, err := crmapi.New(cfg.API.BaseURL,
		crmapi.WithTimeout(cfg.Timeout()),
		crmapi.WithSessionCookie(cfg.API.SessionCookieName, cfg.API.SessionCookie),
		crmapi.WithBearerToken(cfg.API.BearerToken),
	)
	if err != nil {
		return nil, fmt.Errorf("init crm api client: %w", err)
	}

	history := campaign.NewHistory(client, storage.NewCache())
	triggers := make(chan string, 1)
	h := api.NewConsoleHandler(ctx, client, history, triggers)

	return &Server{
		cfg:      cfg,
		client:   client,
		history:  history,
		handler:  h,
		triggers: triggers,
		srv: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      api.Router(h, cfg.Timeout()+5*time.Second),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: cfg.Timeout() + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Serve runs the HTTP server and the history refresher until ctx is done,
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		listener.ListenAndRefresh(gctx, s.history, s.triggers, s.cfg.RefreshInterval())
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", s.srv.Addr).Str("crm_api", s.cfg.API.BaseURL).Msg("console starting")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("console server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown...")
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.handler.CloseAll()
		return s.srv.Shutdown(shCtx)
	})

	return g.Wait()
}

// Run serves cfg until SIGINT or SIGTERM.
func Run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}
