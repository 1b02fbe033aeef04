package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mapkeep/internal/bridge"
	"mapkeep/internal/filters"
	"mapkeep/internal/intercept"
	"mapkeep/internal/overrides"
)

var extraMaps []int

// serveCmd runs the intercepting reverse proxy
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intercepting reverse proxy",
	Long: `Serves the map application through a reverse proxy. API requests that store
user state are answered from the local store; JSON responses and the application's
embedded state are patched on the way back.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntSliceVar(&extraMaps, "maps", nil, "Additional map ids shown on the same page")
}

// session is the interception stack shared by serve and browse.
type session struct {
	pipeline *intercept.Pipeline
	settings *bridge.FileResponder
}

func newSession(ctx context.Context) (*session, error) {
	fr, err := bridge.NewFileResponder(cfg.Settings.File)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := fr.Start(ctx); err != nil {
		logger.Warn("Settings file will not be watched", zap.Error(err))
	}

	p := intercept.New(cfg.PipelineOptions())
	p.InstallHook(intercept.HookDecode)
	return &session{pipeline: p, settings: fr}, nil
}

func (s *session) install(maps *overrides.Maps) error {
	return filters.Install(s.pipeline, filters.Env{
		Maps:     maps,
		Settings: bridge.New(s.settings, cfg.GetSettingsTimeout()),
		OnChange: func(kind string, rec *overrides.Record) {
			logger.Debug("Override saved", zap.String("kind", kind), zap.Stringer("identity", rec.Identity))
		},
	})
}

func (s *session) close() {
	s.settings.Stop()
}

func runServe(cmd *cobra.Command, args []string) error {
	id, hasUser, err := identityFromFlags()
	if err != nil {
		return err
	}
	upstream, err := url.Parse(cfg.Proxy.Upstream)
	if err != nil || upstream.Host == "" {
		return fmt.Errorf("invalid upstream %q", cfg.Proxy.Upstream)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	maps := overrides.NewMaps(rt.store, id, hasUser, extraMaps...)
	if err := maps.LoadAll(ctx); err != nil {
		return err
	}
	if err := sess.install(maps); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Proxy.Listen,
		Handler:           sess.pipeline.ReverseProxy(upstream, nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("Proxy listening",
		zap.String("addr", cfg.Proxy.Listen),
		zap.String("upstream", upstream.String()),
		zap.Stringer("identity", id))
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", upstream, cfg.Proxy.Listen)

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
