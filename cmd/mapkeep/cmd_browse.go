package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mapkeep/internal/browser"
	"mapkeep/internal/migrate"
	"mapkeep/internal/overrides"
	"mapkeep/internal/store"
)

var (
	browseHeadless    bool
	browsePageStorage bool
)

const browserCheckInterval = 2 * time.Second

var errNoteAlreadyPresent = errors.New("shared note already present")

// browseCmd opens the application in a hijacked browser
var browseCmd = &cobra.Command{
	Use:   "browse [url]",
	Short: "Open the map application in a controlled browser",
	Long: `Launches Chrome (or connects to browser.debugger_url), loads the map page and
answers its API requests from the local store. The game, map and user are read from
the page once it has loaded. A shared-note link in the url is imported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().BoolVar(&browseHeadless, "headless", false, "Run Chrome headless")
	browseCmd.Flags().BoolVar(&browsePageStorage, "page-storage", false, "Keep overrides in the page's localStorage instead of the configured store")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	target := cfg.Proxy.Upstream
	if len(args) == 1 {
		target = args[0]
	}
	targetURL, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", target, err)
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

	bcfg := cfg.Browser
	if browseHeadless {
		bcfg.Headless = true
	}
	sm := browser.NewSessionManager(bcfg, sess.pipeline, nil)
	defer func() {
		if err := sm.Shutdown(context.Background()); err != nil {
			logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()

	opened, err := sm.CreateSession(ctx, target)
	if err != nil {
		return err
	}
	logger.Debug("DevTools available", zap.String("control_url", sm.ControlURL()))
	page, ok := sm.Page(opened.ID)
	if !ok {
		return fmt.Errorf("session %s has no page", opened.ID)
	}
	if sel := bcfg.ReadySelector; sel != "" {
		if _, err := browser.WaitForElement(ctx, page, bcfg.NavigationTimeout(), sel); err != nil {
			return fmt.Errorf("map application did not load: %w", err)
		}
	}
	if err := browser.WaitForGlobals(ctx, page, bcfg.NavigationTimeout(), "game.id", "mapData.map.id"); err != nil {
		return fmt.Errorf("map application did not load: %w", err)
	}
	id, hasUser, err := browser.ReadIdentity(ctx, page)
	if err != nil {
		return err
	}

	st := rt.store
	if browsePageStorage {
		var driver store.Driver = browser.NewLocalStorageDriver(page)
		st = overrides.NewStore(driver, migrate.NewEngine(driver))
	}
	maps := overrides.NewMaps(st, id, hasUser)
	if err := maps.LoadAll(ctx); err != nil {
		return err
	}
	if err := sess.install(maps); err != nil {
		return err
	}
	if importSharedNote(ctx, maps, targetURL) {
		// The page rendered before the note existed.
		if err := sm.Navigate(ctx, opened.ID, overrides.StripShareParam(targetURL).String()); err != nil {
			logger.Warn("Reload after shared note import failed", zap.Error(err))
		}
	}
	logger.Info("Browsing", zap.String("url", target), zap.Stringer("identity", id), zap.Bool("signed_in", hasUser))
	fmt.Fprintf(cmd.OutOrStdout(), "Browsing %s as %s. Press Ctrl+C to stop.\n", target, id)

	return waitForBrowser(ctx, sm)
}

// waitForBrowser blocks until ctx ends or the user closes Chrome.
func waitForBrowser(ctx context.Context, sm *browser.SessionManager) error {
	ticker := time.NewTicker(browserCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !sm.IsConnected() {
				logger.Info("Browser closed")
				return nil
			}
		}
	}
}

// importSharedNote adds the note shared through u to the current map and
// reports whether anything was saved.
func importSharedNote(ctx context.Context, maps *overrides.Maps, u *url.URL) bool {
	_, err := maps.Update(ctx, func(rec *overrides.Record) error {
		inserted, err := overrides.ImportSharedNote(rec, u)
		if err != nil {
			return err
		}
		if !inserted {
			return errNoteAlreadyPresent
		}
		return nil
	})
	switch {
	case err == nil:
		logger.Info("Imported shared note")
		return true
	case errors.Is(err, overrides.ErrNoSharedNote), errors.Is(err, errNoteAlreadyPresent):
	default:
		logger.Warn("Ignoring shared note", zap.Error(err))
	}
	return false
}
