// Package browser hosts the map application in a rod-controlled Chrome and
// routes its API traffic through the interception pipeline.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"mapkeep/internal/intercept"
	"mapkeep/internal/logging"
)

// Session describes the public metadata for a tracked page.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type sessionRecord struct {
	meta   Session
	page   *rod.Page
	router *rod.HijackRouter
}

// Config holds browser configuration.
type Config struct {
	DebuggerURL         string   `yaml:"debugger_url" json:"debugger_url"`
	Launch              []string `yaml:"launch" json:"launch"`
	Headless            bool     `yaml:"headless" json:"headless"`
	ViewportWidth       int      `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height" json:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms" json:"navigation_timeout_ms"`
	// ReadySelector matches an element the map page renders once its
	// scripts are in place. Empty skips the wait.
	ReadySelector string `yaml:"ready_selector" json:"ready_selector"`
}

// DefaultReadySelector matches the map application's main script.
const DefaultReadySelector = "script[src*='/js/map.js']"

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            false,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		ReadySelector:       DefaultReadySelector,
	}
}

// IsHeadless returns the headless setting.
func (c Config) IsHeadless() bool {
	return c.Headless
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// SessionManager owns the Chrome instance and tracks hijacked pages.
type SessionManager struct {
	cfg        Config
	pipeline   *intercept.Pipeline
	base       http.RoundTripper
	mu         sync.RWMutex
	browser    *rod.Browser
	sessions   map[string]*sessionRecord
	controlURL string // WebSocket URL for DevTools
}

// NewSessionManager creates a session manager whose pages load API
// requests through p. base is the transport used to reach the real
// server; nil means http.DefaultTransport.
func NewSessionManager(cfg Config, p *intercept.Pipeline, base http.RoundTripper) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		pipeline: p,
		base:     base,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// If we already have a browser, verify it's still alive
	if m.browser != nil {
		_, err := m.browser.Version()
		if err == nil {
			return nil
		}
		logging.BrowserWarn("Stale browser connection detected, reconnecting...")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.sessions = make(map[string]*sessionRecord)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			fallback := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			url = alt
		}
		controlURL = url
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(m.cfg.IsHeadless()).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("Connected to Chrome at %s", controlURL)
	return nil
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected reports whether the browser still answers. It turns false
// once the user closes Chrome.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return false
	}
	_, err := b.Version()
	return err == nil
}

// Shutdown stops hijacking, closes tracked pages and the browser.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, record := range m.sessions {
		if record.router != nil {
			_ = record.router.Stop()
		}
		if record.page != nil {
			_ = record.page.Close()
		}
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	logging.Browser("Browser shut down")
	return err
}

// CreateSession opens a page, attaches the hijack router and navigates to
// url. Requests made during the first load are already intercepted.
func (m *SessionManager) CreateSession(ctx context.Context, url string) (*Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("Failed to set viewport: %v", err)
	}

	router, err := m.hijack(page)
	if err != nil {
		_ = page.Close()
		return nil, err
	}

	if err := page.Context(ctx).Timeout(m.cfg.NavigationTimeout()).Navigate(url); err != nil {
		logging.BrowserWarn("Navigation to %s failed: %v", url, err)
	}

	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page, router: router}
	m.mu.Unlock()

	logging.Browser("Session %s opened at %s", meta.ID, url)
	return &meta, nil
}

// Page returns the underlying Rod page for a session.
func (m *SessionManager) Page(sessionID string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok || rec.page == nil {
		return nil, false
	}
	return rec.page, true
}

// Navigate navigates a session to url. Hijacking stays in place.
func (m *SessionManager) Navigate(ctx context.Context, sessionID, url string) error {
	page, ok := m.Page(sessionID)
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	if err := page.Context(ctx).Timeout(m.cfg.NavigationTimeout()).Navigate(url); err != nil {
		return err
	}
	m.mu.Lock()
	if rec, ok := m.sessions[sessionID]; ok {
		rec.meta.URL = url
		rec.meta.LastActive = time.Now()
	}
	m.mu.Unlock()
	return nil
}
