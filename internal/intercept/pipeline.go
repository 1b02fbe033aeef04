// Package intercept rewrites the JSON traffic of the map application.
//
// A Pipeline owns two registries: path-capture filters keyed by method and
// resource key (Dispatch), and coarse (method, url regexp) callbacks that see
// every decoded response (ProcessData). Hooks attach the pipeline to the
// boundaries where JSON enters the client: JSON decoding, an
// http.RoundTripper, a reverse proxy and a live browser page.
package intercept

import (
	"maps"
	"sync"

	"mapkeep/internal/logging"
)

// Hook names one interception boundary.
type Hook string

const (
	HookDecode    Hook = "decode"
	HookTransport Hook = "transport"
	HookProxy     Hook = "proxy"
	HookBrowser   Hook = "browser"
)

// AllHooks lists every hook in installation order.
var AllHooks = []Hook{HookDecode, HookTransport, HookProxy, HookBrowser}

// DefaultAPIPrefix is the path prefix of the application's API.
const DefaultAPIPrefix = "/api/v1"

// Options configure a Pipeline.
type Options struct {
	// APIPrefix is the path prefix request filters apply to.
	APIPrefix string
	// TrackedHosts limits response rewriting to these hosts. Empty tracks
	// every host.
	TrackedHosts []string
	// EntitledUser is the user object served when the user endpoint refuses
	// the request or a payload carries a null user.
	EntitledUser map[string]any
	// EntitledFlags are merged into every user object seen.
	EntitledFlags map[string]any
}

// DefaultEntitledUser returns the user fabricated for signed-out sessions.
func DefaultEntitledUser() map[string]any {
	return map[string]any{
		"id":           88888888,
		"username":     "mapkeep",
		"email":        "mapkeep@localhost",
		"role":         "admin",
		"pro":          true,
		"entitlements": []any{},
		"subscription": map[string]any{"active": true, "plan": "pro"},
	}
}

// DefaultEntitledFlags returns the flags merged into real user objects.
func DefaultEntitledFlags() map[string]any {
	return map[string]any{"pro": true, "role": "admin"}
}

func (o Options) withDefaults() Options {
	if o.APIPrefix == "" {
		o.APIPrefix = DefaultAPIPrefix
	}
	if o.EntitledUser == nil {
		o.EntitledUser = DefaultEntitledUser()
	}
	if o.EntitledFlags == nil {
		o.EntitledFlags = DefaultEntitledFlags()
	}
	return o
}

// Pipeline routes intercepted payloads through registered rules. All methods
// are safe for concurrent use; callbacks run without internal locks held.
type Pipeline struct {
	opts Options

	mu       sync.RWMutex
	filters  map[string]map[string]*filter
	requests []requestEntry

	hooksMu   sync.Mutex
	installed map[Hook]int
}

// New returns a pipeline with no hooks installed.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		opts:      opts.withDefaults(),
		filters:   make(map[string]map[string]*filter),
		installed: make(map[Hook]int),
	}
	for _, m := range filterMethods {
		p.filters[m] = make(map[string]*filter)
	}
	return p
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// InstallHook marks h installed. It returns false, changing nothing, when h
// is already installed.
func (p *Pipeline) InstallHook(h Hook) bool {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	if p.installed[h] > 0 {
		logging.InterceptDebug("Hook %s already installed", h)
		return false
	}
	p.installed[h]++
	logging.Intercept("Hook %s installed", h)
	return true
}

// InstallAll installs every hook and returns how many were newly installed.
func (p *Pipeline) InstallAll() int {
	n := 0
	for _, h := range AllHooks {
		if p.InstallHook(h) {
			n++
		}
	}
	return n
}

// Installed reports whether h is installed.
func (p *Pipeline) Installed(h Hook) bool {
	return p.InstallCount(h) > 0
}

// InstallCount returns how many times h was actually installed. It is never
// more than one.
func (p *Pipeline) InstallCount(h Hook) int {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	return p.installed[h]
}

// Hooks returns a copy of the installed set.
func (p *Pipeline) Hooks() map[Hook]int {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	return maps.Clone(p.installed)
}
