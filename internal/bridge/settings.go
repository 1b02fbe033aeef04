// Package bridge carries extension settings from the process that owns them
// to the interception side. Requests are answered asynchronously and fall
// back to defaults when no answer arrives in time.
package bridge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"mapkeep/internal/logging"
)

// DefaultTimeout bounds how long a settings request waits for an answer.
const DefaultTimeout = 2 * time.Second

// Settings are the user-facing extension toggles.
type Settings struct {
	ExtensionEnabled       bool `yaml:"extension_enabled" json:"extension_enabled"`
	NoConfirmMarkUnmarkAll bool `yaml:"no_confirm_mark_unmark_all" json:"no_confirm_mark_unmark_all"`
	MockUser               bool `yaml:"mock_user" json:"mock_user"`
	PresetsAlwaysEnabled   bool `yaml:"presets_always_enabled" json:"presets_always_enabled"`
}

// Defaults returns the settings used when no answer arrives.
func Defaults() Settings {
	return Settings{ExtensionEnabled: true}
}

// Request is one settings request.
type Request struct {
	ID string
}

// Response answers the request with the same ID.
type Response struct {
	ID       string
	Settings Settings
}

// Responder answers settings requests. It should stop work when ctx ends.
type Responder interface {
	RespondSettings(ctx context.Context, req Request) (Response, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req Request) (Response, error)

func (f ResponderFunc) RespondSettings(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Static answers every request with s.
func Static(s Settings) Responder {
	return ResponderFunc(func(_ context.Context, req Request) (Response, error) {
		return Response{ID: req.ID, Settings: s}, nil
	})
}

// Bridge requests settings from a Responder.
type Bridge struct {
	responder Responder
	timeout   time.Duration
	group     singleflight.Group
}

// New returns a bridge. A non-positive timeout means DefaultTimeout.
func New(r Responder, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{responder: r, timeout: timeout}
}

// Settings asks the responder for the current settings. Concurrent callers
// share one request, which outlives any single caller's cancellation and is
// bounded by the bridge timeout. Errors, mismatched answers, timeouts and
// a cancelled ctx yield Defaults.
func (b *Bridge) Settings(ctx context.Context) Settings {
	if b == nil || b.responder == nil {
		return Defaults()
	}
	ch := b.group.DoChan("settings", func() (any, error) {
		return b.request(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Settings)
	case <-ctx.Done():
		logging.BridgeWarn("Settings request abandoned by caller: %v", ctx.Err())
		return Defaults()
	}
}

func (b *Bridge) request(parent context.Context) Settings {
	ctx, cancel := context.WithTimeout(parent, b.timeout)
	defer cancel()

	type answer struct {
		resp Response
		err  error
	}

	req := Request{ID: uuid.NewString()}
	answers := make(chan answer, 1)
	go func() {
		resp, err := b.responder.RespondSettings(ctx, req)
		answers <- answer{resp: resp, err: err}
	}()

	select {
	case a := <-answers:
		if a.err != nil {
			logging.BridgeWarn("Settings request %s failed, using defaults: %v", req.ID, a.err)
			return Defaults()
		}
		if a.resp.ID != req.ID {
			logging.BridgeWarn("Settings answer for %s does not match request %s", a.resp.ID, req.ID)
			return Defaults()
		}
		return a.resp.Settings
	case <-ctx.Done():
		logging.BridgeWarn("Settings request %s timed out, using defaults", req.ID)
		return Defaults()
	}
}
