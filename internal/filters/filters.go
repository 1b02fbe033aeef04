// Package filters registers the request handlers that keep user state in the
// local override store instead of the application's server.
package filters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"mapkeep/internal/bridge"
	"mapkeep/internal/intercept"
	"mapkeep/internal/logging"
	"mapkeep/internal/overrides"
)

// Change kinds reported to Env.OnChange.
const (
	ChangeLocation = "location"
	ChangeCategory = "category"
	ChangeNote     = "note"
	ChangePreset   = "preset"
)

// Env is what the handlers need from the running session.
type Env struct {
	Maps     *overrides.Maps
	Settings *bridge.Bridge
	// OnChange, when set, runs after every saved mutation with a snapshot
	// of the saved record. It may be called from several goroutines.
	OnChange func(kind string, rec *overrides.Record)
}

func (e Env) settings(ctx context.Context) bridge.Settings {
	return e.Settings.Settings(ctx)
}

// update applies fn to the current record and saves it under the record's
// lock, then notifies OnChange with a snapshot of the saved record.
func (e Env) update(ctx context.Context, kind string, fn func(*overrides.Record) error) error {
	rec, err := e.Maps.Update(ctx, fn)
	if err != nil {
		return err
	}
	if e.OnChange != nil {
		e.OnChange(kind, rec)
	}
	return nil
}

// Install registers every handler on p.
func Install(p *intercept.Pipeline, env Env) error {
	if env.Maps == nil {
		return errors.New("filters: no map records")
	}
	var errs []error
	for _, register := range []func(*intercept.Pipeline, Env) error{
		registerLocations,
		registerCategories,
		registerNotes,
		registerPresets,
		registerEntitlements,
	} {
		if err := register(p, env); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logging.Filters("Content filters installed")
	return nil
}

// guarded skips fn when the extension is disabled, letting the request
// through untouched.
func guarded(env Env, fn intercept.FilterFunc) intercept.FilterFunc {
	return func(ctx context.Context, c *intercept.Call) (any, error) {
		if !env.settings(ctx).ExtensionEnabled {
			logging.FiltersDebug("Extension disabled, passing %s %s through", c.Method, c.Key)
			return nil, nil
		}
		return fn(ctx, c)
	}
}

type registration struct {
	method string
	key    string
	hasID  bool
	fn     intercept.FilterFunc
}

func registerAll(p *intercept.Pipeline, env Env, regs []registration) error {
	for _, r := range regs {
		if err := p.RegisterFilter(r.method, r.key, r.hasID, guarded(env, r.fn)); err != nil {
			return err
		}
	}
	return nil
}

func callID(c *intercept.Call) (int, error) {
	id, err := strconv.Atoi(c.ID)
	if err != nil {
		return 0, fmt.Errorf("filters: %s id %q is not numeric", c.Key, c.ID)
	}
	return id, nil
}

// decodeData converts the decoded request payload into out.
func decodeData(data any, out any) error {
	if data == nil {
		return errors.New("filters: request has no payload")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
