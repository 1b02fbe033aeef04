package filters

import (
	"context"

	"mapkeep/internal/intercept"
	"mapkeep/internal/logging"
	"mapkeep/internal/overrides"
)

// setMember returns a handler that marks or unmarks the id of the call in
// the set picked by pick.
func setMember(env Env, kind string, present bool, pick func(*overrides.Record) *overrides.IDSet) intercept.FilterFunc {
	return func(ctx context.Context, c *intercept.Call) (any, error) {
		id, err := callID(c)
		if err != nil {
			return nil, err
		}
		err = env.update(ctx, kind, func(rec *overrides.Record) error {
			pick(rec).SetPresent(id, present)
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Block()
		logging.FiltersDebug("%s %d set to %v", kind, id, present)
		return map[string]any{}, nil
	}
}

func found(r *overrides.Record) *overrides.IDSet   { return r.Found }
func tracked(r *overrides.Record) *overrides.IDSet { return r.Tracked }

func registerLocations(p *intercept.Pipeline, env Env) error {
	return registerAll(p, env, []registration{
		{"put", "locations", true, setMember(env, ChangeLocation, true, found)},
		{"delete", "locations", true, setMember(env, ChangeLocation, false, found)},
	})
}

func registerCategories(p *intercept.Pipeline, env Env) error {
	return registerAll(p, env, []registration{
		{"put", "categories", true, setMember(env, ChangeCategory, true, tracked)},
		{"delete", "categories", true, setMember(env, ChangeCategory, false, tracked)},
	})
}
