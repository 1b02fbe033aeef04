package filters

import (
	"context"
	"fmt"

	"mapkeep/internal/intercept"
	"mapkeep/internal/logging"
	"mapkeep/internal/overrides"
)

type presetInput struct {
	Title      string `json:"title"`
	Categories []int  `json:"categories"`
	Ordering   []int  `json:"ordering"`
}

type reorderInput struct {
	Ordering []int `json:"ordering"`
}

func createPreset(env Env) intercept.FilterFunc {
	return func(ctx context.Context, c *intercept.Call) (any, error) {
		var in presetInput
		if err := decodeData(c.Data, &in); err != nil {
			return nil, err
		}
		var p overrides.Preset
		err := env.update(ctx, ChangePreset, func(rec *overrides.Record) error {
			p = rec.AddPreset(in.Title, in.Categories, in.Ordering)
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Block()
		logging.FiltersDebug("Added preset %d %q", p.ID, p.Title)
		return map[string]any{"data": p}, nil
	}
}

func deletePreset(env Env) intercept.FilterFunc {
	return func(ctx context.Context, c *intercept.Call) (any, error) {
		id, err := callID(c)
		if err != nil {
			return nil, err
		}
		err = env.update(ctx, ChangePreset, func(rec *overrides.Record) error {
			if !rec.DeletePreset(id, nil) {
				return fmt.Errorf("filters: preset %d not found", id)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Block()
		return map[string]any{}, nil
	}
}

func reorderPresets(env Env) intercept.FilterFunc {
	return func(ctx context.Context, c *intercept.Call) (any, error) {
		var in reorderInput
		if err := decodeData(c.Data, &in); err != nil {
			return nil, err
		}
		err := env.update(ctx, ChangePreset, func(rec *overrides.Record) error {
			rec.ReorderPresets(in.Ordering)
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Block()
		return map[string]any{}, nil
	}
}

func registerPresets(p *intercept.Pipeline, env Env) error {
	return registerAll(p, env, []registration{
		{"post", "presets", false, createPreset(env)},
		{"delete", "presets", true, deletePreset(env)},
		{"post", "presets/reorder", false, reorderPresets(env)},
	})
}
