package filters

import (
	"context"
	"encoding/json"
	"regexp"

	"mapkeep/internal/intercept"
	"mapkeep/internal/logging"
)

// UnlimitedMarkers replaces the marker limit in game configs.
const UnlimitedMarkers = 99999

// registerEntitlements adds the coarse response rules that upgrade the
// signed-in user, unlock game configs and grant preset access.
func registerEntitlements(p *intercept.Pipeline, env Env) error {
	prefix := regexp.QuoteMeta(p.Options().APIPrefix)
	user, err := regexp.Compile(prefix + `/user/?(?:\?.*)?$`)
	if err != nil {
		return err
	}
	games, err := regexp.Compile(prefix + `/games/\w+`)
	if err != nil {
		return err
	}
	presets, err := regexp.Compile(prefix + `/user/presets/?(?:\?.*)?$`)
	if err != nil {
		return err
	}

	p.RegisterRequest("GET", user, userRule(p, env))
	p.RegisterRequest("GET", games, gameConfigRule(env))
	p.RegisterRequest("GET", presets, presetAccessRule(env))
	return nil
}

func enabled(env Env) bool {
	return env.settings(context.Background()).ExtensionEnabled
}

func userRule(p *intercept.Pipeline, env Env) intercept.RequestFunc {
	return func(req intercept.Request, data any) any {
		if !enabled(env) {
			return nil
		}
		obj, _ := data.(map[string]any)
		_, hasID := obj["id"]
		if env.settings(context.Background()).MockUser || !hasID {
			logging.Filters("Serving entitled user for %s", req.URL)
			return copyJSON(p.Options().EntitledUser)
		}
		obj["role"] = "admin"
		obj["pro"] = true
		if sub, ok := obj["subscription"].(map[string]any); ok {
			sub["active"] = true
		}
		return obj
	}
}

func gameConfigRule(env Env) intercept.RequestFunc {
	return func(_ intercept.Request, data any) any {
		if !enabled(env) {
			return nil
		}
		obj, _ := data.(map[string]any)
		cfg, ok := obj["config"].(map[string]any)
		if !ok {
			return nil
		}
		cfg["pro"] = true
		cfg["presets_enabled"] = true
		cfg["max_markers"] = UnlimitedMarkers
		cfg["heatmap"] = true
		return obj
	}
}

func presetAccessRule(env Env) intercept.RequestFunc {
	return func(_ intercept.Request, data any) any {
		if !enabled(env) {
			return nil
		}
		list, ok := data.([]any)
		if !ok {
			if data == nil {
				return []any{}
			}
			return nil
		}
		for _, item := range list {
			if preset, ok := item.(map[string]any); ok {
				preset["access"] = true
			}
		}
		return list
	}
}

// copyJSON deep-copies a JSON-shaped value so callers never share the
// configured template.
func copyJSON(v map[string]any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
