package intercept

import (
	"encoding/json"
	"maps"
	"reflect"
	"strconv"
)

// Payload is a decoded JSON object the pipeline knows how to patch.
type Payload interface {
	// Kind names the variant.
	Kind() string
	// Patch applies the entitlement rewrite in place and reports whether
	// anything changed.
	Patch(opts Options) bool
}

// UserPayload is a bare user object: it has id, username and role.
type UserPayload struct{ Obj map[string]any }

// GameConfigPayload is an object carrying a game config with presets_enabled.
type GameConfigPayload struct {
	Obj    map[string]any
	Config map[string]any
}

// GenericPayload is an object wrapping a user under "user".
type GenericPayload struct{ Obj map[string]any }

func (UserPayload) Kind() string       { return "user" }
func (GameConfigPayload) Kind() string { return "game_config" }
func (GenericPayload) Kind() string    { return "generic" }

func (u UserPayload) Patch(opts Options) bool {
	return mergeFlags(u.Obj, opts.EntitledFlags)
}

func (g GameConfigPayload) Patch(opts Options) bool {
	changed := setIfDifferent(g.Config, "pro", true)
	changed = setIfDifferent(g.Config, "presets_enabled", true) || changed
	if _, ok := g.Obj["user"]; ok {
		changed = GenericPayload{Obj: g.Obj}.Patch(opts) || changed
	}
	return changed
}

// Patch upgrades a wrapped user, or injects the entitled user when the
// wrapper holds null.
func (g GenericPayload) Patch(opts Options) bool {
	switch u := g.Obj["user"].(type) {
	case nil:
		g.Obj["user"] = cloneJSON(opts.EntitledUser)
		return true
	case map[string]any:
		if _, ok := u["id"]; ok {
			return mergeFlags(u, opts.EntitledFlags)
		}
	}
	return false
}

// Classify returns the variant of v, or nil when v is not a patchable
// object. Variants are tried in priority order: user, game config, generic.
func Classify(v any) Payload {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if isUser(obj) {
		return UserPayload{Obj: obj}
	}
	if cfg, ok := obj["config"].(map[string]any); ok {
		if _, ok := cfg["presets_enabled"]; ok {
			return GameConfigPayload{Obj: obj, Config: cfg}
		}
	}
	if _, ok := obj["user"]; ok {
		return GenericPayload{Obj: obj}
	}
	return nil
}

// Patch classifies v and patches it in place.
func (p *Pipeline) Patch(v any) bool {
	payload := Classify(v)
	if payload == nil {
		return false
	}
	return payload.Patch(p.opts)
}

func isUser(obj map[string]any) bool {
	_, hasID := obj["id"]
	_, hasName := obj["username"]
	_, hasRole := obj["role"]
	return hasID && hasName && hasRole
}

func mergeFlags(dst, flags map[string]any) bool {
	changed := false
	for k, v := range flags {
		if setIfDifferent(dst, k, v) {
			changed = true
		}
	}
	if sub, ok := dst["subscription"].(map[string]any); ok {
		changed = setIfDifferent(sub, "active", true) || changed
	}
	return changed
}

func setIfDifferent(dst map[string]any, k string, v any) bool {
	if cur, ok := dst[k]; ok && reflect.DeepEqual(cur, v) {
		return false
	}
	dst[k] = v
	return true
}

// cloneJSON deep-copies a JSON-shaped value so injected objects are never
// shared between payloads.
func cloneJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := maps.Clone(t)
		for k, e := range out {
			out[k] = cloneJSON(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneJSON(e)
		}
		return out
	default:
		return v
	}
}

// AsInt converts a decoded JSON number, or a decimal string, to an int.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}
