package intercept

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchExtractsCaptures(t *testing.T) {
	p := New(Options{})
	var got *Call
	p.MustRegisterFilter("GET", "presets", true, func(_ context.Context, c *Call) (any, error) {
		got = c
		return nil, nil
	})

	out := p.Dispatch(context.Background(), "GET", "https://host.test/api/v1/user/presets/42?x=1", nil)
	require.True(t, out.Matched)
	require.NotNil(t, got)
	assert.Equal(t, "presets", got.Key)
	assert.Equal(t, "42", got.ID)
	assert.Equal(t, "get", got.Method)

	got = nil
	out = p.Dispatch(context.Background(), "GET", "/api/v1/user/presetsX/42", nil)
	assert.False(t, out.Matched)
	assert.Nil(t, got)
}

func TestDispatchPrefersMostSpecificPattern(t *testing.T) {
	p := New(Options{})
	var hit string
	p.MustRegisterFilter("post", "presets", true, func(context.Context, *Call) (any, error) {
		hit = "presets/:id"
		return nil, nil
	})
	p.MustRegisterFilter("post", "presets/reorder", false, func(context.Context, *Call) (any, error) {
		hit = "presets/reorder"
		return nil, nil
	})

	p.Dispatch(context.Background(), "POST", "/api/v1/user/presets/reorder", nil)
	assert.Equal(t, "presets/reorder", hit)

	p.Dispatch(context.Background(), "POST", "/api/v1/user/presets/3", nil)
	assert.Equal(t, "presets/:id", hit)
}

func TestDispatchFallsBackToAny(t *testing.T) {
	p := New(Options{})
	var method string
	p.MustRegisterFilter("any", "notes", true, func(_ context.Context, c *Call) (any, error) {
		method = c.Method
		return nil, nil
	})

	out := p.Dispatch(context.Background(), "PATCH", "/api/v1/user/notes/a-1", nil)
	assert.True(t, out.Matched)
	assert.Equal(t, "patch", method)
}

func TestDispatchReplacementAndBlock(t *testing.T) {
	p := New(Options{})
	p.MustRegisterFilter("post", "notes", false, func(_ context.Context, c *Call) (any, error) {
		c.Block()
		return map[string]any{"data": c.Data}, nil
	})

	out := p.Dispatch(context.Background(), "post", "/api/v1/user/notes", "payload")
	assert.True(t, out.Blocked)
	assert.True(t, out.Replaced)
	assert.Equal(t, map[string]any{"data": "payload"}, out.Result)
}

func TestDispatchRecoversFailures(t *testing.T) {
	p := New(Options{})
	p.MustRegisterFilter("put", "locations", true, func(_ context.Context, c *Call) (any, error) {
		c.Block()
		panic("boom")
	})
	p.MustRegisterFilter("delete", "locations", true, func(context.Context, *Call) (any, error) {
		return "ignored", errors.New("nope")
	})

	out := p.Dispatch(context.Background(), "PUT", "/api/v1/user/locations/1", "orig")
	assert.Equal(t, "orig", out.Data)
	assert.False(t, out.Blocked, "a failed filter never blocks")
	assert.Error(t, out.Err)

	out = p.Dispatch(context.Background(), "DELETE", "/api/v1/user/locations/1", "orig")
	assert.Equal(t, "orig", out.Data)
	assert.False(t, out.Replaced)
}

func TestRegistrationErrors(t *testing.T) {
	p := New(Options{})
	noop := func(context.Context, *Call) (any, error) { return nil, nil }

	require.NoError(t, p.RegisterFilter("get", "presets", false, noop))
	assert.ErrorIs(t, p.RegisterFilter("GET", "presets", true, noop), ErrDuplicateFilter)
	assert.ErrorIs(t, p.UnregisterFilter("put", "presets"), ErrUnknownFilter)
	assert.ErrorIs(t, p.RegisterFilter("trace", "x", false, noop), ErrInvalidMethod)
	assert.Panics(t, func() { p.MustRegisterFilter("get", "presets", false, noop) })

	require.NoError(t, p.UnregisterFilter("get", "presets"))
	require.NoError(t, p.RegisterFilter("get", "presets", false, noop))
}

func TestProcessData(t *testing.T) {
	p := New(Options{})
	var order []int
	p.RegisterRequest("GET", regexp.MustCompile(`/api/v1/games/\w+`), func(_ Request, data any) any {
		order = append(order, 1)
		m := data.(map[string]any)
		m["first"] = true
		return m
	})
	p.RegisterRequest("GET", regexp.MustCompile(`/api/v1/games/`), func(Request, any) any {
		order = append(order, 2)
		panic("broken filter")
	})
	p.RegisterRequest("GET", regexp.MustCompile(`/api/v1/games/`), func(_ Request, data any) any {
		order = append(order, 3)
		return nil
	})
	p.RegisterRequest("POST", regexp.MustCompile(`.*`), func(Request, any) any {
		order = append(order, 4)
		return "never"
	})

	out := p.ProcessData("get", "https://host.test/api/v1/games/7", map[string]any{})
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, map[string]any{"first": true}, out)
}
