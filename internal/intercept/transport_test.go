package intercept

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	*httptest.Server
	hits     atomic.Int32
	lastBody atomic.Value
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		u.lastBody.Store(string(body))
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Upstream", "yes")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestTransportBlockedRequestNeverReachesServer(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"server": true})
	})
	p := New(Options{})
	p.MustRegisterFilter("put", "locations", true, func(_ context.Context, c *Call) (any, error) {
		c.Block()
		return map[string]any{"id": c.ID, "found": true}, nil
	})

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/user/locations/77", nil)
	resp, err := p.Client(nil).Do(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"77","found":true}`, readBody(t, resp))
	assert.Zero(t, srv.hits.Load())
}

func TestTransportReplacesRequestBody(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	p := New(Options{})
	p.MustRegisterFilter("post", "notes", false, func(_ context.Context, c *Call) (any, error) {
		m := c.Data.(map[string]any)
		m["title"] = "rewritten"
		return m, nil
	})

	resp, err := p.Client(nil).Post(srv.URL+"/api/v1/user/notes", "application/json", strings.NewReader(`{"title":"orig","n":12345678901}`))
	require.NoError(t, err)
	readBody(t, resp)

	assert.Equal(t, int32(1), srv.hits.Load())
	assert.JSONEq(t, `{"title":"rewritten","n":12345678901}`, srv.lastBody.Load().(string))
}

func TestTransportPassesUnmatchedRequestBody(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	p := New(Options{})

	resp, err := p.Client(nil).Post(srv.URL+"/api/v1/other", "text/plain", strings.NewReader("not json"))
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, "not json", srv.lastBody.Load().(string))
}

func TestTransportServesEntitledUserOnUnauthorized(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "login"})
	})
	p := New(Options{})

	resp, err := p.Client(nil).Get(srv.URL + "/api/v1/user")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"), "headers preserved")
	assert.Equal(t, strconv.Itoa(len(body)), resp.Header.Get("Content-Length"))

	var user map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &user))
	assert.Equal(t, "admin", user["role"])
	assert.Equal(t, true, user["pro"])

	resp, err = p.Client(nil).Get(srv.URL + "/api/v1/user/presets")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "only the user endpoint is rescued")
}

func TestTransportRewritesJSONResponses(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/games/7":
			writeJSON(w, http.StatusOK, map[string]any{"config": map[string]any{"presets_enabled": false, "max_markers": 100}})
		default:
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "plain text")
		}
	})
	p := New(Options{})
	p.InstallHook(HookDecode)
	p.RegisterRequest("GET", regexp.MustCompile(`/api/v1/games/\w+`), func(_ Request, data any) any {
		data.(map[string]any)["config"].(map[string]any)["max_markers"] = 99999
		return data
	})

	resp, err := p.Client(nil).Get(srv.URL + "/api/v1/games/7")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.JSONEq(t, `{"config":{"presets_enabled":true,"pro":true,"max_markers":99999}}`, body)
	assert.Equal(t, int64(len(body)), resp.ContentLength)

	resp, err = p.Client(nil).Get(srv.URL + "/api/v1/other")
	require.NoError(t, err)
	assert.Equal(t, "plain text", readBody(t, resp))
}

func TestTransportRewritesJSONServedAsText(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/games/7":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, `{"config":{"presets_enabled":false}}`)
		case "/api/v1/icon":
			w.Header().Set("Content-Type", "image/svg+xml")
			_, _ = io.WriteString(w, `{"not":"touched"}`)
		default:
			_, _ = io.WriteString(w, `{"config":{"presets_enabled":false}}`)
		}
	})
	p := New(Options{})
	p.InstallHook(HookDecode)

	for _, path := range []string{"/api/v1/games/7", "/api/v1/untyped"} {
		resp, err := p.Client(nil).Get(srv.URL + path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"config":{"presets_enabled":true,"pro":true}}`, readBody(t, resp), path)
	}

	resp, err := p.Client(nil).Get(srv.URL + "/api/v1/icon")
	require.NoError(t, err)
	assert.Equal(t, `{"not":"touched"}`, readBody(t, resp))
}

func TestRewritable(t *testing.T) {
	tests := []struct {
		contentType string
		encoding    string
		want        bool
	}{
		{"application/json", "", true},
		{"application/vnd.api+json", "", true},
		{"text/plain; charset=utf-8", "", true},
		{"", "", true},
		{"application/octet-stream", "", true},
		{"text/html", "", false},
		{"image/png", "", false},
		{"font/woff2", "", false},
		{"application/json", "gzip", false},
		{"application/json", "identity", true},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.contentType != "" {
			h.Set("Content-Type", tt.contentType)
		}
		if tt.encoding != "" {
			h.Set("Content-Encoding", tt.encoding)
		}
		assert.Equal(t, tt.want, rewritable(h), "%q/%q", tt.contentType, tt.encoding)
	}
}

func TestTransportIgnoresUntrackedHosts(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{})
	})
	p := New(Options{TrackedHosts: []string{"maps.example"}})

	resp, err := p.Client(nil).Get(srv.URL + "/api/v1/user")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReverseProxy(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/maps/world":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, `<html><head><script id="state" type="application/json">{"user":null,"map":{"id":5}}</script></head><body><p>hi</p></body></html>`)
		case "/api/v1/user/locations/3":
			writeJSON(w, http.StatusOK, map[string]any{"from": "server"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": 1, "role": "user"}})
		}
	})
	target, _ := url.Parse(srv.URL)

	p := New(Options{})
	p.InstallHook(HookDecode)
	p.MustRegisterFilter("delete", "locations", true, func(_ context.Context, c *Call) (any, error) {
		c.Block()
		return nil, nil
	})
	proxy := httptest.NewServer(p.ReverseProxy(target, nil))
	t.Cleanup(proxy.Close)
	assert.True(t, p.Installed(HookProxy))

	resp, err := http.Get(proxy.URL + "/api/v1/session")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":{"id":1,"role":"admin","pro":true}}`, readBody(t, resp))

	resp, err = http.Get(proxy.URL + "/maps/world")
	require.NoError(t, err)
	page := readBody(t, resp)
	assert.Contains(t, page, `"username":"mapkeep"`)
	assert.Contains(t, page, `<p>hi</p>`)

	req, _ := http.NewRequest(http.MethodDelete, proxy.URL+"/api/v1/user/locations/3", nil)
	hitsBefore := srv.hits.Load()
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, readBody(t, resp))
	assert.Equal(t, hitsBefore, srv.hits.Load())
}

func TestReverseProxyServesEntitledUserOnUnauthorized(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "login"})
	})
	target, _ := url.Parse(srv.URL)
	p := New(Options{})
	proxy := httptest.NewServer(p.ReverseProxy(target, nil))
	t.Cleanup(proxy.Close)

	resp, err := http.Get(proxy.URL + "/api/v1/user")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"))
	var user map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &user))
	assert.Equal(t, "admin", user["role"])

	resp, err = http.Get(proxy.URL + "/api/v1/user/presets")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPatchHTMLLeavesPlainDocuments(t *testing.T) {
	p := New(Options{})
	doc := []byte(`<html><body><script>var a = 1;</script></body></html>`)

	out, err := p.PatchHTML("GET", "/", doc)
	require.NoError(t, err)
	assert.Equal(t, doc, out)
}
