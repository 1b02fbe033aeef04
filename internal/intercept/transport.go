package intercept

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"mapkeep/internal/logging"
)

// transport is the http.RoundTripper installed by HookTransport. With
// requestOnly set it leaves responses alone; the reverse proxy uses that
// mode and rewrites responses in ModifyResponse.
type transport struct {
	p           *Pipeline
	base        http.RoundTripper
	requestOnly bool
}

// Transport wraps base so API requests are dispatched to filters and JSON
// responses are rewritten. Wrapping a transport this pipeline already
// returned gives it back unchanged.
func (p *Pipeline) Transport(base http.RoundTripper) http.RoundTripper {
	if t, ok := base.(*transport); ok && t.p == p && !t.requestOnly {
		return t
	}
	if base == nil {
		base = http.DefaultTransport
	}
	p.InstallHook(HookTransport)
	return &transport{p: p, base: base}
}

// Client returns an http.Client using Transport(base).
func (p *Pipeline) Client(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: p.Transport(base)}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.HasPrefix(req.URL.Path, t.p.opts.APIPrefix) {
		resp, next, err := t.p.requestPhase(req)
		if err != nil || resp != nil {
			return resp, err
		}
		req = next
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil || t.requestOnly {
		return resp, err
	}
	return t.p.responsePhase(req, resp)
}

// requestPhase dispatches the request to filters. A blocked request yields a
// synthesized response; a replaced payload yields a request with a new body.
func (p *Pipeline) requestPhase(req *http.Request) (*http.Response, *http.Request, error) {
	var (
		raw  []byte
		data any
	)
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		raw, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, nil, err
		}
		if len(bytes.TrimSpace(raw)) > 0 {
			if v, err := p.Decode(raw); err == nil {
				data = v
			}
		}
	}

	out := p.Dispatch(req.Context(), req.Method, req.URL.String(), data)

	if out.Blocked {
		body, err := json.Marshal(blockedBody(out.Result))
		if err != nil {
			return nil, nil, err
		}
		logging.InterceptDebug("Answered %s %s locally", req.Method, req.URL.Path)
		return synthesize(req, http.StatusOK, nil, body), nil, nil
	}

	next := req.Clone(req.Context())
	body := raw
	if out.Replaced {
		encoded, err := json.Marshal(out.Data)
		if err != nil {
			return nil, nil, err
		}
		body = encoded
		next.Header.Set("Content-Type", "application/json")
	}
	if raw != nil || out.Replaced {
		setRequestBody(next, body)
	}
	return nil, next, nil
}

// responsePhase rewrites responses from tracked API urls.
func (p *Pipeline) responsePhase(req *http.Request, resp *http.Response) (*http.Response, error) {
	if !p.tracked(req.URL) {
		return resp, nil
	}
	if p.rescueUser(req, resp) || !rewritable(resp.Header) {
		return resp, nil
	}
	return resp, p.rewriteBody(req, resp)
}

// rescueUser answers a refused user-endpoint request with the entitled
// user, in place: status becomes 200, other headers are kept. It reports
// whether resp was rewritten.
func (p *Pipeline) rescueUser(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return false
	}
	if !p.isUserEndpoint(req.URL.Path) {
		return false
	}
	body, err := json.Marshal(p.opts.EntitledUser)
	if err != nil {
		return false
	}
	logging.Intercept("User endpoint returned %d, serving entitled user", resp.StatusCode)
	resp.Body.Close()
	resp.StatusCode = http.StatusOK
	resp.Status = strconv.Itoa(http.StatusOK) + " " + http.StatusText(http.StatusOK)
	resp.Header.Del("Content-Encoding")
	resp.Header.Set("Content-Type", "application/json")
	setResponseBody(resp, body)
	return true
}

// rewriteBody passes the response text through the decode hook and
// ProcessData. Text that does not decode is kept as it was.
func (p *Pipeline) rewriteBody(req *http.Request, resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}
	body, _ := p.rewriteJSON(req.Method, req.URL.String(), raw)
	setResponseBody(resp, body)
	return nil
}

// tracked reports whether responses from u are rewritten.
func (p *Pipeline) tracked(u *url.URL) bool {
	if !strings.Contains(u.Path, "/api/") {
		return false
	}
	if len(p.opts.TrackedHosts) == 0 {
		return true
	}
	return slices.Contains(p.opts.TrackedHosts, u.Hostname())
}

func (p *Pipeline) isUserEndpoint(path string) bool {
	return strings.TrimSuffix(path, "/") == p.opts.APIPrefix+"/user"
}

func blockedBody(result any) any {
	if result == nil {
		return map[string]any{}
	}
	return result
}

func synthesize(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	h := make(http.Header)
	for k, v := range header {
		h[k] = slices.Clone(v)
	}
	h.Del("Content-Encoding")
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func setRequestBody(req *http.Request, body []byte) {
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.ContentLength = int64(len(body))
	if len(body) > 0 {
		req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}
}

func setResponseBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

func isJSON(h http.Header) bool {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// rewritable reports whether a tracked response body is worth decoding.
// JSON is often served under other media types, so everything but
// documents and media is tried.
func rewritable(h http.Header) bool {
	if !identityEncoded(h) {
		return false
	}
	if isJSON(h) {
		return true
	}
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return true
	}
	if mt == "text/html" {
		return false
	}
	for _, prefix := range []string{"image/", "audio/", "video/", "font/"} {
		if strings.HasPrefix(mt, prefix) {
			return false
		}
	}
	return true
}

func isHTML(h http.Header) bool {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mt == "text/html"
}

func identityEncoded(h http.Header) bool {
	enc := h.Get("Content-Encoding")
	return enc == "" || strings.EqualFold(enc, "identity")
}
