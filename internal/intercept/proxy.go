package intercept

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"mapkeep/internal/logging"
)

// ReverseProxy returns a proxy to upstream. Requests pass through the
// request phase of the transport hook; response text is rewritten in
// ModifyResponse, including JSON state embedded in HTML documents.
func (p *Pipeline) ReverseProxy(upstream *url.URL, base http.RoundTripper) *httputil.ReverseProxy {
	if base == nil {
		base = http.DefaultTransport
	}
	p.InstallHook(HookProxy)

	rp := httputil.NewSingleHostReverseProxy(upstream)
	director := rp.Director
	rp.Director = func(req *http.Request) {
		director(req)
		req.Host = upstream.Host
		// Ask for identity bodies so ModifyResponse can read them.
		req.Header.Del("Accept-Encoding")
	}
	rp.Transport = &transport{p: p, base: base, requestOnly: true}
	rp.ModifyResponse = p.modifyResponse
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logging.InterceptError("Proxy %s %s failed: %v", r.Method, r.URL.Path, err)
		w.WriteHeader(http.StatusBadGateway)
	}
	return rp
}

func (p *Pipeline) modifyResponse(resp *http.Response) error {
	req := resp.Request
	if req == nil {
		return nil
	}
	if p.tracked(req.URL) && p.rescueUser(req, resp) {
		return nil
	}
	if !identityEncoded(resp.Header) {
		return nil
	}

	switch {
	case isHTML(resp.Header):
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		body, err := p.PatchHTML(req.Method, req.URL.String(), raw)
		if err != nil {
			logging.InterceptDebug("Leaving HTML of %s untouched: %v", req.URL.Path, err)
			body = raw
		}
		setResponseBody(resp, body)
	case p.tracked(req.URL) && rewritable(resp.Header):
		return p.rewriteBody(req, resp)
	}
	return nil
}

// PatchHTML rewrites every <script type="application/json"> block of doc
// through the decode hook and ProcessData. Documents without such blocks
// are returned unchanged.
func (p *Pipeline) PatchHTML(method, url string, doc []byte) ([]byte, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}

	patched := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script && isJSONScript(n) {
			if text := n.FirstChild; text != nil && text.Type == html.TextNode {
				if out, ok := p.rewriteJSON(method, url, []byte(text.Data)); ok {
					text.Data = string(out)
					patched++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if patched == 0 {
		return doc, nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, err
	}
	logging.InterceptDebug("Patched %d embedded JSON blocks", patched)
	return buf.Bytes(), nil
}

func isJSONScript(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "type" {
			return strings.EqualFold(strings.TrimSpace(a.Val), "application/json")
		}
	}
	return false
}
