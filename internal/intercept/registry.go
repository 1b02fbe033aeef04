package intercept

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"mapkeep/internal/logging"
)

var (
	// ErrDuplicateFilter is returned when a (method, key) pair is registered twice.
	ErrDuplicateFilter = errors.New("intercept: filter already registered")
	// ErrUnknownFilter is returned when unregistering a pair that was never registered.
	ErrUnknownFilter = errors.New("intercept: filter not registered")
	// ErrInvalidMethod is returned for methods outside get, put, post, delete and any.
	ErrInvalidMethod = errors.New("intercept: invalid method")
)

// MethodAny matches requests of every method once no method-specific filter did.
const MethodAny = "any"

var filterMethods = []string{"get", "put", "post", "delete", MethodAny}

// Call is one filter invocation.
type Call struct {
	Method string
	Key    string
	ID     string
	Data   any
	URL    string

	blocked bool
}

// Block suppresses the default handling of the request: it is answered
// locally with the filter's return value and never reaches the server.
func (c *Call) Block() {
	c.blocked = true
}

// Blocked reports whether Block was called.
func (c *Call) Blocked() bool {
	return c.blocked
}

// FilterFunc handles a matched request. A non-nil return value supersedes
// the request data and, when the call is blocked, becomes the response.
type FilterFunc func(ctx context.Context, call *Call) (any, error)

type filter struct {
	key   string
	hasID bool
	re    *regexp.Regexp
	fn    FilterFunc
}

// compileKeyPattern builds the path pattern for a filter key.
func compileKeyPattern(prefix, key string, hasID bool) (*regexp.Regexp, error) {
	pattern := regexp.QuoteMeta(prefix+"/user/") + "(?P<key>" + key + ")"
	if hasID {
		pattern += `/(?P<id>[\w-]+)`
	}
	return regexp.Compile(pattern + "$")
}

func normalizeMethod(method string) (string, error) {
	m := strings.ToLower(method)
	if !slices.Contains(filterMethods, m) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	return m, nil
}

// RegisterFilter registers fn for requests to <prefix>/user/<key>, with a
// trailing /<id> segment when hasID is set.
func (p *Pipeline) RegisterFilter(method, key string, hasID bool, fn FilterFunc) error {
	m, err := normalizeMethod(method)
	if err != nil {
		return err
	}
	re, err := compileKeyPattern(p.opts.APIPrefix, key, hasID)
	if err != nil {
		return fmt.Errorf("intercept: compile %q: %w", key, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.filters[m][key]; ok {
		return fmt.Errorf("%w: %s %s", ErrDuplicateFilter, m, key)
	}
	p.filters[m][key] = &filter{key: key, hasID: hasID, re: re, fn: fn}
	logging.InterceptDebug("Registered filter %s %s (id=%v)", m, key, hasID)
	return nil
}

// MustRegisterFilter is RegisterFilter that panics on error.
func (p *Pipeline) MustRegisterFilter(method, key string, hasID bool, fn FilterFunc) {
	if err := p.RegisterFilter(method, key, hasID, fn); err != nil {
		panic(err)
	}
}

// UnregisterFilter removes the filter for (method, key).
func (p *Pipeline) UnregisterFilter(method, key string) error {
	m, err := normalizeMethod(method)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.filters[m][key]; !ok {
		return fmt.Errorf("%w: %s %s", ErrUnknownFilter, m, key)
	}
	delete(p.filters[m], key)
	return nil
}

// Request describes the request a coarse callback is looking at.
type Request struct {
	Method string
	URL    string
}

// RequestFunc rewrites a decoded response. Returning nil keeps data.
type RequestFunc func(req Request, data any) any

type requestEntry struct {
	method string
	re     *regexp.Regexp
	fn     RequestFunc
}

// RegisterRequest appends fn to the coarse registry for method and urls
// matching re.
func (p *Pipeline) RegisterRequest(method string, re *regexp.Regexp, fn RequestFunc) {
	p.mu.Lock()
	p.requests = append(p.requests, requestEntry{method: strings.ToUpper(method), re: re, fn: fn})
	p.mu.Unlock()
	logging.InterceptDebug("Registered request filter for %s %s", strings.ToUpper(method), re)
}

// ProcessData runs every matching coarse callback in registration order.
// A failing callback is logged and skipped.
func (p *Pipeline) ProcessData(method, url string, data any) any {
	method = strings.ToUpper(method)

	p.mu.RLock()
	entries := slices.Clone(p.requests)
	p.mu.RUnlock()

	for _, e := range entries {
		if e.method != method || !e.re.MatchString(url) {
			continue
		}
		if out := runRequestFunc(e, Request{Method: method, URL: url}, data); out != nil {
			data = out
		}
	}
	return data
}

func runRequestFunc(e requestEntry, req Request, data any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			logging.InterceptError("Request filter %s %s panicked: %v", e.method, e.re, r)
			out = nil
		}
	}()
	return e.fn(req, data)
}
