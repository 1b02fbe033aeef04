package intercept

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"mapkeep/internal/logging"
)

// Outcome is the result of dispatching one request.
type Outcome struct {
	// Data is the request payload to continue with: the filter's
	// replacement when it returned one, the original otherwise.
	Data any
	// Result is the filter's return value. Blocked requests are answered
	// with it.
	Result any
	// Matched reports whether a filter matched.
	Matched bool
	// Blocked reports whether the filter blocked the request.
	Blocked bool
	// Replaced reports whether Data differs from the original payload.
	Replaced bool
	// Err holds the filter's error or recovered panic.
	Err error
}

// candidates returns the filters of method ordered most specific first:
// patterns without an id segment, then longer keys.
func (p *Pipeline) candidates(method string) []*filter {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*filter, 0, len(p.filters[method]))
	for _, f := range p.filters[method] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.hasID != b.hasID {
			return !a.hasID
		}
		if len(a.key) != len(b.key) {
			return len(a.key) > len(b.key)
		}
		return a.key < b.key
	})
	return out
}

func (p *Pipeline) match(method, path string) (*filter, []string) {
	methods := []string{method}
	if method != MethodAny {
		methods = append(methods, MethodAny)
	}
	for _, m := range methods {
		for _, f := range p.candidates(m) {
			if sub := f.re.FindStringSubmatch(path); sub != nil {
				return f, sub
			}
		}
	}
	return nil, nil
}

// Dispatch runs the filter matching method and rawURL on data. Only the URL
// path takes part in matching. Filter errors and panics are logged and the
// original data is kept.
func (p *Pipeline) Dispatch(ctx context.Context, method, rawURL string, data any) Outcome {
	out := Outcome{Data: data}

	m := strings.ToLower(method)
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}

	f, sub := p.match(m, path)
	if f == nil {
		return out
	}
	out.Matched = true

	call := &Call{Method: m, Data: data, URL: rawURL}
	for i, name := range f.re.SubexpNames() {
		switch name {
		case "key":
			call.Key = sub[i]
		case "id":
			call.ID = sub[i]
		}
	}

	result, err := invoke(ctx, f, call)
	if err != nil {
		logging.InterceptError("Filter %s %s failed: %v", m, f.key, err)
		out.Err = err
		return out
	}

	out.Result = result
	out.Blocked = call.Blocked()
	if result != nil {
		out.Data = result
		out.Replaced = true
	}
	if out.Blocked {
		logging.Audit(logging.AuditEvent{Type: logging.AuditRequestBlocked, Key: path, Success: true, Detail: m})
	}
	return out
}

func invoke(ctx context.Context, f *filter, call *Call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("filter panicked: %v", r)
		}
	}()
	return f.fn(ctx, call)
}
