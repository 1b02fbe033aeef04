package intercept

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode parses raw JSON. Numbers decode as json.Number so ids survive a
// re-encode unchanged. With HookDecode installed the decoded value is
// patched before it is returned.
func (p *Pipeline) Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("intercept: trailing data after JSON value")
	}

	if p.Installed(HookDecode) {
		p.Patch(v)
	}
	return v, nil
}

// Unmarshal is json.Unmarshal through the decode hook.
func (p *Pipeline) Unmarshal(raw []byte, out any) error {
	v, err := p.Decode(raw)
	if err != nil {
		return err
	}
	patched, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(patched, out)
}

// rewriteJSON decodes body, runs it through ProcessData and re-encodes it.
// ok is false when body is not JSON.
func (p *Pipeline) rewriteJSON(method, url string, body []byte) (out []byte, ok bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return body, false
	}
	v, err := p.Decode(body)
	if err != nil {
		return body, false
	}
	v = p.ProcessData(method, url, v)
	out, err = json.Marshal(v)
	if err != nil {
		return body, false
	}
	return out, true
}
