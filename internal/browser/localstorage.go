package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-rod/rod"
)

// LocalStorageDriver persists keys in a page's window.localStorage, the
// store the map application itself reads.
type LocalStorageDriver struct {
	page *rod.Page
}

// NewLocalStorageDriver returns a driver over page.
func NewLocalStorageDriver(page *rod.Page) *LocalStorageDriver {
	return &LocalStorageDriver{page: page}
}

func (d *LocalStorageDriver) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := d.page.Context(ctx).Evaluate(rod.Eval(`(k) => localStorage.getItem(k)`, key))
	if err != nil {
		return nil, false, fmt.Errorf("localStorage get %s: %w", key, err)
	}
	if res.Value.Nil() {
		return nil, false, nil
	}
	return []byte(res.Value.Str()), true, nil
}

func (d *LocalStorageDriver) Set(ctx context.Context, key string, value []byte) error {
	_, err := d.page.Context(ctx).Evaluate(rod.Eval(`(k, v) => localStorage.setItem(k, v)`, key, string(value)))
	if err != nil {
		return fmt.Errorf("localStorage set %s: %w", key, err)
	}
	return nil
}

func (d *LocalStorageDriver) Remove(ctx context.Context, key string) error {
	_, err := d.page.Context(ctx).Evaluate(rod.Eval(`(k) => localStorage.removeItem(k)`, key))
	if err != nil {
		return fmt.Errorf("localStorage remove %s: %w", key, err)
	}
	return nil
}

// Keys returns the stored keys starting with prefix, sorted.
func (d *LocalStorageDriver) Keys(ctx context.Context, prefix string) ([]string, error) {
	res, err := d.page.Context(ctx).Evaluate(rod.Eval(`() => Object.keys(localStorage)`))
	if err != nil {
		return nil, fmt.Errorf("localStorage keys: %w", err)
	}
	var out []string
	for _, v := range res.Value.Arr() {
		if k := v.Str(); strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
