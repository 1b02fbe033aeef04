package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"mapkeep/internal/keys"
)

// ErrWaitTimeout is returned when a polled condition never holds.
var ErrWaitTimeout = errors.New("browser: wait timed out")

// PollInterval is how often waits re-check their condition.
const PollInterval = 100 * time.Millisecond

// poll calls cond until it reports true, ctx ends or timeout elapses.
// Errors from cond count as "not yet".
func poll(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond(ctx)
		if ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w: %v", ErrWaitTimeout, lastErr)
			}
			return ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

// WaitForGlobals waits until every dotted path in names (for example
// "mapData.map.id") resolves to a defined value on window.
func WaitForGlobals(ctx context.Context, page *rod.Page, timeout time.Duration, names ...string) error {
	const js = `(names) => names.every(n =>
		n.split('.').reduce((o, k) => (o == null ? undefined : o[k]), window) !== undefined)`
	return poll(ctx, timeout, PollInterval, func(ctx context.Context) (bool, error) {
		res, err := page.Context(ctx).Evaluate(rod.Eval(js, names))
		if err != nil {
			return false, err
		}
		return res.Value.Bool(), nil
	})
}

// WaitForElement waits until selector matches an element.
func WaitForElement(ctx context.Context, page *rod.Page, timeout time.Duration, selector string) (*rod.Element, error) {
	var el *rod.Element
	err := poll(ctx, timeout, PollInterval, func(ctx context.Context) (bool, error) {
		has, found, err := page.Context(ctx).Has(selector)
		if err != nil || !has {
			return false, err
		}
		el = found
		return true, nil
	})
	return el, err
}

// ReadIdentity reads the game, map and user ids from the application's
// globals. hasUser is false when no user is signed in.
func ReadIdentity(ctx context.Context, page *rod.Page) (id keys.Identity, hasUser bool, err error) {
	res, err := page.Context(ctx).Evaluate(rod.Eval(`() => ({
		game: window.game ? window.game.id : null,
		map: window.mapData && window.mapData.map ? window.mapData.map.id : null,
		user: window.user ? window.user.id : null,
	})`))
	if err != nil {
		return keys.Identity{}, false, fmt.Errorf("read identity: %w", err)
	}
	v := res.Value
	if v.Get("game").Nil() || v.Get("map").Nil() {
		return keys.Identity{}, false, errors.New("read identity: game or map not loaded")
	}
	id = keys.Identity{GameID: v.Get("game").Int(), MapID: v.Get("map").Int()}
	if !v.Get("user").Nil() {
		id.UserID = v.Get("user").Int()
		hasUser = true
	}
	return id, hasUser, nil
}
