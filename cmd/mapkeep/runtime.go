package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mapkeep/internal/config"
	"mapkeep/internal/keys"
	"mapkeep/internal/migrate"
	"mapkeep/internal/overrides"
	"mapkeep/internal/store"
	"mapkeep/internal/transfer"
)

// runtime bundles the storage stack one command works with.
type runtime struct {
	driver store.Driver
	engine *migrate.Engine
	store  *overrides.Store
	helper *transfer.Helper
	close  func() error
}

func openRuntime(c *config.Config) (*runtime, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	rt := &runtime{close: func() error { return nil }}
	switch c.Storage.Driver {
	case config.DriverMemory:
		rt.driver = store.NewMemoryDriver()
	default:
		ls, err := store.NewLocalStore(c.Storage.Path, c.Storage.Driver)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		rt.driver = ls
		rt.close = ls.Close
	}

	rt.engine = migrate.NewEngine(rt.driver)
	rt.store = overrides.NewStore(rt.driver, rt.engine)
	rt.helper = transfer.NewHelper(rt.driver, rt.engine)
	logger.Debug("Storage opened", zap.String("driver", c.Storage.Driver), zap.String("path", c.Storage.Path))
	return rt, nil
}

func (r *runtime) Close() error {
	return r.close()
}

// identityFromFlags returns the identity named on the command line.
func identityFromFlags() (keys.Identity, bool, error) {
	if gameID <= 0 || mapID <= 0 {
		return keys.Identity{}, false, errors.New("--game and --map must be positive")
	}
	id := keys.Identity{GameID: gameID, MapID: mapID, UserID: userID}
	return id, userID != 0, nil
}
