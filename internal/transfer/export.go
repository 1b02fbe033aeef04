// Package transfer moves override records in and out of the store as JSON
// documents.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mapkeep/internal/keys"
	"mapkeep/internal/logging"
	"mapkeep/internal/overrides"
	"mapkeep/internal/store"
)

// ErrNothingToExport is returned when the identity has no stored data.
var ErrNothingToExport = errors.New("transfer: no data to export")

// ExportVersion is the envelope version written by Export.
const ExportVersion = 2

// Envelope is the exported document.
type Envelope struct {
	Version int                     `json:"version"`
	GameID  int                     `json:"gameId"`
	MapID   int                     `json:"mapId"`
	UserID  int                     `json:"userId"`
	Data    overrides.StorageObject `json:"data"`
}

// Exported is a serialized envelope plus a suggested file name.
type Exported struct {
	JSON     []byte
	Filename string
}

// LegacyMigrator upgrades legacy records. Migrate is the best-effort
// upgrade every read runs first; Force re-runs the transformation and
// reports failures.
type LegacyMigrator interface {
	Migrate(ctx context.Context, id keys.Identity)
	Force(ctx context.Context, id keys.Identity) error
}

// Helper exports and imports records for one driver.
type Helper struct {
	driver   store.Driver
	migrator LegacyMigrator
	now      func() time.Time
}

// NewHelper returns a helper over driver. migrator handles legacy imports.
func NewHelper(driver store.Driver, migrator LegacyMigrator) *Helper {
	return &Helper{driver: driver, migrator: migrator, now: time.Now}
}

func (h *Helper) migrate(ctx context.Context, id keys.Identity) {
	if h.migrator != nil {
		h.migrator.Migrate(ctx, id)
	}
}

// Filename returns the export file name for id at t.
func Filename(id keys.Identity, t time.Time) string {
	return fmt.Sprintf("fmg_game_%d_map_%d_user_%d_%s.json", id.GameID, id.MapID, id.UserID, t.UTC().Format(time.RFC3339))
}

// Export serializes the current record of id. Pending legacy data is
// migrated first, as on every load.
func (h *Helper) Export(ctx context.Context, id keys.Identity) (*Exported, error) {
	h.migrate(ctx, id)
	obj, ok, err := store.GetJSON[overrides.StorageObject](ctx, h.driver, keys.V2Key(id))
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", id, err)
	}
	if !ok || obj.IsEmpty() {
		return nil, ErrNothingToExport
	}

	raw, err := json.Marshal(Envelope{
		Version: ExportVersion,
		GameID:  id.GameID,
		MapID:   id.MapID,
		UserID:  id.UserID,
		Data:    obj,
	})
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", id, err)
	}

	logging.Transfer("Exported %s (%d bytes)", id, len(raw))
	return &Exported{JSON: raw, Filename: Filename(id, h.now())}, nil
}
