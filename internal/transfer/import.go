package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mapkeep/internal/keys"
	"mapkeep/internal/logging"
	"mapkeep/internal/migrate"
	"mapkeep/internal/overrides"
	"mapkeep/internal/store"
)

// Status is the outcome class of an import.
type Status int

const (
	Ok Status = iota
	Rejected
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case Rejected:
		return "rejected"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result reports how an import ended. Reason is set for Rejected and
// Cancelled results.
type Result struct {
	Status Status
	Reason string
}

// Rejection reasons.
const (
	ReasonWrongGame      = "data does not belong to current game"
	ReasonWrongMap       = "data does not belong to current map"
	ReasonMalformed      = "malformed payload"
	ReasonUnknownVersion = "unknown version"
	ReasonNothing        = "nothing to import"
	ReasonOverwrite      = "overwrite declined"
	ReasonUserMismatch   = "user mismatch declined"
)

// Confirmer answers the questions an import may need to ask.
type Confirmer interface {
	ConfirmOverwrite() bool
	ConfirmUserMismatch(got, want int) bool
}

type assume bool

func (a assume) ConfirmOverwrite() bool            { return bool(a) }
func (a assume) ConfirmUserMismatch(_, _ int) bool { return bool(a) }

// Assume returns a Confirmer that always answers answer.
func Assume(answer bool) Confirmer {
	return assume(answer)
}

// legacyVersion is the envelope version of pre-v2 exports.
const legacyVersion = "v5"

type importEnvelope struct {
	Version       json.RawMessage `json:"version"`
	GameID        *int            `json:"gameId"`
	MapID         *int            `json:"mapId"`
	UserID        *int            `json:"userId"`
	Data          json.RawMessage `json:"data"`
	StorageObject json.RawMessage `json:"storageObject"`
}

func (e importEnvelope) version() (any, bool) {
	var n int
	if err := json.Unmarshal(e.Version, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(e.Version, &s); err == nil {
		return s, true
	}
	return nil, false
}

// Import writes payload as the record of id. Storage is left untouched when
// the payload is rejected, and restored when a write fails part way. Pending
// legacy data of id is migrated before the overwrite check, so a cancelled
// import leaves storage as a load would.
func (h *Helper) Import(ctx context.Context, id keys.Identity, payload []byte, confirm Confirmer) Result {
	var env importEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return rejected(id, ReasonMalformed)
	}

	if env.GameID == nil || *env.GameID != id.GameID {
		return rejected(id, ReasonWrongGame)
	}
	if env.MapID != nil && *env.MapID != 0 && *env.MapID != id.MapID {
		return rejected(id, ReasonWrongMap)
	}

	h.migrate(ctx, id)
	current, _, err := store.GetJSON[overrides.StorageObject](ctx, h.driver, keys.V2Key(id))
	if err == nil && !current.IsEmpty() {
		if !confirm.ConfirmOverwrite() {
			return cancelled(id, ReasonOverwrite)
		}
	}

	gotUser := 0
	if env.UserID != nil {
		gotUser = *env.UserID
	}
	if gotUser != id.UserID && !confirm.ConfirmUserMismatch(gotUser, id.UserID) {
		return cancelled(id, ReasonUserMismatch)
	}

	version, ok := env.version()
	if !ok {
		return rejected(id, ReasonUnknownVersion)
	}

	tx, err := Begin(ctx, h.driver, keys.V2Key(id), keys.V1Key(id), keys.MigratedKey(id))
	if err != nil {
		return rejected(id, err.Error())
	}

	switch version {
	case ExportVersion:
		err = h.importCurrent(ctx, id, env.Data)
	case legacyVersion:
		err = h.importLegacy(ctx, id, env.StorageObject)
	default:
		err = errUnknownVersion
	}
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logging.Get(logging.CategoryTransfer).Error("Rollback of %s failed: %v", id, rbErr)
		}
		return rejected(id, reason(err))
	}

	tx.Commit()
	logging.Transfer("Imported %s (version %v)", id, version)
	return Result{Status: Ok}
}

var (
	errUnknownVersion = errors.New(ReasonUnknownVersion)
	errMalformed      = errors.New(ReasonMalformed)
	errNothing        = errors.New(ReasonNothing)
)

func (h *Helper) importCurrent(ctx context.Context, id keys.Identity, data json.RawMessage) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errMalformed
	}
	var obj overrides.StorageObject
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&obj); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if obj.IsEmpty() {
		return h.driver.Remove(ctx, keys.V2Key(id))
	}
	return store.SetJSON(ctx, h.driver, keys.V2Key(id), obj)
}

func (h *Helper) importLegacy(ctx context.Context, id keys.Identity, data json.RawMessage) error {
	if h.migrator == nil {
		return errUnknownVersion
	}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errMalformed
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	if err := h.driver.Remove(ctx, keys.V2Key(id)); err != nil {
		return err
	}
	if err := h.driver.Set(ctx, keys.V1Key(id), data); err != nil {
		return err
	}
	if err := h.migrator.Force(ctx, id); err != nil {
		if errors.Is(err, migrate.ErrNoLegacyData) {
			return errNothing
		}
		return err
	}
	return nil
}

func reason(err error) string {
	for _, sentinel := range []error{errUnknownVersion, errMalformed, errNothing} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func rejected(id keys.Identity, why string) Result {
	logging.Get(logging.CategoryTransfer).Warn("Import into %s rejected: %s", id, why)
	return Result{Status: Rejected, Reason: why}
}

func cancelled(id keys.Identity, why string) Result {
	logging.Transfer("Import into %s cancelled: %s", id, why)
	return Result{Status: Cancelled, Reason: why}
}
