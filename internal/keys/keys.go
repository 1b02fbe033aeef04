// Package keys derives deterministic storage keys from an identity tuple.
//
// Key formats:
//
//	v1 (legacy, one record per game+user): mg:game_<game>:user_<user>
//	v2 (current, one record per map):      fmg:game_<game>:map_<map>:user_<user>:v2
//
// The functions here are pure: the same identity and version always produce
// the same key, which the migration and the save/load round trip rely on.
package keys

import (
	"errors"
	"fmt"
)

// Schema versions.
const (
	V1 = 1
	V2 = 2

	// Latest is the schema version new records are written with.
	Latest = V2
)

// ErrUnknownVersion is returned when no key format exists for a version.
var ErrUnknownVersion = errors.New("keys: unknown schema version")

// Identity scopes one override record.
type Identity struct {
	GameID int `json:"gameId"`
	MapID  int `json:"mapId"`
	UserID int `json:"userId"`
}

// WithMap returns a copy of the identity pointing at another map.
func (id Identity) WithMap(mapID int) Identity {
	id.MapID = mapID
	return id
}

func (id Identity) String() string {
	return fmt.Sprintf("game=%d map=%d user=%d", id.GameID, id.MapID, id.UserID)
}

// V1Key returns the legacy key. Legacy records were scoped per game, so the
// map id does not take part.
func V1Key(id Identity) string {
	return fmt.Sprintf("mg:game_%d:user_%d", id.GameID, id.UserID)
}

// V2Key returns the current per-map key.
func V2Key(id Identity) string {
	return fmt.Sprintf("fmg:game_%d:map_%d:user_%d:v2", id.GameID, id.MapID, id.UserID)
}

// MigratedKey marks that the legacy record was carried into the v2 key.
func MigratedKey(id Identity) string {
	return fmt.Sprintf("fmg:game_%d:map_%d:user_%d:migrated", id.GameID, id.MapID, id.UserID)
}

// LatestKey returns the key for the current schema version.
func LatestKey(id Identity) string {
	return V2Key(id)
}

// For returns the key for an explicit schema version.
func For(id Identity, version int) (string, error) {
	switch version {
	case V1:
		return V1Key(id), nil
	case V2:
		return V2Key(id), nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
}
