package overrides

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"mapkeep/internal/logging"
)

// ShareParam is the query parameter carrying a shared note.
const ShareParam = "fmg_note"

const coordPrecision = 5

var (
	// ErrNoSharedNote is returned when a URL carries no shared note.
	ErrNoSharedNote = errors.New("overrides: no shared note in url")
	// ErrInvalidSharedNote is returned when the shared payload cannot be decoded.
	ErrInvalidSharedNote = errors.New("overrides: invalid shared note")
)

// SharedNote is the compact form of a note carried in a share link.
type SharedNote struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	D string  `json:"d"`
	T string  `json:"t,omitempty"`
	C *string `json:"c"`
	M int     `json:"m"`
}

// shareEncoder and shareDecoder are safe for concurrent EncodeAll/DecodeAll use.
var (
	shareEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	shareDecoder, _ = zstd.NewReader(nil)
)

// MinifyNote returns the share form of n, coordinates rounded to 5 places.
func MinifyNote(n Note) SharedNote {
	return SharedNote{
		X: round(n.Latitude),
		Y: round(n.Longitude),
		D: n.Description,
		T: n.Title,
		C: n.Color,
		M: n.MapID,
	}
}

// Expand turns a shared note into a note owned by userID.
func (s SharedNote) Expand(userID int) Note {
	return Note{
		ID:          "fmg-share-" + uuid.NewString(),
		MapID:       s.M,
		UserID:      userID,
		Title:       s.T,
		Description: s.D,
		Color:       s.C,
		Latitude:    s.X,
		Longitude:   s.Y,
	}
}

// EncodeSharedNote compresses n into the value of the share parameter.
func EncodeSharedNote(n Note) (string, error) {
	raw, err := json.Marshal(MinifyNote(n))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(shareEncoder.EncodeAll(raw, nil)), nil
}

// DecodeSharedNote reverses EncodeSharedNote.
func DecodeSharedNote(value string) (SharedNote, error) {
	var s SharedNote
	compressed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSharedNote, err)
	}
	raw, err := shareDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSharedNote, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSharedNote, err)
	}
	for _, k := range []string{"x", "y", "d", "m"} {
		if _, ok := fields[k]; !ok {
			return s, fmt.Errorf("%w: missing %q", ErrInvalidSharedNote, k)
		}
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSharedNote, err)
	}
	return s, nil
}

// ShareURL returns base with the share parameter set for n.
func ShareURL(n Note, base *url.URL) (string, error) {
	value, err := EncodeSharedNote(n)
	if err != nil {
		return "", err
	}
	u := *base
	q := u.Query()
	q.Set(ShareParam, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseShareURL extracts the shared note from u.
func ParseShareURL(u *url.URL) (SharedNote, error) {
	value := u.Query().Get(ShareParam)
	if value == "" {
		return SharedNote{}, ErrNoSharedNote
	}
	return DecodeSharedNote(value)
}

// ImportSharedNote adds the shared note carried by u to rec. Notes for
// another map are skipped. It reports whether a note was inserted.
func ImportSharedNote(rec *Record, u *url.URL) (bool, error) {
	shared, err := ParseShareURL(u)
	if err != nil {
		return false, err
	}
	if shared.M != rec.Identity.MapID {
		logging.Get(logging.CategoryStore).Warn("Shared note map %d does not match current map %d, skipping", shared.M, rec.Identity.MapID)
		return false, nil
	}
	_, inserted := rec.AddNote(shared.Expand(rec.Identity.UserID))
	if !inserted {
		logging.StoreDebug("Shared note already exists, skipping")
	}
	return inserted, nil
}

// StripShareParam returns u without the share parameter.
func StripShareParam(u *url.URL) *url.URL {
	cp := *u
	q := cp.Query()
	q.Del(ShareParam)
	cp.RawQuery = q.Encode()
	return &cp
}

func round(v float64) float64 {
	p := math.Pow10(coordPrecision)
	return math.Round(v*p) / p
}
