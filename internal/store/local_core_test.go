package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "nested", "mapkeep.db"), DriverModernC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewLocalStore(t *testing.T) {
	s := newTestStore(t)

	assert.True(t, tableExists(s.db, "kv"))
	assert.True(t, columnExists(s.db, "kv", "updated_at"))
	assert.Equal(t, CurrentSchemaVersion, GetSchemaVersion(s.db))
}

func TestNewLocalStoreRejectsUnknownDriver(t *testing.T) {
	_, err := NewLocalStore(filepath.Join(t.TempDir(), "x.db"), "postgres")
	require.Error(t, err)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`)))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":2}`)))
	got, _, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	require.NoError(t, s.Remove(ctx, "k"))
	require.NoError(t, s.Remove(ctx, "k"), "removing a missing key is not an error")
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStoreKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, k := range []string{"fmg:game_1:map_2:user_3:v2", "fmg:game_1:map_1:user_3:v2", "mg:game_1:user_3"} {
		require.NoError(t, s.Set(ctx, k, []byte("{}")))
	}

	keys, err := s.Keys(ctx, "fmg:game_1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"fmg:game_1:map_1:user_3:v2", "fmg:game_1:map_2:user_3:v2"}, keys)
}

func TestLocalStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mapkeep.db")

	s, err := NewLocalStore(path, "")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = NewLocalStore(path, "")
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(got))
}

func TestRunMigrationsUpgradesV1Table(t *testing.T) {
	db, err := sql.Open(DriverModernC, filepath.Join(t.TempDir(), "old.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)
	assert.Equal(t, 1, GetSchemaVersion(db))

	require.NoError(t, RunMigrations(db))
	assert.True(t, columnExists(db, "kv", "updated_at"))
	assert.Equal(t, CurrentSchemaVersion, GetSchemaVersion(db))

	// Running again is a no-op.
	require.NoError(t, RunMigrations(db))
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_versions").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	type rec struct {
		IDs []int `json:"ids"`
	}

	_, ok, err := GetJSON[rec](ctx, d, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, d, "k", rec{IDs: []int{1, 2}}))
	got, ok, err := GetJSON[rec](ctx, d, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, got.IDs)

	require.NoError(t, d.Set(ctx, "bad", []byte("{")))
	_, ok, err = GetJSON[rec](ctx, d, "bad")
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestMemoryDriverCopiesValues(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	in := []byte("abc")
	require.NoError(t, d.Set(ctx, "k", in))
	in[0] = 'x'

	out, _, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
	out[0] = 'y'

	again, _, _ := d.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, d.Len())
}
