package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapkeep/internal/keys"
	"mapkeep/internal/migrate"
	"mapkeep/internal/overrides"
	"mapkeep/internal/store"
)

var id = keys.Identity{GameID: 1, MapID: 5, UserID: 9}

type recordingConfirmer struct {
	overwrite, user     bool
	askedOverwrite      bool
	askedUser           bool
	gotUser, wantedUser int
}

func (c *recordingConfirmer) ConfirmOverwrite() bool {
	c.askedOverwrite = true
	return c.overwrite
}

func (c *recordingConfirmer) ConfirmUserMismatch(got, want int) bool {
	c.askedUser = true
	c.gotUser, c.wantedUser = got, want
	return c.user
}

type failingMigrator struct{}

func (failingMigrator) Migrate(context.Context, keys.Identity) {}

func (failingMigrator) Force(context.Context, keys.Identity) error {
	return errors.New("boom")
}

func newHelper(d store.Driver) *Helper {
	h := NewHelper(d, migrate.NewEngine(d))
	h.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	d := store.NewMemoryDriver()
	h := newHelper(d)

	_, err := h.Export(ctx, id)
	assert.ErrorIs(t, err, ErrNothingToExport)

	require.NoError(t, d.Set(ctx, keys.V2Key(id), []byte(`{"locationIds":[101]}`)))
	out, err := h.Export(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "fmg_game_1_map_5_user_9_2024-03-01T12:00:00Z.json", out.Filename)
	assert.JSONEq(t, `{"version":2,"gameId":1,"mapId":5,"userId":9,"data":{"locationIds":[101]}}`, string(out.JSON))
}

func TestExportMigratesLegacyData(t *testing.T) {
	ctx := context.Background()
	d := store.NewMemoryDriver()
	require.NoError(t, d.Set(ctx, keys.V1Key(id), []byte(`{"locations":{"101":true}}`)))

	out, err := newHelper(d).Export(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":2,"gameId":1,"mapId":5,"userId":9,"data":{"locationIds":[101]}}`, string(out.JSON))

	loaded, err := overrides.NewStore(d, migrate.NewEngine(d)).Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int{101}, loaded.Found.IDsPresent())
}

func TestImportAsksBeforeReplacingLegacyData(t *testing.T) {
	ctx := context.Background()
	d := store.NewMemoryDriver()
	require.NoError(t, d.Set(ctx, keys.V1Key(id), []byte(`{"locations":{"101":true}}`)))

	c := &recordingConfirmer{}
	res := newHelper(d).Import(ctx, id, []byte(`{"version":2,"gameId":1,"mapId":5,"userId":9,"data":{"locationIds":[7]}}`), c)
	assert.Equal(t, Cancelled, res.Status)
	assert.Equal(t, ReasonOverwrite, res.Reason)
	assert.True(t, c.askedOverwrite)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryDriver()
	require.NoError(t, src.Set(ctx, keys.V2Key(id), []byte(`{"locationIds":[101],"notes":[{"id":"n","map_id":5,"user_id":9,"title":"","description":"d","color":null,"latitude":1,"longitude":2,"category":null}]}`)))
	out, err := newHelper(src).Export(ctx, id)
	require.NoError(t, err)

	dst := store.NewMemoryDriver()
	res := newHelper(dst).Import(ctx, id, out.JSON, Assume(false))
	require.Equal(t, Ok, res.Status, res.Reason)

	want, _, _ := src.Get(ctx, keys.V2Key(id))
	got, _, _ := dst.Get(ctx, keys.V2Key(id))
	assert.JSONEq(t, string(want), string(got))
}

func TestImportRejectsWrongGameWithoutTouchingStorage(t *testing.T) {
	ctx := context.Background()
	d := store.NewMemoryDriver()
	before := []byte(`{"locationIds":[1,2,3]}`)
	require.NoError(t, d.Set(ctx, keys.V2Key(id), before))

	c := &recordingConfirmer{overwrite: true, user: true}
	res := newHelper(d).Import(ctx, id, []byte(`{"version":2,"gameId":2,"mapId":5,"userId":9,"data":{"locationIds":[9]}}`), c)

	assert.Equal(t, Rejected, res.Status)
	assert.Equal(t, ReasonWrongGame, res.Reason)
	assert.False(t, c.askedOverwrite)

	after, _, _ := d.Get(ctx, keys.V2Key(id))
	assert.Equal(t, before, after)
}

func TestImportValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Status
		reason  string
	}{
		{"malformed", `{`, Rejected, ReasonMalformed},
		{"missing game", `{"version":2,"mapId":5,"data":{}}`, Rejected, ReasonWrongGame},
		{"wrong map", `{"version":2,"gameId":1,"mapId":6,"userId":9,"data":{"locationIds":[1]}}`, Rejected, ReasonWrongMap},
		{"unknown version", `{"version":3,"gameId":1,"mapId":5,"userId":9,"data":{"locationIds":[1]}}`, Rejected, ReasonUnknownVersion},
		{"missing version", `{"gameId":1,"mapId":5,"userId":9,"data":{"locationIds":[1]}}`, Rejected, ReasonUnknownVersion},
		{"bad data", `{"version":2,"gameId":1,"mapId":5,"userId":9,"data":{"locationIds":"x"}}`, Rejected, ReasonMalformed},
		{"no data", `{"version":2,"gameId":1,"mapId":5,"userId":9}`, Rejected, ReasonMalformed},
		{"map omitted", `{"version":2,"gameId":1,"userId":9,"data":{"locationIds":[1]}}`, Ok, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newHelper(store.NewMemoryDriver()).Import(context.Background(), id, []byte(tt.payload), Assume(true))
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestImportConfirmations(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"version":2,"gameId":1,"mapId":5,"userId":4,"data":{"locationIds":[7]}}`)

	t.Run("overwrite declined", func(t *testing.T) {
		d := store.NewMemoryDriver()
		require.NoError(t, d.Set(ctx, keys.V2Key(id), []byte(`{"locationIds":[1]}`)))
		c := &recordingConfirmer{overwrite: false}

		res := newHelper(d).Import(ctx, id, payload, c)
		assert.Equal(t, Cancelled, res.Status)
		assert.False(t, c.askedUser)
		raw, _, _ := d.Get(ctx, keys.V2Key(id))
		assert.JSONEq(t, `{"locationIds":[1]}`, string(raw))
	})

	t.Run("user mismatch declined", func(t *testing.T) {
		d := store.NewMemoryDriver()
		c := &recordingConfirmer{user: false}

		res := newHelper(d).Import(ctx, id, payload, c)
		assert.Equal(t, Cancelled, res.Status)
		assert.False(t, c.askedOverwrite, "empty storage needs no overwrite confirmation")
		assert.Equal(t, 4, c.gotUser)
		assert.Equal(t, 9, c.wantedUser)
		assert.Zero(t, d.Len())
	})

	t.Run("all confirmed", func(t *testing.T) {
		d := store.NewMemoryDriver()
		require.NoError(t, d.Set(ctx, keys.V2Key(id), []byte(`{"locationIds":[1]}`)))
		c := &recordingConfirmer{overwrite: true, user: true}

		res := newHelper(d).Import(ctx, id, payload, c)
		require.Equal(t, Ok, res.Status)
		raw, _, _ := d.Get(ctx, keys.V2Key(id))
		assert.JSONEq(t, `{"locationIds":[7]}`, string(raw))
	})
}

func TestImportLegacyEnvelope(t *testing.T) {
	ctx := context.Background()
	d := store.NewMemoryDriver()
	payload := []byte(`{"version":"v5","gameId":1,"userId":9,"storageObject":{"locations":{"11":true,"12":false},"categories":{"3":true}}}`)

	res := newHelper(d).Import(ctx, id, payload, Assume(true))
	require.Equal(t, Ok, res.Status, res.Reason)

	obj, ok, err := store.GetJSON[overrides.StorageObject](ctx, d, keys.V2Key(id))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{11}, obj.LocationIDs)
	assert.Equal(t, []int{3}, obj.CategoryIDs)
}

func TestImportLegacyRollsBackOnMigrationFailure(t *testing.T) {
	ctx := context.Background()
	d := store.NewMemoryDriver()
	v2Before := []byte(`{"locationIds":[1]}`)
	v1Before := []byte(`{"locations":{"1":true}}`)
	require.NoError(t, d.Set(ctx, keys.V2Key(id), v2Before))
	require.NoError(t, d.Set(ctx, keys.V1Key(id), v1Before))

	h := NewHelper(d, failingMigrator{})
	res := h.Import(ctx, id, []byte(`{"version":"v5","gameId":1,"userId":9,"storageObject":{"locations":{"5":true}}}`), Assume(true))
	assert.Equal(t, Rejected, res.Status)

	v2After, _, _ := d.Get(ctx, keys.V2Key(id))
	v1After, _, _ := d.Get(ctx, keys.V1Key(id))
	assert.Equal(t, v2Before, v2After)
	assert.Equal(t, v1Before, v1After)
	_, marked, _ := d.Get(ctx, keys.MigratedKey(id))
	assert.False(t, marked)
}

func TestImportLegacyWithNothingToImport(t *testing.T) {
	ctx := context.Background()
	d := store.NewMemoryDriver()

	res := newHelper(d).Import(ctx, id, []byte(`{"version":"v5","gameId":1,"userId":9,"storageObject":{}}`), Assume(true))
	assert.Equal(t, Rejected, res.Status)
	assert.Equal(t, ReasonNothing, res.Reason)
	assert.Zero(t, d.Len(), "staged legacy data is rolled back")
}

type flakyDriver struct {
	*store.MemoryDriver
	failKey string
}

func (f *flakyDriver) Set(ctx context.Context, key string, value []byte) error {
	if key == f.failKey {
		return fmt.Errorf("write %s refused", key)
	}
	return f.MemoryDriver.Set(ctx, key, value)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	d := store.NewMemoryDriver()
	require.NoError(t, d.Set(ctx, "a", []byte("1")))

	tx, err := Begin(ctx, d, "a", "b")
	require.NoError(t, err)
	require.NoError(t, d.Set(ctx, "a", []byte("2")))
	require.NoError(t, d.Set(ctx, "b", []byte("3")))
	require.NoError(t, tx.Rollback(ctx))

	a, _, _ := d.Get(ctx, "a")
	assert.Equal(t, "1", string(a))
	_, ok, _ := d.Get(ctx, "b")
	assert.False(t, ok)

	tx, err = Begin(ctx, d, "a")
	require.NoError(t, err)
	require.NoError(t, d.Set(ctx, "a", []byte("4")))
	tx.Commit()
	require.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")
	a, _, _ = d.Get(ctx, "a")
	assert.Equal(t, "4", string(a))
}

func TestImportFailedWriteLeavesStorageUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryDriver()
	before := []byte(`{"categoryIds":[2]}`)
	require.NoError(t, mem.Set(ctx, keys.V2Key(id), before))
	d := &flakyDriver{MemoryDriver: mem, failKey: keys.V2Key(id)}

	res := newHelper(d).Import(ctx, id, []byte(`{"version":2,"gameId":1,"mapId":5,"userId":9,"data":{"locationIds":[3]}}`), Assume(true))
	assert.Equal(t, Rejected, res.Status)

	after, _, _ := mem.Get(ctx, keys.V2Key(id))
	assert.Equal(t, before, after)
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{Ok: "ok", Rejected: "rejected", Cancelled: "cancelled"} {
		assert.Equal(t, want, s.String())
	}
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"version":2,"gameId":1}`), &env))
	assert.Equal(t, ExportVersion, env.Version)
}
