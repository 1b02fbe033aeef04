package keys

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysAreDeterministic(t *testing.T) {
	id := Identity{GameID: 1, MapID: 5, UserID: 9}

	assert.Equal(t, V2Key(id), V2Key(id))
	assert.Equal(t, "fmg:game_1:map_5:user_9:v2", V2Key(id))
	assert.Equal(t, "mg:game_1:user_9", V1Key(id))
	assert.Equal(t, "fmg:game_1:map_5:user_9:migrated", MigratedKey(id))
	assert.Equal(t, V2Key(id), LatestKey(id))
}

func TestMapsAreIndependent(t *testing.T) {
	a := Identity{GameID: 1, MapID: 5, UserID: 9}
	b := a.WithMap(6)

	assert.NotEqual(t, V2Key(a), V2Key(b))
	assert.Equal(t, V1Key(a), V1Key(b), "legacy records are per game")
	assert.Equal(t, 5, a.MapID, "WithMap must not mutate the receiver")
}

func TestFor(t *testing.T) {
	id := Identity{GameID: 3, MapID: 4, UserID: 5}

	tests := []struct {
		version int
		want    string
		wantErr bool
	}{
		{V1, "mg:game_3:user_5", false},
		{V2, "fmg:game_3:map_4:user_5:v2", false},
		{7, "", true},
	}

	for _, tt := range tests {
		got, err := For(id, tt.version)
		if tt.wantErr {
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnknownVersion))
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
