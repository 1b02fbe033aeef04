package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, c Config) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	Initialize(zap.New(core), c)
	t.Cleanup(Reset)
	return logs
}

// TestAllCategoriesLog tests that every category routes through the base logger
func TestAllCategoriesLog(t *testing.T) {
	logs := observe(t, Config{Level: "debug"})

	categories := []Category{
		CategoryBoot,
		CategoryStore,
		CategoryMigrate,
		CategoryTransfer,
		CategoryIntercept,
		CategoryFilters,
		CategoryBridge,
		CategoryBrowser,
	}

	for _, cat := range categories {
		require.True(t, IsCategoryEnabled(cat), "category %s should be enabled", cat)
		Get(cat).Info("info for %s", cat)
	}

	entries := logs.All()
	require.Len(t, entries, len(categories))
	for i, cat := range categories {
		assert.Equal(t, string(cat), entries[i].LoggerName)
		assert.Equal(t, "info for "+string(cat), entries[i].Message)
	}
}

func TestConvenienceFunctions(t *testing.T) {
	logs := observe(t, Config{Level: "debug"})

	Boot("boot %d", 1)
	StoreDebug("store %d", 2)
	MigrateWarn("migrate %d", 3)
	InterceptError("intercept %d", 4)
	FiltersWarn("filters %d", 5)

	entries := logs.All()
	require.Len(t, entries, 5)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "filters 5", entries[4].Message)
}

func TestLevelFiltering(t *testing.T) {
	logs := observe(t, Config{Level: "warn"})

	Store("dropped")
	StoreDebug("dropped")
	Get(CategoryStore).Warn("kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestDisabledCategory(t *testing.T) {
	logs := observe(t, Config{
		Level:      "debug",
		Categories: map[string]bool{"browser": false},
	})

	assert.False(t, IsCategoryEnabled(CategoryBrowser))
	assert.True(t, IsCategoryEnabled(CategoryStore), "unlisted categories default to enabled")

	Browser("silent")
	Store("loud")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "store", logs.All()[0].LoggerName)
}

func TestNoopBeforeInitialize(t *testing.T) {
	Reset()
	assert.NotPanics(t, func() {
		Get(CategoryStore).Error("nobody is listening")
		StartTimer(CategoryStore, "op").Stop()
	})
}

func TestAudit(t *testing.T) {
	logs := observe(t, Config{Level: "info"})

	Audit(AuditEvent{Type: AuditRecordSaved, Key: "fmg:k", Success: true})

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "record_saved", fields["event"])
	assert.Equal(t, "fmg:k", fields["key"])
	assert.Equal(t, true, fields["success"])
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, Config{Level: "debug"})

	timer := StartTimer(CategoryStore, "slow-op")
	elapsed := timer.StopWithThreshold(-1)

	assert.GreaterOrEqual(t, int64(elapsed), int64(0))
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}
