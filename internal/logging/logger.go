// Package logging provides config-driven categorized logging for mapkeep.
// Every category is a named zap logger derived from one base logger.
// Until Initialize is called every category logs to a no-op core, so library
// code and tests can log freely without any setup.
package logging

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config loading
	CategoryStore     Category = "store"     // Override store load/save/clear
	CategoryMigrate   Category = "migrate"   // Legacy record migration
	CategoryTransfer  Category = "transfer"  // Import/export
	CategoryIntercept Category = "intercept" // Hook installation and dispatch
	CategoryFilters   Category = "filters"   // Per-entity filter handlers
	CategoryBridge    Category = "bridge"    // Settings bridge
	CategoryBrowser   Category = "browser"   // Browser automation, hijacking
	CategoryAudit     Category = "audit"     // Structured mutation audit trail
)

// Config mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Config struct {
	Level      string
	Categories map[string]bool
}

// Logger is a category logger with printf-style methods.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	cfg     Config
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggers = make(map[Category]*Logger)
)

// Initialize installs the base zap logger and the category filter.
// Passing a nil logger resets to the no-op logger.
func Initialize(l *zap.Logger, c Config) {
	mu.Lock()
	defer mu.Unlock()

	if l == nil {
		l = zap.NewNop()
	}
	base = l
	cfg = c
	level.SetLevel(parseLevel(c.Level))
	loggers = make(map[Category]*Logger)
}

// Reset restores the no-op logger. Mostly useful in tests.
func Reset() {
	Initialize(nil, Config{})
}

// Sync flushes the base logger.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories missing from the config map are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if cfg.Categories == nil {
		return true
	}
	enabled, ok := cfg.Categories[string(category)]
	return !ok || enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	var z *zap.Logger
	if categoryEnabledLocked(category) {
		z = base.Named(string(category))
	} else {
		z = zap.NewNop()
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// Zap exposes the underlying zap logger for structured fields.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if !level.Enabled(zapcore.DebugLevel) {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if !level.Enabled(zapcore.InfoLevel) {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if !level.Enabled(zapcore.WarnLevel) {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if !level.Enabled(zapcore.ErrorLevel) {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Migrate logs to the migrate category
func Migrate(format string, args ...interface{}) {
	Get(CategoryMigrate).Info(format, args...)
}

// MigrateWarn logs a warning to the migrate category
func MigrateWarn(format string, args ...interface{}) {
	Get(CategoryMigrate).Warn(format, args...)
}

// Transfer logs to the transfer category
func Transfer(format string, args ...interface{}) {
	Get(CategoryTransfer).Info(format, args...)
}

// Intercept logs to the intercept category
func Intercept(format string, args ...interface{}) {
	Get(CategoryIntercept).Info(format, args...)
}

// InterceptDebug logs debug to the intercept category
func InterceptDebug(format string, args ...interface{}) {
	Get(CategoryIntercept).Debug(format, args...)
}

// InterceptError logs an error to the intercept category
func InterceptError(format string, args ...interface{}) {
	Get(CategoryIntercept).Error(format, args...)
}

// Filters logs to the filters category
func Filters(format string, args ...interface{}) {
	Get(CategoryFilters).Info(format, args...)
}

// FiltersDebug logs debug to the filters category
func FiltersDebug(format string, args ...interface{}) {
	Get(CategoryFilters).Debug(format, args...)
}

// FiltersWarn logs a warning to the filters category
func FiltersWarn(format string, args ...interface{}) {
	Get(CategoryFilters).Warn(format, args...)
}

// Bridge logs to the bridge category
func Bridge(format string, args ...interface{}) {
	Get(CategoryBridge).Info(format, args...)
}

// BridgeWarn logs a warning to the bridge category
func BridgeWarn(format string, args ...interface{}) {
	Get(CategoryBridge).Warn(format, args...)
}

// Browser logs to the browser category
func Browser(format string, args ...interface{}) {
	Get(CategoryBrowser).Info(format, args...)
}

// BrowserDebug logs debug to the browser category
func BrowserDebug(format string, args ...interface{}) {
	Get(CategoryBrowser).Debug(format, args...)
}

// BrowserWarn logs a warning to the browser category
func BrowserWarn(format string, args ...interface{}) {
	Get(CategoryBrowser).Warn(format, args...)
}

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures one operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer starts timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
