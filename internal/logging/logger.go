// Package logging provides config-driven categorized logging for the chunker.
// Every category is a named child of one process-wide zap logger. Logging is
// controlled by debug_mode in the logging config: when false, category loggers
// are no-ops and only the root logger's warnings and errors are emitted.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Boot/initialization
	CategoryBacktrace  Category = "backtrace"  // Backtracing through instantiations
	CategoryChunk      Category = "chunk"      // Chunk builds and outcomes
	CategoryVariablize Category = "variablize" // Variablization and Not splicing
	CategoryRules      Category = "rules"      // Production memory: reorder, insert, excise
	CategoryExplain    Category = "explain"    // Explanation recording and queries
	CategoryStore      Category = "store"      // SQLite explanation archive
	CategoryKernel     Category = "kernel"     // Mangle fact projection
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// Logger is a category logger with printf-style methods.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	cfg     Config
	loggers = make(map[Category]*Logger)
)

// Initialize builds the root zap logger from cfg. It may be called again to
// reconfigure; cached category loggers are dropped.
func Initialize(c Config) error {
	var zc zap.Config
	if c.JSONFormat {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := parseLevel(c.Level)
	if err != nil {
		return err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	root = l
	cfg = c
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	boot := Get(CategoryBoot)
	boot.Info("logging initialized: level=%s json=%v debug=%v", level, c.JSONFormat, c.DebugMode)
	for cat, enabled := range c.Categories {
		boot.Debug("category '%s': %v", cat, enabled)
	}
	return nil
}

// SetLogger installs l as the root logger with every category enabled. Tests
// use it with zaptest or an observer core.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	cfg = Config{DebugMode: true, Level: "debug"}
	loggers = make(map[Category]*Logger)
}

// Root returns the process-wide zap logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes the root logger.
func Sync() {
	_ = Root().Sync()
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return cfg.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !cfg.DebugMode {
		return false
	}
	enabled, exists := cfg.Categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories still report warnings and errors through the root
// logger; their debug and info output is dropped.
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
	base := root.Named(string(category))
	if !categoryEnabledLocked(category) {
		base = base.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}
	l := &Logger{category: category, sugar: base.Sugar()}
	loggers[category] = l
	return l
}

// Category returns the logger's category.
func (l *Logger) Category() Category { return l.category }

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying structured key-value context.
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

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Backtrace logs to the backtrace category
func Backtrace(format string, args ...interface{}) {
	Get(CategoryBacktrace).Info(format, args...)
}

// BacktraceDebug logs debug to the backtrace category
func BacktraceDebug(format string, args ...interface{}) {
	Get(CategoryBacktrace).Debug(format, args...)
}

// Chunk logs to the chunk category
func Chunk(format string, args ...interface{}) {
	Get(CategoryChunk).Info(format, args...)
}

// ChunkDebug logs debug to the chunk category
func ChunkDebug(format string, args ...interface{}) {
	Get(CategoryChunk).Debug(format, args...)
}

// ChunkWarn logs warning to the chunk category
func ChunkWarn(format string, args ...interface{}) {
	Get(CategoryChunk).Warn(format, args...)
}

// ChunkError logs error to the chunk category
func ChunkError(format string, args ...interface{}) {
	Get(CategoryChunk).Error(format, args...)
}

// VariablizeDebug logs debug to the variablize category
func VariablizeDebug(format string, args ...interface{}) {
	Get(CategoryVariablize).Debug(format, args...)
}

// Rules logs to the rules category
func Rules(format string, args ...interface{}) {
	Get(CategoryRules).Info(format, args...)
}

// RulesDebug logs debug to the rules category
func RulesDebug(format string, args ...interface{}) {
	Get(CategoryRules).Debug(format, args...)
}

// Explain logs to the explain category
func Explain(format string, args ...interface{}) {
	Get(CategoryExplain).Info(format, args...)
}

// ExplainDebug logs debug to the explain category
func ExplainDebug(format string, args ...interface{}) {
	Get(CategoryExplain).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Kernel logs to the kernel category
func Kernel(format string, args ...interface{}) {
	Get(CategoryKernel).Info(format, args...)
}

// KernelDebug logs debug to the kernel category
func KernelDebug(format string, args ...interface{}) {
	Get(CategoryKernel).Debug(format, args...)
}

// KernelWarn logs warning to the kernel category
func KernelWarn(format string, args ...interface{}) {
	Get(CategoryKernel).Warn(format, args...)
}

// Timer measures one operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold warns when the operation took longer than threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
