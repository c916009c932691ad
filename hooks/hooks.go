// Package hooks provides Logger, Hook, and MetricsCollector implementations.
package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pixelserve/pixelserve/core"
)

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...interface{}) { s.log.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...interface{})  { s.log.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...interface{})  { s.log.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...interface{}) { s.log.Error(msg, fields...) }

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs before/after each pipeline stage.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStage(_ context.Context, stage string) {
	h.logger.Debug("pipeline.stage.start", "stage", stage)
}

func (h *LoggingHook) AfterStage(_ context.Context, stage string, d time.Duration, err error) {
	if err != nil {
		h.logger.Error("pipeline.stage.error",
			"stage", stage,
			"duration_ms", d.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	h.logger.Debug("pipeline.stage.done",
		"stage", stage,
		"duration_ms", d.Milliseconds(),
	)
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds pipeline stage events into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStage(_ context.Context, _ string) {}

func (h *MetricsHook) AfterStage(_ context.Context, stage string, d time.Duration, err error) {
	h.collector.RecordStageDuration(stage, d)
	if err != nil {
		h.collector.RecordError(stage, "pipeline")
	}
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates observations in memory; safe for concurrent
// use.  Intended for tests and lightweight deployments.
type InMemoryMetrics struct {
	mu sync.Mutex

	stageDurationsMs map[string]int64
	stageCalls       map[string]int64
	errors           map[string]int64

	hits      int64
	coalesced int64
	misses    int64
	evictions int64
	evictedB  int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stageDurationsMs: make(map[string]int64),
		stageCalls:       make(map[string]int64),
		errors:           make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordStageDuration(stage string, d time.Duration) {
	m.mu.Lock()
	m.stageDurationsMs[stage] += d.Milliseconds()
	m.stageCalls[stage]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordCacheHit(coalesced bool) {
	m.mu.Lock()
	m.hits++
	if coalesced {
		m.coalesced++
	}
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordCacheMiss() {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordEviction(bytes int64) {
	m.mu.Lock()
	m.evictions++
	m.evictedB += bytes
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordError(stage string, kind string) {
	m.mu.Lock()
	m.errors[stage+"/"+kind]++
	m.mu.Unlock()
}

// Snapshot is an immutable point-in-time copy of metrics.
type Snapshot struct {
	StageDurationsMs map[string]int64
	StageCalls       map[string]int64
	Errors           map[string]int64
	Hits             int64
	Coalesced        int64
	Misses           int64
	Evictions        int64
	EvictedBytes     int64
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		StageDurationsMs: make(map[string]int64, len(m.stageDurationsMs)),
		StageCalls:       make(map[string]int64, len(m.stageCalls)),
		Errors:           make(map[string]int64, len(m.errors)),
		Hits:             m.hits,
		Coalesced:        m.coalesced,
		Misses:           m.misses,
		Evictions:        m.evictions,
		EvictedBytes:     m.evictedB,
	}
	for k, v := range m.stageDurationsMs {
		snap.StageDurationsMs[k] = v
	}
	for k, v := range m.stageCalls {
		snap.StageCalls[k] = v
	}
	for k, v := range m.errors {
		snap.Errors[k] = v
	}
	return snap
}
