package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects bot delivery metrics
type Metrics struct {
	// Request metrics
	TotalRequests       atomic.Uint64
	DeliveredRequests   atomic.Uint64
	FailedRequests      atomic.Uint64
	ActiveRequests      atomic.Int64
	CooldownRejections  atomic.Uint64
	OversizedRejections atomic.Uint64

	// Performance metrics
	LastRequestDuration atomic.Int64 // microseconds
	DeliveredItems      atomic.Uint64
	DeliveredBytes      atomic.Uint64

	// System metrics
	Uptime      time.Time
	TotalErrors atomic.Uint64

	platformStats sync.Map // platform -> *PlatformStats
	stageWins     sync.Map // stage -> *atomic.Uint64
}

// PlatformStats tracks metrics per platform
type PlatformStats struct {
	TotalRequests     atomic.Uint64
	DeliveredRequests atomic.Uint64
	FailedRequests    atomic.Uint64
}

// Global metrics instance
var globalMetrics = New()

// New creates an empty metrics set
func New() *Metrics {
	return &Metrics{Uptime: time.Now()}
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordRequestStart records an accepted link
func (m *Metrics) RecordRequestStart(platform string) {
	m.TotalRequests.Add(1)
	m.ActiveRequests.Add(1)
	m.platform(platform).TotalRequests.Add(1)
}

// RecordDelivered records a request whose media all reached the chat
func (m *Metrics) RecordDelivered(platform string, duration time.Duration, items int, bytes int64) {
	m.DeliveredRequests.Add(1)
	m.ActiveRequests.Add(-1)
	m.LastRequestDuration.Store(duration.Microseconds())
	m.DeliveredItems.Add(uint64(items))
	if bytes > 0 {
		m.DeliveredBytes.Add(uint64(bytes))
	}
	m.platform(platform).DeliveredRequests.Add(1)
}

// RecordFailed records a request that ended without full delivery
func (m *Metrics) RecordFailed(platform string) {
	m.FailedRequests.Add(1)
	m.ActiveRequests.Add(-1)
	m.TotalErrors.Add(1)
	m.platform(platform).FailedRequests.Add(1)
}

// RecordCooldownRejection counts a request refused by the per-user cooldown
func (m *Metrics) RecordCooldownRejection() {
	m.CooldownRejections.Add(1)
}

// RecordOversized counts a batch aborted by the size ceiling
func (m *Metrics) RecordOversized() {
	m.OversizedRejections.Add(1)
}

// RecordStageWin counts which resolution stage produced the media
func (m *Metrics) RecordStageWin(stage string) {
	v, _ := m.stageWins.LoadOrStore(stage, new(atomic.Uint64))
	v.(*atomic.Uint64).Add(1)
}

// StageWins returns the win count of stage
func (m *Metrics) StageWins(stage string) uint64 {
	if v, ok := m.stageWins.Load(stage); ok {
		return v.(*atomic.Uint64).Load()
	}
	return 0
}

func (m *Metrics) platform(platform string) *PlatformStats {
	stats, _ := m.platformStats.LoadOrStore(platform, &PlatformStats{})
	return stats.(*PlatformStats)
}

// GetSnapshot returns current metrics snapshot
func (m *Metrics) GetSnapshot() map[string]interface{} {
	uptime := time.Since(m.Uptime)

	total := m.DeliveredRequests.Load() + m.FailedRequests.Load()
	successRate := float64(0)
	if total > 0 {
		successRate = float64(m.DeliveredRequests.Load()) / float64(total) * 100
	}

	stages := make(map[string]uint64)
	m.stageWins.Range(func(key, value interface{}) bool {
		stages[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})

	return map[string]interface{}{
		"uptime_seconds":           int64(uptime.Seconds()),
		"total_requests":           m.TotalRequests.Load(),
		"delivered_requests":       m.DeliveredRequests.Load(),
		"failed_requests":          m.FailedRequests.Load(),
		"active_requests":          m.ActiveRequests.Load(),
		"success_rate":             successRate,
		"last_request_duration_ms": m.LastRequestDuration.Load() / 1000,
		"delivered_items":          m.DeliveredItems.Load(),
		"delivered_mb":             m.DeliveredBytes.Load() / (1 << 20),
		"cooldown_rejections":      m.CooldownRejections.Load(),
		"oversized_rejections":     m.OversizedRejections.Load(),
		"total_errors":             m.TotalErrors.Load(),
		"stage_wins":               stages,
		"platforms":                m.getPlatformSnapshot(),
	}
}

// getPlatformSnapshot returns platform-specific metrics
func (m *Metrics) getPlatformSnapshot() map[string]interface{} {
	platforms := make(map[string]interface{})

	m.platformStats.Range(func(key, value interface{}) bool {
		platform := key.(string)
		stats := value.(*PlatformStats)

		total := stats.TotalRequests.Load()
		successRate := float64(0)
		if total > 0 {
			successRate = float64(stats.DeliveredRequests.Load()) / float64(total) * 100
		}

		platforms[platform] = map[string]interface{}{
			"total_requests":     total,
			"delivered_requests": stats.DeliveredRequests.Load(),
			"failed_requests":    stats.FailedRequests.Load(),
			"success_rate":       successRate,
		}
		return true
	})

	return platforms
}
