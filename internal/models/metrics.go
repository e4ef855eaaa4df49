package models

import "time"

// SystemMetrics is a lightweight in-process metrics summary served by the health endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ActiveSessions           int64     `json:"active_sessions"`
	Submits                  uint64    `json:"submits"`
	FailedSubmits            uint64    `json:"failed_submits"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
