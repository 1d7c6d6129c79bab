package metrics

import (
	"net/http"
	"sync/atomic"
	"time"
)

// APIMetrics tracks request statistics for the management API.
type APIMetrics struct {
	requestCount      atomic.Int64
	errorCount        atomic.Int64
	totalResponseTime atomic.Int64 // nanoseconds
	maxResponseTime   atomic.Int64 // nanoseconds
	pendingRequests   atomic.Int64
	startTime         time.Time
}

func NewAPIMetrics() *APIMetrics {
	return &APIMetrics{startTime: time.Now()}
}

type APIStats struct {
	RequestCount    int64     `json:"request_count"`
	ErrorCount      int64     `json:"error_count"`
	ErrorRate       float64   `json:"error_rate"`   // percent
	RequestRate     float64   `json:"request_rate"` // per second
	AvgResponseTime int64     `json:"avg_response_time"`
	MaxResponseTime int64     `json:"max_response_time"`
	PendingRequests int64     `json:"pending_requests"`
	Timestamp       time.Time `json:"timestamp"`
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps next and records its latency and status class.
func (m *APIMetrics) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.pendingRequests.Add(1)
		defer m.pendingRequests.Add(-1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		elapsed := time.Since(start).Nanoseconds()
		m.requestCount.Add(1)
		m.totalResponseTime.Add(elapsed)
		for {
			current := m.maxResponseTime.Load()
			if elapsed <= current || m.maxResponseTime.CompareAndSwap(current, elapsed) {
				break
			}
		}
		if rec.status >= 400 {
			m.errorCount.Add(1)
		}
	}
}

func (m *APIMetrics) GetStats() APIStats {
	stats := APIStats{
		RequestCount:    m.requestCount.Load(),
		ErrorCount:      m.errorCount.Load(),
		MaxResponseTime: m.maxResponseTime.Load(),
		PendingRequests: m.pendingRequests.Load(),
		Timestamp:       time.Now(),
	}
	if stats.RequestCount > 0 {
		stats.ErrorRate = float64(stats.ErrorCount) / float64(stats.RequestCount) * 100
		stats.AvgResponseTime = m.totalResponseTime.Load() / stats.RequestCount
		if uptime := time.Since(m.startTime); uptime > 0 {
			stats.RequestRate = float64(stats.RequestCount) / uptime.Seconds()
		}
	}
	return stats
}
