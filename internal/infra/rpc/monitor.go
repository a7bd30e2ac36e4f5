package rpc

import (
	"strings"
	"sync"
	"time"
)

// NodeStatus represents the health state of a node endpoint.
type NodeStatus int

const (
	StatusHealthy   NodeStatus = iota // Node is answering normally
	StatusDegraded                    // Node is slow or failing often
	StatusThrottled                   // Node is rate limiting
	StatusBlocked                     // Node has blocked this client
)

func (s NodeStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// HealthStatus is a snapshot of a node's health.
type HealthStatus struct {
	Status        string        `json:"status"`
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	Requests      int           `json:"requests"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
}

// NodeMonitor tracks request outcomes and throttling for one node.
type NodeMonitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	successCount int
	failureCount int
	lastSuccess  time.Time
	lastFailure  time.Time

	status429Count   int
	status403Count   int
	lastThrottleTime time.Time
	retryAfter       time.Duration
	throttlePatterns []string

	slowResponseThreshold time.Duration
	degradedErrorRate     float64
	now                   func() time.Time
}

// NewNodeMonitor creates a monitor with default thresholds.
func NewNodeMonitor() *NodeMonitor {
	return &NodeMonitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit exceeded",
			"too many requests",
			"request quota exceeded",
		},
		slowResponseThreshold: 3 * time.Second,
		degradedErrorRate:     0.5,
		now:                   time.Now,
	}
}

// RecordSuccess records a request that got an answer from the node.
func (m *NodeMonitor) RecordSuccess(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.successCount++
	m.lastSuccess = m.now()
	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}
}

// RecordFailure records a transport failure or an unusable response.
func (m *NodeMonitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failureCount++
	m.lastFailure = m.now()
}

// RecordThrottle records a 429 or 403 response.
func (m *NodeMonitor) RecordThrottle(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastThrottleTime = m.now()
	switch statusCode {
	case 429:
		m.status429Count++
		m.retryAfter = 60 * time.Second
	case 403:
		m.status403Count++
		m.retryAfter = 10 * time.Minute
	}
}

// DetectThrottlePattern reports whether a response body looks like a rate limit.
func (m *NodeMonitor) DetectThrottlePattern(body string) bool {
	lower := strings.ToLower(body)
	for _, p := range m.throttlePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Status returns the current node status.
func (m *NodeMonitor) Status() NodeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *NodeMonitor) statusLocked() NodeStatus {
	sinceThrottle := m.now().Sub(m.lastThrottleTime)
	if m.status403Count > 0 && sinceThrottle < m.retryAfter {
		return StatusBlocked
	}
	if m.status429Count > 0 && sinceThrottle < m.retryAfter {
		return StatusThrottled
	}
	if total := m.successCount + m.failureCount; total > 0 {
		if float64(m.failureCount)/float64(total) > m.degradedErrorRate {
			return StatusDegraded
		}
	}
	if len(m.recentLatencies) > 10 && m.averageLatencyLocked() > m.slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (m *NodeMonitor) averageLatencyLocked() time.Duration {
	if len(m.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

// Health returns a snapshot of the node's health.
func (m *NodeMonitor) Health() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := m.statusLocked()
	h := HealthStatus{
		Status:        status.String(),
		Available:     status == StatusHealthy || status == StatusDegraded,
		Latency:       m.averageLatencyLocked(),
		Requests:      m.successCount + m.failureCount,
		LastSuccessAt: m.lastSuccess,
		LastFailureAt: m.lastFailure,
	}
	if h.Requests > 0 {
		h.ErrorRate = float64(m.failureCount) / float64(h.Requests)
	}
	return h
}
