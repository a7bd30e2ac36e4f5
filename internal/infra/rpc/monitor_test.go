package rpc

import (
	"testing"
	"time"
)

func TestNodeMonitor_LatencyAndErrorRate(t *testing.T) {
	m := NewNodeMonitor()

	m.RecordSuccess(100 * time.Millisecond)
	m.RecordSuccess(300 * time.Millisecond)
	m.RecordFailure()

	h := m.Health()
	if h.Requests != 3 {
		t.Errorf("Expected 3 requests, got %d", h.Requests)
	}
	if h.Latency != 200*time.Millisecond {
		t.Errorf("Expected 200ms average latency, got %v", h.Latency)
	}
	if h.ErrorRate < 0.33 || h.ErrorRate > 0.34 {
		t.Errorf("Expected error rate ~0.33, got %v", h.ErrorRate)
	}
	if !h.Available || h.Status != "healthy" {
		t.Errorf("Expected healthy node, got %+v", h)
	}
}

func TestNodeMonitor_LatencyWindow(t *testing.T) {
	m := NewNodeMonitor()

	for i := 0; i < 150; i++ {
		m.RecordSuccess(50 * time.Millisecond)
	}
	if got := len(m.recentLatencies); got != 100 {
		t.Errorf("Expected latency window of 100, got %d", got)
	}
}

func TestNodeMonitor_Throttle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewNodeMonitor()
	m.now = func() time.Time { return now }

	m.RecordThrottle(429)
	if m.Status() != StatusThrottled {
		t.Errorf("Expected throttled, got %s", m.Status())
	}

	now = now.Add(2 * time.Minute)
	if m.Status() != StatusHealthy {
		t.Errorf("Expected throttle to expire, got %s", m.Status())
	}

	m.RecordThrottle(403)
	h := m.Health()
	if h.Available || h.Status != "blocked" {
		t.Errorf("Expected blocked node, got %+v", h)
	}
}

func TestNodeMonitor_DegradedOnFailures(t *testing.T) {
	m := NewNodeMonitor()
	m.RecordSuccess(10 * time.Millisecond)
	m.RecordFailure()
	m.RecordFailure()

	if m.Status() != StatusDegraded {
		t.Errorf("Expected degraded, got %s", m.Status())
	}
}

func TestNodeMonitor_DetectThrottlePattern(t *testing.T) {
	m := NewNodeMonitor()
	if !m.DetectThrottlePattern(`{"error":"Too Many Requests"}`) {
		t.Error("Expected throttle pattern match")
	}
	if m.DetectThrottlePattern(`{"error":"unknown transaction"}`) {
		t.Error("Unexpected throttle pattern match")
	}
}
