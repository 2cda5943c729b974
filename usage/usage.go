// Package usage aggregates per-agent call and cost counters for the
// lifetime of the process. Counters are process state only; they are exposed
// read-only through status queries and never persisted.
package usage

import (
	"sync"
	"time"
)

// AgentUsage is a read-only snapshot of one agent's counters.
type AgentUsage struct {
	Calls       int64     `json:"calls"`
	Cost        float64   `json:"cumulativeCost"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type record struct {
	calls       int64
	cost        float64
	lastUpdated time.Time
}

// Tracker accumulates usage counters. Safe for concurrent use; increments
// from parallel requests are never lost.
type Tracker struct {
	mu      sync.Mutex
	byAgent map[string]*record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byAgent: make(map[string]*record)}
}

// Record increments the call counter for agentID and adds cost. Negative
// costs are clamped to zero; cost must never decrease the aggregate.
func (t *Tracker) Record(agentID string, cost float64) {
	if cost < 0 {
		cost = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.byAgent[agentID]
	if !ok {
		r = &record{}
		t.byAgent[agentID] = r
	}
	r.calls++
	r.cost += cost
	r.lastUpdated = time.Now().UTC()
}

// Stats returns a snapshot of all counters. The returned map is a copy.
func (t *Tracker) Stats() map[string]AgentUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]AgentUsage, len(t.byAgent))
	for id, r := range t.byAgent {
		out[id] = AgentUsage{Calls: r.calls, Cost: r.cost, LastUpdated: r.lastUpdated}
	}
	return out
}

// TotalCalls returns the sum of call counters across all agents.
func (t *Tracker) TotalCalls() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for _, r := range t.byAgent {
		total += r.calls
	}
	return total
}
