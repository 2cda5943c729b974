package usage

import (
	"sync"
	"testing"
)

func TestRecordAccumulates(t *testing.T) {
	tr := NewTracker()
	tr.Record("a", 0.5)
	tr.Record("a", 0.25)
	tr.Record("b", 1.0)

	stats := tr.Stats()
	if stats["a"].Calls != 2 {
		t.Errorf("a.calls = %d, want 2", stats["a"].Calls)
	}
	if stats["a"].Cost != 0.75 {
		t.Errorf("a.cost = %v, want 0.75", stats["a"].Cost)
	}
	if stats["b"].Calls != 1 {
		t.Errorf("b.calls = %d, want 1", stats["b"].Calls)
	}
	if tr.TotalCalls() != 3 {
		t.Errorf("total = %d, want 3", tr.TotalCalls())
	}
}

func TestNegativeCostClamped(t *testing.T) {
	tr := NewTracker()
	tr.Record("a", 1.0)
	tr.Record("a", -5.0)

	if got := tr.Stats()["a"].Cost; got != 1.0 {
		t.Errorf("cost = %v, want 1.0 (negative costs clamped)", got)
	}
}

func TestConcurrentIncrementsNeverLost(t *testing.T) {
	tr := NewTracker()
	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				tr.Record("shared", 0.001)
			}
		}()
	}
	wg.Wait()

	if got := tr.Stats()["shared"].Calls; got != goroutines*perGoroutine {
		t.Errorf("calls = %d, want %d", got, goroutines*perGoroutine)
	}
}

func TestStatsReturnsCopy(t *testing.T) {
	tr := NewTracker()
	tr.Record("a", 1.0)

	snapshot := tr.Stats()
	snapshot["a"] = AgentUsage{Calls: 999}

	if tr.Stats()["a"].Calls != 1 {
		t.Error("mutating the snapshot changed tracker state")
	}
}
