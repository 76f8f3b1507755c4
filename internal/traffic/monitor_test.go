package traffic

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

type fakeSampler struct {
	values []float64
	idx    int
	err    error
}

func (f *fakeSampler) Sample(context.Context) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	v := f.values[f.idx%len(f.values)]
	f.idx++
	return v, nil
}

type fakeQueue struct {
	depth int
	err   error
}

func (f *fakeQueue) Depth() (int, error) {
	return f.depth, f.err
}

func newTestModeStore(t *testing.T) *ModeStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewModeStore(db)
	if err != nil {
		t.Fatalf("init mode store: %v", err)
	}
	return store
}

func testMonitor(t *testing.T, sampler CPUSampler, queue QueueSource, windowSize int) (*Monitor, *ModeStore) {
	t.Helper()
	store := newTestModeStore(t)
	cfg := DefaultMonitorConfig()
	cfg.WindowSize = windowSize
	return NewMonitor(cfg, store, sampler, queue), store
}

func mustMode(t *testing.T, store *ModeStore, want Mode) {
	t.Helper()
	got, err := store.Current()
	if err != nil {
		t.Fatalf("current mode: %v", err)
	}
	if got != want {
		t.Fatalf("expected mode %s, got %s", want, got)
	}
}

func TestModeStoreSeedsNormal(t *testing.T) {
	store := newTestModeStore(t)
	mustMode(t, store, ModeNormal)
}

func TestModeTransitionIdempotent(t *testing.T) {
	store := newTestModeStore(t)

	changed, err := store.Transition(ModeLean, "test")
	if err != nil || !changed {
		t.Fatalf("expected transition, changed=%v err=%v", changed, err)
	}
	changed, err = store.Transition(ModeLean, "again")
	if err != nil {
		t.Fatalf("re-transition: %v", err)
	}
	if changed {
		t.Fatal("re-entering the active mode must be a no-op")
	}

	recs, err := store.Transitions(10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 transition record, got %d", len(recs))
	}
	if recs[0].From != ModeNormal || recs[0].To != ModeLean {
		t.Fatalf("unexpected record %+v", recs[0])
	}
}

func TestModeTransitionRejectsUnknownMode(t *testing.T) {
	store := newTestModeStore(t)
	if _, err := store.Transition(Mode("PANIC"), "x"); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestCPURuleEntersLeanExactlyOnce(t *testing.T) {
	sampler := &fakeSampler{values: []float64{90}}
	m, store := testMonitor(t, sampler, &fakeQueue{}, 3)
	ctx := context.Background()

	// Partial window: no judgment yet.
	m.Poll(ctx)
	m.Poll(ctx)
	mustMode(t, store, ModeNormal)

	m.Poll(ctx)
	mustMode(t, store, ModeLean)

	// Further hot polls leave the mode alone, no duplicate records.
	m.Poll(ctx)
	m.Poll(ctx)
	recs, _ := store.Transitions(10)
	if len(recs) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(recs))
	}
}

func TestCPURuleRecoversToNormal(t *testing.T) {
	sampler := &fakeSampler{values: []float64{90, 90, 90, 10, 10, 10}}
	m, store := testMonitor(t, sampler, &fakeQueue{}, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Poll(ctx)
	}
	mustMode(t, store, ModeLean)

	// Window fills with cool samples and the average drops below threshold.
	for i := 0; i < 3; i++ {
		m.Poll(ctx)
	}
	mustMode(t, store, ModeNormal)
}

func TestQueueRuleSurgeHysteresis(t *testing.T) {
	queue := &fakeQueue{depth: 55}
	m, store := testMonitor(t, &fakeSampler{values: []float64{10}}, queue, 100)
	ctx := context.Background()

	m.Poll(ctx)
	mustMode(t, store, ModeSurge)

	// 45 is below the enter threshold but above the exit threshold.
	queue.depth = 45
	m.Poll(ctx)
	mustMode(t, store, ModeSurge)

	queue.depth = 39
	m.Poll(ctx)
	mustMode(t, store, ModeNormal)
}

func TestSafeModeNeverAutoReverted(t *testing.T) {
	sampler := &fakeSampler{values: []float64{10}}
	m, store := testMonitor(t, sampler, &fakeQueue{depth: 0}, 1)
	ctx := context.Background()

	if err := m.TriggerSafeMode("anomalous submissions"); err != nil {
		t.Fatalf("trigger safe: %v", err)
	}
	mustMode(t, store, ModeSafe)

	// Calm CPU and empty queue must not pull the system out of SAFE.
	for i := 0; i < 5; i++ {
		m.Poll(ctx)
	}
	mustMode(t, store, ModeSafe)

	recs, _ := store.Transitions(10)
	if len(recs) != 1 {
		t.Fatalf("expected only the SAFE transition, got %d", len(recs))
	}
}

func TestPollToleratesReadFailures(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("sysfs gone")}
	queue := &fakeQueue{err: errors.New("db locked")}
	m, store := testMonitor(t, sampler, queue, 1)

	m.Poll(context.Background())
	mustMode(t, store, ModeNormal)
}

func TestApprovalQueueDepth(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	q, err := NewApprovalQueue(db)
	if err != nil {
		t.Fatalf("init queue: %v", err)
	}

	id, err := q.Enqueue("agent-a", "ref-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue("agent-b", "ref-2"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	depth, err := q.Depth()
	if err != nil || depth != 2 {
		t.Fatalf("expected depth 2, got %d err=%v", depth, err)
	}

	if err := q.Resolve(id, "APPROVED"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if depth, _ = q.Depth(); depth != 1 {
		t.Fatalf("expected depth 1 after resolve, got %d", depth)
	}
	if err := q.Resolve(id, "APPROVED"); err == nil {
		t.Fatal("double resolve must fail")
	}
}

func TestMonitorStatusSnapshot(t *testing.T) {
	sampler := &fakeSampler{values: []float64{40, 60}}
	m, _ := testMonitor(t, sampler, &fakeQueue{depth: 7}, 4)
	ctx := context.Background()

	m.Poll(ctx)
	m.Poll(ctx)

	st := m.Status()
	if st.Mode != ModeNormal || st.SampleCount != 2 || st.QueueDepth != 7 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.AvgCPU != 50 {
		t.Fatalf("expected avg 50, got %f", st.AvgCPU)
	}
}
