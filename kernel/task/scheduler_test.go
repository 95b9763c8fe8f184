package task

import "testing"

func TestIDPoolAllocatesSequentially(t *testing.T) {
	p := newIDPool()
	if got := p.alloc(); got != 1 {
		t.Fatalf("first alloc = %d, want 1", got)
	}
	if got := p.alloc(); got != 2 {
		t.Fatalf("second alloc = %d, want 2", got)
	}
}

func TestIDPoolRecyclesLIFO(t *testing.T) {
	p := newIDPool()
	a := p.alloc() // 1
	b := p.alloc() // 2
	p.free(a)
	p.free(b)

	if got := p.alloc(); got != b {
		t.Fatalf("expected LIFO reuse of %d, got %d", b, got)
	}
	if got := p.alloc(); got != a {
		t.Fatalf("expected LIFO reuse of %d, got %d", a, got)
	}
	if got := p.alloc(); got != 3 {
		t.Fatalf("expected fresh id 3 once recycled ids exhausted, got %d", got)
	}
}

func newTestManager() *Manager {
	return &Manager{ids: newIDPool()}
}

func TestScheduleNextRotatesRunQueue(t *testing.T) {
	m := newTestManager()
	t1 := &Task{ID: 1}
	t2 := &Task{ID: 2}
	t3 := &Task{ID: 3}
	m.tasks = []*Task{t1, t2, t3}

	if got := m.ScheduleNext(); got.ID != 2 {
		t.Fatalf("ScheduleNext = %d, want 2", got.ID)
	}
	if got := m.ScheduleNext(); got.ID != 3 {
		t.Fatalf("ScheduleNext = %d, want 3", got.ID)
	}
	if got := m.ScheduleNext(); got.ID != 1 {
		t.Fatalf("ScheduleNext = %d, want 1 (wrapped)", got.ID)
	}
}

func TestScheduleNextSingleTaskStaysCurrent(t *testing.T) {
	m := newTestManager()
	t1 := &Task{ID: 1}
	m.tasks = []*Task{t1}

	if got := m.ScheduleNext(); got != t1 {
		t.Fatal("expected the sole task to remain current")
	}
}

func TestScheduleNextEmptyReturnsNil(t *testing.T) {
	m := newTestManager()
	if got := m.ScheduleNext(); got != nil {
		t.Fatalf("expected nil on empty run queue, got %+v", got)
	}
}

func TestByIDFindsLiveTask(t *testing.T) {
	m := newTestManager()
	t2 := &Task{ID: 2}
	m.tasks = []*Task{{ID: 1}, t2, {ID: 3}}

	if got := m.ByID(2); got != t2 {
		t.Fatal("expected to find task with ID 2")
	}
	if got := m.ByID(99); got != nil {
		t.Fatal("expected nil for unknown ID")
	}
}
