package task

import "nanokernel/kernel/sync"

// idPool hands out task identifiers, preferring to recycle the most
// recently freed one (LIFO) over minting a new one, which keeps
// identifiers dense as tasks come and go.
type idPool struct {
	next     ID
	recycled []ID
}

func newIDPool() *idPool {
	return &idPool{next: 1} // 0 is the "no task" sentinel
}

func (p *idPool) alloc() ID {
	if n := len(p.recycled); n > 0 {
		id := p.recycled[n-1]
		p.recycled = p.recycled[:n-1]
		return id
	}
	id := p.next
	p.next++
	return id
}

func (p *idPool) free(id ID) {
	p.recycled = append(p.recycled, id)
}

// Manager is the round-robin scheduler: an ordered run queue where the
// front entry is the currently running task. Preemption rotates the queue
// by moving the front to the back.
//
// Two separate locks guard two separate things, per the locking order
// idMu before tasksMu wherever both are needed: idMu is an
// interrupt-masking spinlock over the identifier pool alone; tasksMu is a reader/writer lock over the
// run queue itself. The schedule path (ScheduleNext) takes the writer lock
// just long enough to pop the front and push it to the back; the query
// paths (Current, ByID) only ever need the reader lock.
type Manager struct {
	idMu    sync.IRQSpinlock
	ids     *idPool
	tasksMu sync.RWSpinlock
	tasks   []*Task
	builder *Builder
}

// NewManager returns an empty scheduler backed by builder for constructing
// new tasks.
func NewManager(builder *Builder) *Manager {
	return &Manager{ids: newIDPool(), builder: builder}
}

// Spawn builds a new task running elfImage and appends it to the back of
// the run queue.
func (m *Manager) Spawn(elfImage []byte) (*Task, error) {
	idGuard := m.idMu.Acquire()
	id := m.ids.alloc()
	idGuard.Release()

	t, err := m.builder.New(id, elfImage)
	if err != nil {
		idGuard = m.idMu.Acquire()
		m.ids.free(id)
		idGuard.Release()
		return nil, err
	}

	m.tasksMu.Lock()
	m.tasks = append(m.tasks, t)
	m.tasksMu.Unlock()
	return t, nil
}

// Current returns the task at the front of the run queue, or nil if no
// task has been spawned yet.
func (m *Manager) Current() *Task {
	m.tasksMu.RLock()
	defer m.tasksMu.RUnlock()
	if len(m.tasks) == 0 {
		return nil
	}
	return m.tasks[0]
}

// ScheduleNext rotates the run queue (front moves to back) and returns the
// new front task, i.e. the one that should run next. It is the timer
// interrupt handler's job to call this and then switch to the result.
func (m *Manager) ScheduleNext() *Task {
	m.tasksMu.Lock()
	defer m.tasksMu.Unlock()
	if len(m.tasks) <= 1 {
		if len(m.tasks) == 0 {
			return nil
		}
		return m.tasks[0]
	}
	front := m.tasks[0]
	m.tasks = append(m.tasks[1:], front)
	return m.tasks[0]
}

// ByID looks up a live task by identifier, returning nil if none matches.
func (m *Manager) ByID(id ID) *Task {
	m.tasksMu.RLock()
	defer m.tasksMu.RUnlock()
	for _, t := range m.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
