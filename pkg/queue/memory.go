package queue

import (
	"context"
	"sync"
)

var _ Backend = &Memory{}

// Memory is a non-durable Backend, keeping tasks in memory
type Memory struct {
	mx      sync.Mutex
	pending []Task
	dead    []Task
	closed  bool
	notify  chan struct{}
}

// NewMemory builds an in-memory backend
func NewMemory() *Memory {
	return &Memory{
		notify: make(chan struct{}, 1),
	}
}

// Submit a task
func (m *Memory) Submit(_ context.Context, task Task) (Task, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.closed {
		return Task{}, ErrClosed
	}
	task = Prepare(task)
	m.pending = append(m.pending, task)
	Signal(m.notify)
	return task, nil
}

// Pending tasks, in submission order
func (m *Memory) Pending(_ context.Context) ([]Task, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return append([]Task{}, m.pending...), nil
}

// Ack a processed task
func (m *Memory) Ack(_ context.Context, id string) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	i := m.index(id)
	if i < 0 {
		return ErrTaskNotFound.WrapMessage("task %q", id)
	}
	m.pending = append(m.pending[:i], m.pending[i+1:]...)
	return nil
}

// Fail records a failed attempt
func (m *Memory) Fail(_ context.Context, task Task, err error, maxAttempts int) (bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	i := m.index(task.ID)
	if i < 0 {
		return false, ErrTaskNotFound.WrapMessage("task %q", task.ID)
	}
	updated, dead := RecordFailure(m.pending[i], err, maxAttempts)
	if dead {
		m.pending = append(m.pending[:i], m.pending[i+1:]...)
		m.dead = append(m.dead, updated)
		return true, nil
	}
	m.pending[i] = updated
	return false, nil
}

// DeadLetters lists the tasks which could not be processed
func (m *Memory) DeadLetters(_ context.Context) ([]Task, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return append([]Task{}, m.dead...), nil
}

// Notify signals newly submitted tasks
func (m *Memory) Notify() <-chan struct{} {
	return m.notify
}

// Close the backend. Further submissions are refused.
func (m *Memory) Close() error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) index(id string) int {
	for i, task := range m.pending {
		if task.ID == id {
			return i
		}
	}
	return -1
}

// Signal notifies a channel without blocking: a pending notification is enough to wake up a worker
func Signal(notify chan<- struct{}) {
	select {
	case notify <- struct{}{}:
	default:
	}
}
