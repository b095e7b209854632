// Package timertest provides a manually driven clock and scheduler for tests.
package timertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"live-quiz-service/internal/timer"
)

type task struct {
	id  uint64
	key string
	due time.Time
	fn  func(ctx context.Context)
}

// Manual is a fake clock that also schedules callbacks; nothing fires until Advance is called.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID uint64
	tasks  map[uint64]task
}

var _ timer.Clock = (*Manual)(nil)

func New(start time.Time) *Manual {
	return &Manual{now: start, tasks: make(map[uint64]task)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(key string, delay time.Duration, fn func(ctx context.Context)) timer.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.tasks[m.nextID] = task{id: m.nextID, key: key, due: m.now.Add(delay), fn: fn}
	return timer.Handle{}
}

func (m *Manual) CancelKey(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.tasks {
		if t.key == key {
			delete(m.tasks, id)
			n++
		}
	}
	return n
}

func (m *Manual) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.tasks)
	m.tasks = make(map[uint64]task)
	return n
}

// Pending returns the number of callbacks not yet fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves time forward by d, firing due callbacks in due order.
// Callbacks run synchronously on the caller's goroutine with the clock set to their due time.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next, ok := m.nextDueLocked(target)
		if !ok {
			m.now = target
			m.mu.Unlock()
			return
		}
		delete(m.tasks, next.id)
		m.now = next.due
		m.mu.Unlock()

		next.fn(context.Background())
	}
}

func (m *Manual) nextDueLocked(limit time.Time) (task, bool) {
	due := make([]task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if !t.due.After(limit) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return task{}, false
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].due.Equal(due[j].due) {
			return due[i].due.Before(due[j].due)
		}
		return due[i].id < due[j].id
	})
	return due[0], true
}
