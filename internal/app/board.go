package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/example/foreman/internal/core/task"
)

// board publishes task outcomes across tracks. A task's channel is closed
// once nothing more will happen to it in this invocation.
type board struct {
	mu       sync.Mutex
	status   map[string]task.Status
	done     map[string]chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newBoard(statuses map[string]string) *board {
	b := &board{
		status:  make(map[string]task.Status, len(statuses)),
		done:    make(map[string]chan struct{}, len(statuses)),
		stopped: make(chan struct{}),
	}
	for id, st := range statuses {
		b.status[id] = task.Status(st)
		b.done[id] = make(chan struct{})
		if task.IsTerminal(task.Status(st)) {
			close(b.done[id])
		}
	}
	return b
}

// resolve records a task's final status for this invocation. A task left
// pending by a halted track is resolved with its pending status so its
// dependents stop waiting.
func (b *board) resolve(id string, st task.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status[id] = st
	ch, ok := b.done[id]
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// wait blocks until every id is resolved. It returns false when ctx ends or
// the board is stopped first.
func (b *board) wait(ctx context.Context, ids []string) bool {
	for _, id := range ids {
		b.mu.Lock()
		ch, ok := b.done[id]
		b.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return false
		case <-b.stopped:
			return false
		}
	}
	return true
}

func (b *board) statuses(ids []string) map[string]task.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]task.Status, len(ids))
	for _, id := range ids {
		out[id] = b.status[id]
	}
	return out
}

func (b *board) get(id string) task.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status[id]
}

// stop releases every waiter without resolving anything.
func (b *board) stop() {
	b.stopOnce.Do(func() { close(b.stopped) })
}

func (b *board) isStopped() bool {
	select {
	case <-b.stopped:
		return true
	default:
		return false
	}
}

// taskBudget limits how many tasks one invocation admits. Zero is unlimited.
type taskBudget struct {
	limit int64
	used  atomic.Int64
}

func newTaskBudget(limit int) *taskBudget {
	return &taskBudget{limit: int64(limit)}
}

func (b *taskBudget) take() bool {
	if b.limit <= 0 {
		return true
	}
	return b.used.Add(1) <= b.limit
}
