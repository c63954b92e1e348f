package session

import (
	"context"
	"sync"
)

// writeSet tracks in-flight writes to the PTY master and the control socket.
// Writes issued while a command runs are exec-scoped; returning to the
// prompt cancels them so leftover keystrokes never hit a dead foreground
// process.
type writeSet struct {
	mu   sync.Mutex
	next uint64
	all  map[uint64]context.CancelFunc
	exec map[uint64]context.CancelFunc
}

func newWriteSet() *writeSet {
	return &writeSet{
		all:  make(map[uint64]context.CancelFunc),
		exec: make(map[uint64]context.CancelFunc),
	}
}

// add registers a new write and returns its context plus a completion
// callback the writer must invoke when done.
func (ws *writeSet) add(execScoped bool) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	ws.mu.Lock()
	id := ws.next
	ws.next++
	ws.all[id] = cancel
	if execScoped {
		ws.exec[id] = cancel
	}
	ws.mu.Unlock()

	done := func() {
		ws.mu.Lock()
		delete(ws.all, id)
		delete(ws.exec, id)
		ws.mu.Unlock()
		cancel()
	}
	return ctx, done
}

// cancelExec cancels every exec-scoped write.
func (ws *writeSet) cancelExec() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, cancel := range ws.exec {
		cancel()
	}
}

// cancelAll cancels every tracked write.
func (ws *writeSet) cancelAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, cancel := range ws.all {
		cancel()
	}
}
