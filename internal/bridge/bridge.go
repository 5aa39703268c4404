// Package bridge is the thread-transfer primitive between the network
// domain (the acceptor and each connection's concurrent read/write loop)
// and the editor domain (the single logical thread permitted to touch
// EditorHost state and the notification change-suppression cells). It
// also carries the per-event-family debounce slots: debouncing and
// thread transfer are two orthogonal jobs of the same component, so
// they share this package.
//
// In a real editor the main thread already exists; here the editor
// domain is simulated by one dedicated goroutine that does nothing but
// drain this Bridge's queue whenever woken. internal/server starts that
// goroutine and is the only caller of Drain.
package bridge

import (
	"sync"
	"time"
)

// LogLevel mirrors the editor's notification severities for LogMessage
// events.
type LogLevel int

const (
	LogInfo LogLevel = iota
	LogWarn
	LogError
)

// Bridge queues closures produced on the network domain and runs them, in
// order, on whichever goroutine calls Drain.
type Bridge struct {
	mu    sync.Mutex
	queue []func()
	wake  func()
}

// New returns a Bridge that calls wake every time Schedule enqueues work.
// wake is typically a non-blocking send to a buffered channel the editor
// domain's goroutine selects on.
func New(wake func()) *Bridge {
	return &Bridge{wake: wake}
}

// Schedule enqueues fn to run on the editor domain and wakes it.
func (b *Bridge) Schedule(fn func()) {
	b.mu.Lock()
	b.queue = append(b.queue, fn)
	b.mu.Unlock()
	if b.wake != nil {
		b.wake()
	}
}

// RunSync schedules fn and blocks the caller until it has run. Used by
// RPC handlers that need a result from the editor domain (readFile,
// editFile, getDiagnostics, nvim/notify — the operations that must
// suspend the calling connection's goroutine until the main thread
// answers).
func (b *Bridge) RunSync(fn func()) {
	done := make(chan struct{})
	b.Schedule(func() {
		fn()
		close(done)
	})
	<-done
}

// Drain runs every closure queued since the last Drain, in FIFO order.
// Must only be called from the editor domain's single goroutine.
func (b *Bridge) Drain() {
	b.mu.Lock()
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// Slot holds at most one pending debounce timer for one event family.
// Restarting cancels and replaces the previous timer; this is immediate
// and idempotent.
type Slot struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Fire (re)starts the slot's timer: if one is already pending it is
// stopped first, then a new one-shot timer is installed that calls fn
// after d elapses.
func (s *Slot) Fire(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, fn)
}

// Cancel stops any pending timer without replacing it.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
