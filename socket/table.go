// File: socket/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type handleKey struct {
	index  uint32
	unique uint64
}

// Table indexes live handles by cargo id.
type Table struct {
	mu      sync.RWMutex
	byCargo map[uint64]map[handleKey]Handle
	n       int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{byCargo: make(map[uint64]map[handleKey]Handle)}
}

// Add records h under its cargo id, replacing an entry for the same socket.
func (t *Table) Add(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.byCargo[h.CargoID]
	if m == nil {
		m = make(map[handleKey]Handle)
		t.byCargo[h.CargoID] = m
	}
	k := handleKey{h.SocketIndex, h.UniqueID}
	if _, ok := m[k]; !ok {
		t.n++
	}
	m[k] = h
}

// Remove drops h. It reports whether h was present.
func (t *Table) Remove(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.byCargo[h.CargoID]
	k := handleKey{h.SocketIndex, h.UniqueID}
	if _, ok := m[k]; !ok {
		return false
	}
	delete(m, k)
	if len(m) == 0 {
		delete(t.byCargo, h.CargoID)
	}
	t.n--
	return true
}

// ByCargo returns a snapshot of the handles under cargo.
func (t *Table) ByCargo(cargo uint64) []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := t.byCargo[cargo]
	out := make([]Handle, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	return out
}

// Len returns the number of handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.n
}

// Context names the socket and scheduler a callback runs for. It is passed
// explicitly so nested callbacks never observe another socket's state.
type Context struct {
	Socket    Handle
	Scheduler int
}

type ctxKey struct{}

// WithContext returns a child of parent carrying sc.
func WithContext(parent context.Context, sc Context) context.Context {
	return context.WithValue(parent, ctxKey{}, sc)
}

// FromContext extracts the socket context set by WithContext.
func FromContext(ctx context.Context) (Context, bool) {
	sc, ok := ctx.Value(ctxKey{}).(Context)
	return sc, ok
}

// Runner executes tasks on a given scheduler.
type Runner interface {
	Submit(sched int, task func()) error
	Schedulers() int
}

// SchedulerOf maps a socket to the scheduler that owns its callbacks.
func SchedulerOf(h Handle, schedulers int) int {
	if schedulers <= 0 {
		return 0
	}
	return int(h.BoundWorker) % schedulers
}

// Fanout tracks one Broadcast. Local holds the failures of the targets
// run inline on the caller's scheduler and of targets that could not be
// queued. Wait blocks until the queued targets have run.
type Fanout struct {
	Local error

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func (f *Fanout) record(err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

// Wait returns the joined failures of the queued targets once all of them
// have run. A caller running on one of the schedulers must not Wait.
func (f *Fanout) Wait() error {
	f.wg.Wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.Join(f.errs...)
}

// Broadcast runs fn for every handle under cargo on the handle's owning
// scheduler. Each call receives a context derived from ctx that names its
// own socket; ctx itself is never modified. When ctx names the caller's
// scheduler, targets owned by that scheduler run inline before Broadcast
// returns and the others are queued.
func (t *Table) Broadcast(ctx context.Context, cargo uint64, r Runner, fn func(ctx context.Context, h Handle) error) *Fanout {
	self := -1
	if sc, ok := FromContext(ctx); ok {
		self = sc.Scheduler
	}
	f := &Fanout{}
	var local []error
	run := func(child context.Context, h Handle) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(child, h); err != nil {
			return fmt.Errorf("socket %d: %w", h.SocketIndex, err)
		}
		return nil
	}
	for _, h := range t.ByCargo(cargo) {
		sched := SchedulerOf(h, r.Schedulers())
		child := WithContext(ctx, Context{Socket: h, Scheduler: sched})
		if sched == self {
			if err := run(child, h); err != nil {
				local = append(local, err)
			}
			continue
		}
		f.wg.Add(1)
		err := r.Submit(sched, func() {
			defer f.wg.Done()
			if err := run(child, h); err != nil {
				f.record(err)
			}
		})
		if err != nil {
			f.wg.Done()
			local = append(local, fmt.Errorf("schedule socket %d: %w", h.SocketIndex, err))
		}
	}
	f.Local = errors.Join(local...)
	return f
}
