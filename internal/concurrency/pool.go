// File: internal/concurrency/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-gateway/api"
)

// Task is a unit of work run on one scheduler.
type Task = func()

type scheduler struct {
	id      int
	mu      sync.Mutex
	q       *queue.Queue
	stopped bool
	notify  chan struct{}
	stop    chan struct{}

	submitted atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
}

// Pool owns a fixed set of schedulers.
type Pool struct {
	scheds  []*scheduler
	log     *zap.Logger
	pin     bool
	onPanic func(sched int, r any)
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// Option customizes a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithPinning locks each scheduler goroutine to an OS thread bound to CPU
// id mod NumCPU.
func WithPinning(on bool) Option {
	return func(p *Pool) { p.pin = on }
}

// WithPanicHandler is called after a task panic has been recovered.
func WithPanicHandler(fn func(sched int, r any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// NewPool starts n schedulers; n <= 0 means runtime.NumCPU().
func NewPool(n int, opts ...Option) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{scheds: make([]*scheduler, n), log: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	for i := range p.scheds {
		s := &scheduler{
			id:     i,
			q:      queue.New(),
			notify: make(chan struct{}, 1),
			stop:   make(chan struct{}),
		}
		p.scheds[i] = s
		p.wg.Add(1)
		go p.run(s)
	}
	return p
}

// Schedulers returns the number of schedulers.
func (p *Pool) Schedulers() int { return len(p.scheds) }

// Submit enqueues task on scheduler sched. Tasks on one scheduler run in
// submission order.
func (p *Pool) Submit(sched int, task Task) error {
	if task == nil || sched < 0 || sched >= len(p.scheds) {
		return fmt.Errorf("submit to scheduler %d of %d: %w", sched, len(p.scheds), api.ErrInvalidArgument)
	}
	s := p.scheds[sched]
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return api.ErrClosed
	}
	s.q.Add(task)
	s.mu.Unlock()
	s.submitted.Add(1)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// QueueDepth returns the number of tasks waiting on sched.
func (p *Pool) QueueDepth(sched int) int {
	if sched < 0 || sched >= len(p.scheds) {
		return 0
	}
	s := p.scheds[sched]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Length()
}

// Close stops accepting tasks, runs what is already queued and waits for
// every scheduler to exit.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	for _, s := range p.scheds {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.stop)
	}
	p.wg.Wait()
}

// Stats returns basic pool counters.
func (p *Pool) Stats() map[string]int64 {
	var sub, done, panics, pending int64
	for i, s := range p.scheds {
		sub += s.submitted.Load()
		done += s.completed.Load()
		panics += s.panics.Load()
		pending += int64(p.QueueDepth(i))
	}
	return map[string]int64{
		"schedulers":      int64(len(p.scheds)),
		"submitted_tasks": sub,
		"completed_tasks": done,
		"pending_tasks":   pending,
		"task_panics":     panics,
	}
}

func (p *Pool) next(s *scheduler) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q.Length() == 0 {
		return nil, false
	}
	return s.q.Remove().(Task), true
}

func (p *Pool) run(s *scheduler) {
	defer p.wg.Done()
	if p.pin {
		if err := pinCurrentThread(s.id % runtime.NumCPU()); err != nil {
			p.log.Warn("scheduler pinning failed", zap.Int("scheduler", s.id), zap.Error(err))
		}
	}
	for {
		if t, ok := p.next(s); ok {
			p.exec(s, t)
			continue
		}
		select {
		case <-s.notify:
		case <-s.stop:
			for {
				t, ok := p.next(s)
				if !ok {
					return
				}
				p.exec(s, t)
			}
		}
	}
}

// exec runs t, recovering panics so the scheduler keeps serving.
func (p *Pool) exec(s *scheduler, t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			p.log.Error("scheduler task panicked", zap.Int("scheduler", s.id), zap.Any("panic", r), zap.Stack("stack"))
			if p.onPanic != nil {
				p.onPanic(s.id, r)
			}
		}
		s.completed.Add(1)
	}()
	t()
}
