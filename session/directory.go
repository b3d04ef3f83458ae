// File: session/directory.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/cpu"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/core/identity"
)

// Observer receives lifecycle events; control.Metrics satisfies it.
type Observer interface {
	SessionCreated()
	SessionDestroyed()
	SessionEvicted()
}

var errSessionActive = errors.New("session active since sweep scan")

type nopObserver struct{}

func (nopObserver) SessionCreated()   {}
func (nopObserver) SessionDestroyed() {}
func (nopObserver) SessionEvicted()   {}

type slot struct {
	salt uint64 // 0 while the slot is free
	sess *Session
}

// partition is owned by one scheduler. Padding keeps neighbouring
// partitions' locks on separate cache lines.
type partition struct {
	_     cpu.CacheLinePad
	mu    sync.Mutex
	slots []slot
	free  []uint32 // LIFO stack of free indices
	_     cpu.CacheLinePad
}

// Directory maps identities to sessions, one partition per scheduler.
type Directory struct {
	parts []partition
	live  atomic.Int64
	idle  atomic.Int64 // idle timeout in nanoseconds, 0 disables Sweep
	obs   Observer
	log   *zap.Logger
	now   func() time.Time
	rand  func() uint64
}

// Option customizes a Directory.
type Option func(*Directory)

// WithObserver attaches lifecycle counters.
func WithObserver(o Observer) Option {
	return func(d *Directory) {
		if o != nil {
			d.obs = o
		}
	}
}

// WithLogger sets the logger used for evictions.
func WithLogger(l *zap.Logger) Option {
	return func(d *Directory) {
		if l != nil {
			d.log = l
		}
	}
}

// WithIdleTimeout sets the idle period after which Sweep evicts a session.
func WithIdleTimeout(t time.Duration) Option {
	return func(d *Directory) { d.idle.Store(int64(t)) }
}

// WithClock replaces time.Now for activity stamps.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		if now != nil {
			d.now = now
		}
	}
}

// WithSaltSource replaces the random salt generator.
func WithSaltSource(fn func() uint64) Option {
	return func(d *Directory) {
		if fn != nil {
			d.rand = fn
		}
	}
}

// NewDirectory creates schedulers partitions of perScheduler slots each.
func NewDirectory(schedulers, perScheduler int, opts ...Option) *Directory {
	if schedulers <= 0 {
		schedulers = 1
	}
	if schedulers > int(identity.InvalidScheduler) {
		schedulers = int(identity.InvalidScheduler)
	}
	if perScheduler <= 0 {
		perScheduler = 1024
	}
	d := &Directory{
		parts: make([]partition, schedulers),
		obs:   nopObserver{},
		log:   zap.NewNop(),
		now:   time.Now,
		rand:  randomSalt,
	}
	for i := range d.parts {
		p := &d.parts[i]
		p.slots = make([]slot, perScheduler)
		p.free = make([]uint32, 0, perScheduler)
		for idx := perScheduler - 1; idx >= 0; idx-- {
			p.free = append(p.free, uint32(idx))
		}
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func randomSalt() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("session: read random salt: %v", err))
	}
	return binary.LittleEndian.Uint64(b[:])
}

// Schedulers returns the number of partitions.
func (d *Directory) Schedulers() int { return len(d.parts) }

// SetIdleTimeout changes the eviction period; 0 disables eviction.
func (d *Directory) SetIdleTimeout(t time.Duration) { d.idle.Store(int64(t)) }

// IdleTimeout returns the current eviction period.
func (d *Directory) IdleTimeout() time.Duration { return time.Duration(d.idle.Load()) }

func (d *Directory) part(sched uint8) (*partition, error) {
	if int(sched) >= len(d.parts) {
		return nil, fmt.Errorf("scheduler %d of %d: %w", sched, len(d.parts), api.ErrInvalidArgument)
	}
	return &d.parts[sched], nil
}

// Create binds a new session on scheduler sched. The salt is random,
// nonzero and differs from the salt last used at the same index.
func (d *Directory) Create(sched uint8, value any) (*Session, error) {
	p, err := d.part(sched)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return nil, api.Exhausted("session slot")
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	prev := p.slots[idx].sess
	salt := d.rand()
	for salt == 0 || (prev != nil && salt == prev.id.Salt) {
		salt = d.rand()
	}
	id := identity.Identity{SchedulerID: sched, LinearIndex: idx, Salt: salt}
	s := newSession(id, value, d.now())
	p.slots[idx] = slot{salt: salt, sess: s}
	p.mu.Unlock()

	d.live.Add(1)
	d.obs.SessionCreated()
	return s, nil
}

// Lookup returns the session bound to id and records activity. Any stale
// or unknown identity yields api.ErrSessionMismatch.
func (d *Directory) Lookup(id identity.Identity) (*Session, error) {
	return d.find(id, d.now())
}

// find resolves id and touches the session under the partition lock, so a
// concurrent Sweep either sees the activity or evicts before it.
func (d *Directory) find(id identity.Identity, now time.Time) (*Session, error) {
	if !id.Valid() || int(id.SchedulerID) >= len(d.parts) {
		return nil, api.ErrSessionMismatch
	}
	p := &d.parts[id.SchedulerID]
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id.LinearIndex) >= len(p.slots) {
		return nil, api.ErrSessionMismatch
	}
	sl := p.slots[id.LinearIndex]
	if sl.salt == 0 || sl.salt != id.Salt {
		return nil, api.ErrSessionMismatch
	}
	sl.sess.Touch(now)
	return sl.sess, nil
}

// Destroy unbinds id, invalidates its salt and cancels the session.
func (d *Directory) Destroy(id identity.Identity) error {
	s, err := d.unbind(id, nil)
	if err != nil {
		return err
	}
	s.Cancel()
	d.obs.SessionDestroyed()
	return nil
}

// unbind clears the slot but keeps the session pointer so the next Create
// at this index can avoid the previous salt. A non-nil cond must hold for
// the bound session, checked under the partition lock.
func (d *Directory) unbind(id identity.Identity, cond func(*Session) bool) (*Session, error) {
	if !id.Valid() || int(id.SchedulerID) >= len(d.parts) {
		return nil, api.ErrSessionMismatch
	}
	p := &d.parts[id.SchedulerID]
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id.LinearIndex) >= len(p.slots) {
		return nil, api.ErrSessionMismatch
	}
	sl := &p.slots[id.LinearIndex]
	if sl.salt == 0 || sl.salt != id.Salt {
		return nil, api.ErrSessionMismatch
	}
	s := sl.sess
	if cond != nil && !cond(s) {
		return nil, errSessionActive
	}
	sl.salt = 0
	p.free = append(p.free, id.LinearIndex)
	d.live.Add(-1)
	return s, nil
}

// Sweep evicts sessions idle for longer than the idle timeout as of now and
// returns how many were evicted.
func (d *Directory) Sweep(now time.Time) int {
	timeout := time.Duration(d.idle.Load())
	if timeout <= 0 {
		return 0
	}
	cutoff := now.Add(-timeout).UnixNano()
	idle := func(s *Session) bool { return s.lastSeen.Load() < cutoff }
	var stale []identity.Identity
	for i := range d.parts {
		p := &d.parts[i]
		p.mu.Lock()
		for _, sl := range p.slots {
			if sl.salt != 0 && idle(sl.sess) {
				stale = append(stale, sl.sess.id)
			}
		}
		p.mu.Unlock()
	}
	evicted := 0
	for _, id := range stale {
		s, err := d.unbind(id, idle)
		if err != nil {
			continue
		}
		s.Cancel()
		evicted++
		d.obs.SessionEvicted()
		d.log.Debug("session evicted",
			zap.Uint8("scheduler", id.SchedulerID),
			zap.Uint32("index", id.LinearIndex),
			zap.Duration("idle", now.Sub(s.LastSeen())))
	}
	return evicted
}

// Range calls fn for every live session until fn returns false. fn runs
// outside partition locks.
func (d *Directory) Range(fn func(*Session) bool) {
	for i := range d.parts {
		p := &d.parts[i]
		p.mu.Lock()
		live := make([]*Session, 0, len(p.slots)-len(p.free))
		for _, sl := range p.slots {
			if sl.salt != 0 {
				live = append(live, sl.sess)
			}
		}
		p.mu.Unlock()
		for _, s := range live {
			if !fn(s) {
				return
			}
		}
	}
}

// Len returns the number of live sessions.
func (d *Directory) Len() int { return int(d.live.Load()) }

// PartitionLen returns the number of live sessions owned by sched.
func (d *Directory) PartitionLen(sched uint8) int {
	p, err := d.part(sched)
	if err != nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.free)
}
