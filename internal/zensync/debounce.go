package zensync

import (
	"log"
	"strings"
	"sync"
	"time"
)

const DefaultDebounceWindow = 2 * time.Second

// Scheduler coalesces deferred work per key: scheduling a key that already
// has a pending timer cancels and replaces it, so a burst of edits inside the
// window produces at most one callback, and the callback runs against
// whatever state exists when it fires. Callback errors and panics are logged
// and swallowed; nothing propagates to the caller that scheduled the work.
type Scheduler struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[string]*time.Timer
	closed bool
}

func NewScheduler(delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultDebounceWindow
	}
	return &Scheduler{delay: delay, timers: map[string]*time.Timer{}}
}

func (s *Scheduler) Schedule(key string, perform func() error) {
	if s == nil || key == "" || perform == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.delay, func() {
		s.fire(key, timer, perform)
	})
	s.timers[key] = timer
}

func (s *Scheduler) fire(key string, timer *time.Timer, perform func() error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	// A Stop that raced with an already-firing timer leaves a stale
	// callback behind; it must not run alongside its replacement.
	if current, ok := s.timers[key]; !ok || current != timer {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("zensync: scheduled write for %s panicked: %v", key, r)
		}
	}()
	if err := perform(); err != nil {
		log.Printf("zensync: scheduled write for %s failed: %v", key, err)
	}
}

// Cancel discards any pending timer for key without invoking the work.
func (s *Scheduler) Cancel(key string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.timers, key)
	return true
}

// CancelPrefix discards every pending timer whose key starts with prefix.
// Keys are "email/collection[/id]", so a user's whole session can be torn
// down with their email prefix.
func (s *Scheduler) CancelPrefix(prefix string) int {
	if s == nil || prefix == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := 0
	for key, timer := range s.timers {
		if strings.HasPrefix(key, prefix) {
			timer.Stop()
			delete(s.timers, key)
			cancelled++
		}
	}
	return cancelled
}

func (s *Scheduler) Pending() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown cancels all pending timers and rejects further scheduling.
func (s *Scheduler) Shutdown() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}
