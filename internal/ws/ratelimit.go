package ws

import (
	"sync"
	"time"
)

// Limit is the admission budget for one inbound event kind.
type Limit struct {
	Max    int
	Window time.Duration
}

// LimitTable maps event kinds to budgets; kinds not listed fall back to
// Default.
type LimitTable struct {
	Default  Limit
	PerEvent map[string]Limit
}

func (t LimitTable) limitFor(kind string) Limit {
	if lim, ok := t.PerEvent[kind]; ok {
		return lim
	}
	return t.Default
}

type windowCounter struct {
	count int
	start time.Time
}

// Limiter does fixed-window admission counting per (connection, event
// kind) pair. Over-limit events are dropped by the caller; there is no
// escalating penalty.
type Limiter struct {
	table    LimitTable
	mu       sync.Mutex
	counters map[string]map[string]*windowCounter // conn id -> kind -> window
}

func NewLimiter(table LimitTable) *Limiter {
	return &Limiter{
		table:    table,
		counters: make(map[string]map[string]*windowCounter),
	}
}

// Admit reports whether one more kind event from connID fits the window.
func (l *Limiter) Admit(connID, kind string) bool {
	lim := l.table.limitFor(kind)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	perConn, ok := l.counters[connID]
	if !ok {
		perConn = make(map[string]*windowCounter)
		l.counters[connID] = perConn
	}

	w, ok := perConn[kind]
	if !ok || now.Sub(w.start) >= lim.Window {
		perConn[kind] = &windowCounter{count: 1, start: now}
		return true
	}
	if w.count >= lim.Max {
		return false
	}
	w.count++
	return true
}

// Purge drops every counter for connID. Invoked exactly once, from the
// disconnect path.
func (l *Limiter) Purge(connID string) {
	l.mu.Lock()
	delete(l.counters, connID)
	l.mu.Unlock()
}

func (l *Limiter) tracked(connID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.counters[connID]
	return ok
}
