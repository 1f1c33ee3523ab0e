// Package lock provides per-employee mutual exclusion. Every state
// mutation for one employee (activity start/end, clock events, the
// per-employee slice of a rollover) runs under that employee's lock, so
// check-then-write sequences stay atomic while different employees
// proceed concurrently.
package lock

import (
	"fmt"
	"sync"
	"time"
)

type entry struct {
	mu       sync.Mutex
	lastUsed time.Time
}

// EmployeeLocks hands out one mutex per (group, employee) key and
// discards entries that have been idle for a while so the map does not
// grow without bound.
type EmployeeLocks struct {
	mu      sync.Mutex
	entries map[string]*entry

	maxIdle     time.Duration
	lastCleanup time.Time
}

// NewEmployeeLocks creates a lock registry. Entries idle longer than
// maxIdle are dropped during opportunistic cleanup.
func NewEmployeeLocks(maxIdle time.Duration) *EmployeeLocks {
	if maxIdle <= 0 {
		maxIdle = 24 * time.Hour
	}
	return &EmployeeLocks{
		entries:     make(map[string]*entry),
		maxIdle:     maxIdle,
		lastCleanup: time.Now(),
	}
}

func key(groupID, employeeID int64) string {
	return fmt.Sprintf("%d-%d", groupID, employeeID)
}

// Acquire locks the employee's mutex and returns the unlock function.
func (l *EmployeeLocks) Acquire(groupID, employeeID int64) func() {
	e := l.get(groupID, employeeID)
	e.mu.Lock()
	return e.mu.Unlock
}

func (l *EmployeeLocks) get(groupID, employeeID int64) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeCleanup()

	k := key(groupID, employeeID)
	e, ok := l.entries[k]
	if !ok {
		e = &entry{}
		l.entries[k] = e
	}
	e.lastUsed = time.Now()
	return e
}

// maybeCleanup drops idle entries at most once per hour. Caller holds
// l.mu. An entry whose mutex is currently held is always recently used,
// so it is never dropped.
func (l *EmployeeLocks) maybeCleanup() {
	now := time.Now()
	if now.Sub(l.lastCleanup) < time.Hour {
		return
	}
	l.lastCleanup = now

	for k, e := range l.entries {
		if now.Sub(e.lastUsed) > l.maxIdle {
			delete(l.entries, k)
		}
	}
}

// Len reports how many lock entries are currently tracked.
func (l *EmployeeLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
