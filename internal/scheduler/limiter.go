package scheduler

import (
	"slices"
	"sync"
)

// HostLimiter lets one audit per host run at a time. Runs that find their
// host busy wait in a per-host FIFO and are handed the host on Release.
type HostLimiter struct {
	mu      sync.Mutex
	active  map[string]string
	waiting map[string][]string
}

// NewHostLimiter creates an empty HostLimiter.
func NewHostLimiter() *HostLimiter {
	return &HostLimiter{
		active:  make(map[string]string),
		waiting: make(map[string][]string),
	}
}

// Acquire claims host for taskID. When another task holds it, taskID is
// queued behind the holder and Acquire returns false. A task already
// waiting for host is not queued twice.
func (hl *HostLimiter) Acquire(host, taskID string) bool {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	if _, busy := hl.active[host]; !busy {
		hl.active[host] = taskID
		return true
	}
	if !slices.Contains(hl.waiting[host], taskID) {
		hl.waiting[host] = append(hl.waiting[host], taskID)
	}
	return false
}

// Release passes host to the next waiting task and returns its id. The host
// is freed when nothing waits for it.
func (hl *HostLimiter) Release(host string) (string, bool) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	queue := hl.waiting[host]
	if len(queue) == 0 {
		delete(hl.active, host)
		delete(hl.waiting, host)
		return "", false
	}
	next := queue[0]
	if len(queue) == 1 {
		delete(hl.waiting, host)
	} else {
		hl.waiting[host] = queue[1:]
	}
	hl.active[host] = next
	return next, true
}

// Holder returns the task currently auditing host, if any.
func (hl *HostLimiter) Holder(host string) (string, bool) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	id, ok := hl.active[host]
	return id, ok
}

// Waiting returns how many runs are queued for host.
func (hl *HostLimiter) Waiting(host string) int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.waiting[host])
}
