package httperrors

import (
	"sort"
	"sync"
	"time"
)

// Log keeps the most recent failures in memory
type Log struct {
	mu          sync.RWMutex
	failures    map[string]*Failure
	maxFailures int
}

// NewLog creates a log holding at most maxFailures entries
func NewLog(maxFailures int) *Log {
	if maxFailures <= 0 {
		maxFailures = 200
	}
	return &Log{
		failures:    make(map[string]*Failure),
		maxFailures: maxFailures,
	}
}

// Add records a failure, evicting the oldest when full
func (l *Log) Add(f Failure) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.failures) >= l.maxFailures {
		l.removeOldest()
	}
	l.failures[f.ID] = &f
}

// removeOldest removes the oldest failure (must be called with lock held)
func (l *Log) removeOldest() {
	var oldestID string
	var oldestTime time.Time

	for id, f := range l.failures {
		if oldestID == "" || f.Timestamp.Before(oldestTime) {
			oldestID = id
			oldestTime = f.Timestamp
		}
	}

	if oldestID != "" {
		delete(l.failures, oldestID)
	}
}

// Recent returns failures newest first. With unacknowledgedOnly set,
// acknowledged failures are skipped.
func (l *Log) Recent(unacknowledgedOnly bool) []Failure {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Failure, 0, len(l.failures))
	for _, f := range l.failures {
		if unacknowledgedOnly && f.Acknowledged {
			continue
		}
		result = append(result, *f)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result
}

// Acknowledge marks a failure as seen
func (l *Log) Acknowledge(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.failures[id]
	if !ok {
		return false
	}
	f.Acknowledged = true
	return true
}

// Clear removes all failures and returns how many were removed
func (l *Log) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := len(l.failures)
	l.failures = make(map[string]*Failure)
	return count
}
