package repository

import (
	"sync"

	"github.com/gst3d/pushserver/internal/domain"
)

// AuditLogCapacity is the number of entries retained by the audit log
const AuditLogCapacity = 100

// AuditLog is a fixed-size ring of the most recent audit entries
type AuditLog struct {
	mu      sync.RWMutex
	entries []domain.AuditLogEntry
	head    int // index of the oldest entry once full
	size    int
}

// NewAuditLog creates a log holding at most capacity entries
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = AuditLogCapacity
	}
	return &AuditLog{entries: make([]domain.AuditLogEntry, capacity)}
}

// Append adds an entry, overwriting the oldest one when full
func (l *AuditLog) Append(entry domain.AuditLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.head+l.size)%capacity] = entry
		l.size++
		return
	}
	l.entries[l.head] = entry
	l.head = (l.head + 1) % capacity
}

// Recent returns up to n of the newest entries, oldest first
func (l *AuditLog) Recent(n int) []domain.AuditLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]domain.AuditLogEntry, n)
	capacity := len(l.entries)
	start := l.head + l.size - n
	for i := 0; i < n; i++ {
		out[i] = l.entries[(start+i)%capacity]
	}
	return out
}

// Len returns the number of retained entries
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}
