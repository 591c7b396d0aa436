package drone

import (
	"sync"
	"time"
)

// opLogCapacity bounds the in-memory operation log; oldest entries are
// evicted first. Purely diagnostic.
const opLogCapacity = 100

// OperationLogEntry is one diagnostic record of a controller operation.
type OperationLogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation"`
	Details   map[string]any `json:"details,omitempty"`
}

type operationLog struct {
	mu       sync.Mutex
	capacity int
	entries  []OperationLogEntry
}

func newOperationLog(capacity int) *operationLog {
	if capacity <= 0 {
		capacity = opLogCapacity
	}
	return &operationLog{capacity: capacity}
}

func (l *operationLog) append(operation string, details map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, OperationLogEntry{
		Timestamp: time.Now(),
		Operation: operation,
		Details:   details,
	})
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
}

// snapshot returns a copy of the log, oldest first.
func (l *operationLog) snapshot() []OperationLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]OperationLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
