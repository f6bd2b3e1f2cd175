// Package calltrace records every function invocation made on behalf of
// a conversation: arguments, outcome, and timing.
//
// The trace is purely observational — orchestration never reads it to
// make decisions — and has its own lifecycle, keyed by the same
// conversation identity as the message history.
package calltrace

import (
	"sync"
	"time"
)

// Entry is the audit record of one function invocation.
type Entry struct {
	Function  string         `json:"function"`
	Args      map[string]any `json:"args,omitempty"`
	Success   bool           `json:"success"`
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
	Latency   time.Duration  `json:"latency_ns"`
	Timestamp time.Time      `json:"timestamp"`
}

// Log is an append-only per-conversation call trace. Safe for
// concurrent use; entries for one conversation keep arrival order.
type Log struct {
	mu     sync.RWMutex
	traces map[string]*trace
}

type trace struct {
	mu      sync.Mutex
	entries []Entry
}

// NewLog creates an empty trace log.
func NewLog() *Log {
	return &Log{traces: make(map[string]*trace)}
}

// Record appends an entry to the conversation's trace. Prior entries
// are never mutated or removed.
func (l *Log) Record(conversationID string, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	tr, ok := l.traces[conversationID]
	if !ok {
		tr = &trace{}
		l.traces[conversationID] = tr
	}
	l.mu.Unlock()

	tr.mu.Lock()
	tr.entries = append(tr.entries, e)
	tr.mu.Unlock()
}

// ForConversation returns a copy of the conversation's trace in
// recording order. Unknown ids return an empty slice.
func (l *Log) ForConversation(conversationID string) []Entry {
	l.mu.RLock()
	tr := l.traces[conversationID]
	l.mu.RUnlock()
	if tr == nil {
		return nil
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Entry, len(tr.entries))
	copy(out, tr.entries)
	return out
}

// Drop removes the trace for a conversation. Called by the same
// eviction policy that destroys the conversation itself.
func (l *Log) Drop(conversationID string) {
	l.mu.Lock()
	delete(l.traces, conversationID)
	l.mu.Unlock()
}
