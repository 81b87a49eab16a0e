// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"sync"
	"time"
)

const defaultMemoryCapacity = 1000

// MemorySink keeps the most recent events in a bounded in-memory buffer.
// The durable journal is authoritative; this sink serves fast reads and
// tests.
type MemorySink struct {
	mu       sync.Mutex
	seq      int64
	capacity int
	buf      []Event
}

// NewMemorySink returns a sink retaining up to capacity events, oldest
// evicted first. Non-positive capacity gets the default.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemorySink{capacity: capacity}
}

func (m *MemorySink) Record(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ev.Sequence = m.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = nowUTC()
	}
	m.buf = append(m.buf, ev)
	if len(m.buf) > m.capacity {
		m.buf = m.buf[len(m.buf)-m.capacity:]
	}
}

// List returns retained events newest first, optionally filtered by type
// and capped at limit. A non-positive limit returns everything retained.
func (m *MemorySink) List(eventType string, limit int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Event, 0, len(m.buf))
	for i := len(m.buf) - 1; i >= 0; i-- {
		ev := m.buf[i]
		if eventType != "" && ev.Type != eventType {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func nowUTC() time.Time { return time.Now().UTC() }
