package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/fingerprint"
)

// Memory is an in-process Stream for tests and the embedded
// standalone mode. Ids are zero-padded sequence numbers so cursor
// comparison is plain string order, like Redis stream ids within one
// connection's view.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	seq     uint64
	waiters []chan struct{}
}

// NewMemory returns an empty in-memory stream.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(_ context.Context, vec []float64) (string, error) {
	return m.AppendRaw(fingerprint.Format(vec)), nil
}

// AppendRaw stores an arbitrary payload. It exists so tests can feed
// readers malformed entries.
func (m *Memory) AppendRaw(data string) string {
	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("%020d", m.seq)
	m.entries = append(m.entries, Entry{ID: id, Data: data, At: time.Now()})
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
	return id
}

func (m *Memory) Read(ctx context.Context, cursor string, block time.Duration) (*Entry, string, error) {
	deadline := time.NewTimer(block)
	defer deadline.Stop()
	m.mu.Lock()
	cur := m.resolve(cursor) // pin "$" to the tail as of subscription time
	m.mu.Unlock()
	for {
		m.mu.Lock()
		for i := range m.entries {
			if m.entries[i].ID > cur {
				e := m.entries[i]
				m.mu.Unlock()
				return &e, e.ID, nil
			}
		}
		wake := make(chan struct{})
		m.waiters = append(m.waiters, wake)
		m.mu.Unlock()

		select {
		case <-wake:
		case <-deadline.C:
			return nil, cursor, nil
		case <-ctx.Done():
			return nil, cursor, ctx.Err()
		}
	}
}

// resolve maps the special cursors onto concrete id boundaries; the
// caller holds the lock.
func (m *Memory) resolve(cursor string) string {
	switch cursor {
	case Tail:
		if len(m.entries) == 0 {
			return ""
		}
		return m.entries[len(m.entries)-1].ID
	case Start, "":
		return ""
	default:
		return cursor
	}
}

// Len reports the number of appended entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
