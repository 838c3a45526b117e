// Package journal keeps the recent system log shown to clients. Appends
// never block: the ring overwrites its oldest entry and slow subscribers
// miss entries rather than stall the writer.
package journal

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained
const DefaultCapacity = 200

// Entry is one log line
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the entry as "[timestamp] message"
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.UTC().Format(time.RFC3339), e.Message)
}

// Journal is a bounded, concurrency-safe ring of entries
type Journal struct {
	mu          sync.RWMutex
	entries     []Entry
	next        int
	full        bool
	subscribers map[int]chan Entry
	nextSubID   int
	now         func() time.Time
}

// New creates a journal holding capacity entries
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		entries:     make([]Entry, capacity),
		subscribers: make(map[int]chan Entry),
		now:         time.Now,
	}
}

// Append records msg and forwards it to every subscriber that has room
func (j *Journal) Append(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e := Entry{Time: j.now(), Message: msg}
	j.entries[j.next] = e
	j.next = (j.next + 1) % len(j.entries)
	if j.next == 0 {
		j.full = true
	}

	for _, ch := range j.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Appendf formats and records a message
func (j *Journal) Appendf(format string, args ...interface{}) {
	j.Append(fmt.Sprintf(format, args...))
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (j *Journal) Recent(n int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	size := j.next
	if j.full {
		size = len(j.entries)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (j.next - i + len(j.entries)) % len(j.entries)
		out = append(out, j.entries[idx])
	}
	return out
}

// Len returns the number of retained entries
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.full {
		return len(j.entries)
	}
	return j.next
}

// Subscribe returns a channel receiving new entries and a function that
// unsubscribes and closes it
func (j *Journal) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Entry, buffer)

	j.mu.Lock()
	id := j.nextSubID
	j.nextSubID++
	j.subscribers[id] = ch
	j.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subscribers, id)
			j.mu.Unlock()
			close(ch)
		})
	}
}
