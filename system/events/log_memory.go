package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memStream is a single append-only vector of entries guarded by a
// mutex and a condition variable that blocking Tail/GroupRead callers
// wait on. The condition variable is recreated whenever the owning
// MemoryLog is (re-)initialized; see MemoryLog.Init.
type memStream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []Entry
	offsets map[string]int // group name -> next unread index
}

func newMemStream() *memStream {
	s := &memStream{offsets: make(map[string]int)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// MemoryLog is the in-memory implementation of Log (spec §4.3).
// Contract-identical to the durable backend; process-local only.
//
// The condition variable is loop-bound: it must be created on the same
// execution context that will wait on it. Init discards all prior
// state, including outstanding waiters, and must be called once per
// process lifecycle before use (never shared across process restarts).
type MemoryLog struct {
	mu      sync.RWMutex
	streams map[string]*memStream
}

// NewMemoryLog constructs a ready-to-use in-memory log.
func NewMemoryLog() *MemoryLog {
	l := &MemoryLog{}
	l.Init()
	return l
}

// Init (re)creates all loop-bound state. Safe to call to reset between
// test runs; never call this while goroutines from a prior Init are
// still blocked in Tail/GroupRead on this instance.
func (l *MemoryLog) Init() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streams = make(map[string]*memStream)
}

func (l *MemoryLog) stream(name string) *memStream {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.streams[name]
	if !ok {
		s = newMemStream()
		l.streams[name] = s
	}
	return s
}

// nextID formats the entry-id as "<millisUnix>-<sequence>" where
// sequence is the entry's index within its stream (spec §4.3); it is
// not used for lexicographic comparison, only identity match.
func nextID(index int) string {
	return fmt.Sprintf("%d-%d", time.Now().UnixMilli(), index)
}

func (l *MemoryLog) Append(ctx context.Context, stream string, envelope *Envelope) (string, error) {
	s := l.stream(stream)
	s.mu.Lock()
	defer s.mu.Unlock()

	index := len(s.entries)
	id := nextID(index)
	s.entries = append(s.entries, Entry{ID: id, Envelope: envelope})
	s.cond.Broadcast()
	return id, nil
}

// resolveStart returns the vector index to start reading from for the
// given cursor, matching spec §4.3's resolution rules: "$" means tail
// (len at call time), a concrete id resolves to index+1 or 0 if
// unknown (replay-safe on operator reconnect; see the Open Question
// resolution in DESIGN.md), and the start sentinels mean 0.
func (s *memStream) resolveStart(cursor string) int {
	switch cursor {
	case "", CursorTail:
		return len(s.entries)
	case CursorStart, CursorDash:
		return 0
	default:
		for i, e := range s.entries {
			if e.ID == cursor {
				return i + 1
			}
		}
		return 0
	}
}

func (l *MemoryLog) Tail(ctx context.Context, stream, fromCursor string, block time.Duration) (Entry, bool, error) {
	s := l.stream(stream)

	s.mu.Lock()
	defer s.mu.Unlock()

	startIndex := s.resolveStart(fromCursor)
	if startIndex < len(s.entries) {
		return s.entries[startIndex], true, nil
	}

	timer := time.AfterFunc(block, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	deadline := time.Now().Add(block)
	for startIndex >= len(s.entries) {
		if ctx.Err() != nil {
			return Entry{}, false, ctx.Err()
		}
		if time.Now().After(deadline) {
			return Entry{}, false, nil
		}
		s.cond.Wait()
	}
	return s.entries[startIndex], true, nil
}

func (l *MemoryLog) Range(ctx context.Context, stream, afterCursor string, limit int) ([]Entry, error) {
	s := l.stream(stream)
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.resolveStart(afterCursor)
	if afterCursor == CursorDash && start > 0 {
		start-- // "-" is inclusive of the first entry
	}
	if start < 0 {
		start = 0
	}
	if start >= len(s.entries) || limit <= 0 {
		return nil, nil
	}
	end := start + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	out := make([]Entry, end-start)
	copy(out, s.entries[start:end])
	return out, nil
}

func (l *MemoryLog) Latest(ctx context.Context, stream string, limit int) ([]Entry, error) {
	s := l.stream(stream)
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || len(s.entries) == 0 {
		return nil, nil
	}
	start := len(s.entries) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(s.entries)-start)
	copy(out, s.entries[start:])
	return out, nil
}

func (l *MemoryLog) GroupRead(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	s := l.stream(stream)

	s.mu.Lock()
	defer s.mu.Unlock()

	offset, ok := s.offsets[group]
	if !ok {
		offset = 0
	}

	if offset >= len(s.entries) {
		deadline := time.Now().Add(block)
		timer := time.AfterFunc(block, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer timer.Stop()

		for offset >= len(s.entries) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if time.Now().After(deadline) {
				return nil, nil
			}
			s.cond.Wait()
		}
	}

	end := offset + count
	if end > len(s.entries) {
		end = len(s.entries)
	}
	out := make([]Entry, end-offset)
	copy(out, s.entries[offset:end])
	return out, nil
}

func (l *MemoryLog) GroupAck(ctx context.Context, stream, group, entryID string) error {
	s := l.stream(stream)
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == entryID {
			next := i + 1
			if cur, ok := s.offsets[group]; !ok || next > cur {
				s.offsets[group] = next
			}
			return nil
		}
	}
	return newLogErr(LogNotFound, "GroupAck", fmt.Errorf("entry %q not found in stream %q", entryID, stream))
}

func (l *MemoryLog) EnsureGroup(ctx context.Context, stream, group string) error {
	s := l.stream(stream)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offsets[group]; !ok {
		s.offsets[group] = 0
	}
	return nil
}

func (l *MemoryLog) Close() error { return nil }
