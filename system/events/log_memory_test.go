package events

import (
	"context"
	"testing"
	"time"
)

func envelopeFor(eventType string) *Envelope {
	return NewEnvelope(eventType, "test", SeverityInfo, "", nil, nil)
}

func TestMemoryLogAppendAndRange(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	id1, err := l.Append(ctx, GlobalStream, envelopeFor("a"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := l.Append(ctx, GlobalStream, envelopeFor("b")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := l.Range(ctx, GlobalStream, CursorStart, 10)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != id1 {
		t.Fatalf("expected both entries from start cursor, got %+v", entries)
	}
}

func TestMemoryLogTailBlocksUntilAppend(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	done := make(chan Entry, 1)
	go func() {
		entry, ok, err := l.Tail(ctx, GlobalStream, CursorTail, 2*time.Second)
		if err != nil || !ok {
			t.Errorf("Tail: entry=%+v ok=%v err=%v", entry, ok, err)
			return
		}
		done <- entry
	}()

	time.Sleep(20 * time.Millisecond) // let the goroutine start waiting
	if _, err := l.Append(ctx, GlobalStream, envelopeFor("woke")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	select {
	case entry := <-done:
		if entry.Envelope.EventType != "woke" {
			t.Errorf("expected to tail the appended entry, got %+v", entry)
		}
	case <-time.After(time.Second):
		t.Fatal("Tail did not wake up after Append")
	}
}

func TestMemoryLogTailTimesOutWithoutAppend(t *testing.T) {
	l := NewMemoryLog()
	_, ok, err := l.Tail(context.Background(), GlobalStream, CursorTail, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if ok {
		t.Error("expected Tail to time out with ok=false when nothing is appended")
	}
}

func TestMemoryLogUnknownCursorResetsToBeginning(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()
	id1, _ := l.Append(ctx, GlobalStream, envelopeFor("a"))
	_, _ = l.Append(ctx, GlobalStream, envelopeFor("b"))

	// A cursor id that doesn't match any known entry (e.g. the durable
	// backend was wiped, or an operator reconnects with a stale id) must
	// replay from the beginning rather than erroring.
	entries, err := l.Range(ctx, GlobalStream, "9999999999-0", 10)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != id1 {
		t.Fatalf("expected unknown cursor to reset to beginning, got %+v", entries)
	}
}

func TestMemoryLogGroupReadAndAck(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()
	if err := l.EnsureGroup(ctx, GlobalStream, "cg:test"); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	id1, _ := l.Append(ctx, GlobalStream, envelopeFor("a"))
	_, _ = l.Append(ctx, GlobalStream, envelopeFor("b"))

	entries, err := l.GroupRead(ctx, GlobalStream, "cg:test", "consumer-1", 1, time.Millisecond)
	if err != nil {
		t.Fatalf("GroupRead: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id1 {
		t.Fatalf("expected first unread entry, got %+v", entries)
	}

	if err := l.GroupAck(ctx, GlobalStream, "cg:test", id1); err != nil {
		t.Fatalf("GroupAck: %v", err)
	}

	next, err := l.GroupRead(ctx, GlobalStream, "cg:test", "consumer-1", 10, time.Millisecond)
	if err != nil {
		t.Fatalf("GroupRead after ack: %v", err)
	}
	if len(next) != 1 || next[0].Envelope.EventType != "b" {
		t.Fatalf("expected only the unacked entry remaining, got %+v", next)
	}
}

func TestMemoryLogGroupAckUnknownEntryErrors(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()
	_, _ = l.Append(ctx, GlobalStream, envelopeFor("a"))

	err := l.GroupAck(ctx, GlobalStream, "cg:test", "does-not-exist")
	if err == nil {
		t.Fatal("expected GroupAck on an unknown entry id to error")
	}
}

func TestMemoryLogLatest(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()
	for _, et := range []string{"a", "b", "c"} {
		_, _ = l.Append(ctx, GlobalStream, envelopeFor(et))
	}

	latest, err := l.Latest(ctx, GlobalStream, 2)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(latest) != 2 || latest[0].Envelope.EventType != "b" || latest[1].Envelope.EventType != "c" {
		t.Fatalf("expected the last two entries, got %+v", latest)
	}
}
