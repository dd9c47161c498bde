package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skyport-ops/soc-backend/pkg/logger"
)

// Config selects and configures the bus backend (spec §4.4).
type Config struct {
	InMemory              bool
	RedisURL              string
	FallbackOnUnavailable bool
}

// Bus is the single facade producers and endpoints consume (C4). Once
// bound it exposes one Log implementation for the process lifetime;
// callers never see the backend type, only the mem:/log: cursor
// prefix on ListEvents.
type Bus struct {
	log     Log
	inMem   bool
	backend Log // unwrapped, for TailForPush/GroupRead internal use
	logger  *logger.Logger
}

// NewBus binds to the in-memory or durable backend per cfg, per spec
// §4.4's resolution order: InMemory flag wins outright; otherwise the
// durable backend is tried and EnsureGroup failures with Unavailable
// fall back to in-memory only if FallbackOnUnavailable is set.
func NewBus(ctx context.Context, cfg Config, log *logger.Logger) (*Bus, error) {
	if log == nil {
		log = logger.NewDefault("eventbus")
	}

	if cfg.InMemory {
		log.Info("event bus: binding to in-memory backend (InMemory=true)")
		return bindMemory(log), nil
	}

	redisLog, err := NewRedisLog(ctx, cfg.RedisURL)
	if err != nil {
		if cfg.FallbackOnUnavailable && IsUnavailable(err) {
			log.WithError(err).Warn("event bus: durable backend unavailable at startup, falling back to in-memory")
			return bindMemory(log), nil
		}
		return nil, fmt.Errorf("event bus: bind durable backend: %w", err)
	}

	if err := ensureAllGroups(ctx, redisLog); err != nil {
		if cfg.FallbackOnUnavailable && IsUnavailable(err) {
			log.WithError(err).Warn("event bus: EnsureGroup unavailable at startup, falling back to in-memory")
			redisLog.Close()
			return bindMemory(log), nil
		}
		redisLog.Close()
		return nil, fmt.Errorf("event bus: ensure groups: %w", err)
	}

	log.Info("event bus: bound to durable (redis streams) backend")
	return &Bus{log: redisLog, backend: redisLog, inMem: false, logger: log}, nil
}

func bindMemory(log *logger.Logger) *Bus {
	m := NewMemoryLog()
	ctx := context.Background()
	_ = ensureAllGroups(ctx, m)
	return &Bus{log: m, backend: m, inMem: true, logger: log}
}

func ensureAllGroups(ctx context.Context, l Log) error {
	groups := []string{GroupSOCCore, GroupReadModels, GroupAudit, GroupAnalytics, GroupFrontendFanout}
	streams := []string{GlobalStream, SimulationStream}
	for _, s := range streams {
		for _, g := range groups {
			if err := l.EnsureGroup(ctx, s, g); err != nil {
				return err
			}
		}
	}
	return nil
}

// InMemory reports whether the bus bound to the in-memory backend.
func (b *Bus) InMemory() bool { return b.inMem }

// Log exposes the bound backend for the consumer manager, which needs
// direct GroupRead/GroupAck access.
func (b *Bus) Log() Log { return b.backend }

// Publish appends an event to stream (default GlobalStream) after
// filling in event_id/timestamp/correlation_id as needed (spec §4.4).
func (b *Bus) Publish(ctx context.Context, eventType string, payload map[string]any, sourceContext string, severity Severity, correlationID string, entityRefs map[string]any, stream string) (string, error) {
	if stream == "" {
		stream = GlobalStream
	}
	env := NewEnvelope(eventType, sourceContext, severity, correlationID, entityRefs, payload)
	id, err := b.backend.Append(ctx, stream, env)
	if err != nil {
		b.logger.WithError(err).WithField("event_type", eventType).Error("publish failed")
		return "", err
	}
	b.logger.WithField("event_type", eventType).WithField("entry_id", id).WithField("stream", stream).Debug("published event")
	return id, nil
}

// TailForPush waits up to blockMs for the next entry after cursor on
// the global stream, for use by the SSE push endpoint (§4.8). cursor
// may carry the mem:/log: wire prefix; it is stripped before use.
func (b *Bus) TailForPush(ctx context.Context, cursor string, blockMs int) (Entry, bool, error) {
	if blockMs <= 0 {
		blockMs = 2000
	}
	return b.backend.Tail(ctx, GlobalStream, stripCursorPrefix(cursor), time.Duration(blockMs)*time.Millisecond)
}

// WireCursor prefixes a raw entry-id with this bus's backend marker, so
// the SSE endpoint can hand clients an opaque cursor (spec §6.2).
func (b *Bus) WireCursor(rawID string) string {
	return b.cursorPrefix() + rawID
}

// RawCursor strips a wire cursor's mem:/log: prefix, the same stripping
// TailForPush and ListEvents apply internally; a cursor without either
// prefix is returned unchanged.
func RawCursor(cursor string) string {
	return stripCursorPrefix(cursor)
}

// cursorPrefix distinguishes which backend a wire cursor belongs to,
// per spec §4.4/§6.2. It is the only backend detail permitted to leak
// to callers.
func (b *Bus) cursorPrefix() string {
	if b.inMem {
		return "mem:"
	}
	return "log:"
}

func stripCursorPrefix(cursor string) string {
	if idx := strings.Index(cursor, ":"); idx >= 0 {
		switch cursor[:idx] {
		case "mem", "log":
			return cursor[idx+1:]
		}
	}
	return cursor
}

// ListEvents returns a page of envelopes with a prefixed next_cursor
// (spec §4.4/§6.2). When cursor is empty, the newest `limit` entries
// are returned as a convenience for callers with no prior position.
func (b *Bus) ListEvents(ctx context.Context, cursor string, limit int) ([]*Envelope, string, error) {
	if limit <= 0 {
		limit = 50
	}

	raw := stripCursorPrefix(cursor)

	var entries []Entry
	var err error
	if raw == "" {
		entries, err = b.backend.Latest(ctx, GlobalStream, limit)
	} else {
		entries, err = b.backend.Range(ctx, GlobalStream, raw, limit)
	}
	if err != nil {
		return nil, "", err
	}

	items := make([]*Envelope, len(entries))
	nextRaw := CursorStart
	for i, e := range entries {
		items[i] = e.Envelope
		nextRaw = e.ID
	}
	return items, b.cursorPrefix() + nextRaw, nil
}

// Close releases the bound backend.
func (b *Bus) Close() error {
	return b.backend.Close()
}
