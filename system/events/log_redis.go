package events

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLog is the durable backend (spec §4.2), backed by Redis Streams.
// Operations map directly onto XADD/XREAD/XRANGE/XREVRANGE/XREADGROUP/
// XACK/XGROUP CREATE, matching the original system's redis.asyncio
// usage in its event bus.
type RedisLog struct {
	client *redis.Client
}

// NewRedisLog dials addr (a redis:// URL) and verifies connectivity.
func NewRedisLog(ctx context.Context, url string) (*RedisLog, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, newLogErr(LogFatal, "NewRedisLog", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, newLogErr(LogUnavailable, "NewRedisLog", err)
	}
	return &RedisLog{client: client}, nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == redis.Nil {
		return newLogErr(LogNotFound, op, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOGROUP"):
		return newLogErr(LogNotFound, op, err)
	case strings.Contains(msg, "BUSYGROUP"):
		return nil // EnsureGroup is idempotent
	case err == context.DeadlineExceeded, err == context.Canceled:
		return newLogErr(LogTransient, op, err)
	default:
		return newLogErr(LogUnavailable, op, err)
	}
}

func (l *RedisLog) Append(ctx context.Context, stream string, envelope *Envelope) (string, error) {
	flat := Encode(envelope)
	values := make(map[string]any, len(flat))
	for k, v := range flat {
		values[k] = v
	}
	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", classify("Append", err)
	}
	return id, nil
}

func decodeXMessage(m redis.XMessage) Entry {
	flat := make(map[string]any, len(m.Values))
	for k, v := range m.Values {
		flat[k] = v
	}
	return Entry{ID: m.ID, Envelope: Decode(flat)}
}

func (l *RedisLog) Tail(ctx context.Context, stream, fromCursor string, block time.Duration) (Entry, bool, error) {
	start := fromCursor
	if start == "" || start == CursorTail {
		start = "$"
	}
	res, err := l.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, start},
		Count:   1,
		Block:   block,
	}).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		if err == context.DeadlineExceeded {
			return Entry{}, false, nil
		}
		return Entry{}, false, classify("Tail", err)
	}
	for _, s := range res {
		for _, m := range s.Messages {
			return decodeXMessage(m), true, nil
		}
	}
	return Entry{}, false, nil
}

func (l *RedisLog) Range(ctx context.Context, stream, afterCursor string, limit int) ([]Entry, error) {
	start := "(" + afterCursor
	if afterCursor == "" || afterCursor == CursorStart || afterCursor == CursorDash {
		start = "-"
	}
	msgs, err := l.client.XRangeN(ctx, stream, start, "+", int64(limit)).Result()
	if err != nil {
		return nil, classify("Range", err)
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, decodeXMessage(m))
	}
	return out, nil
}

func (l *RedisLog) Latest(ctx context.Context, stream string, limit int) ([]Entry, error) {
	msgs, err := l.client.XRevRangeN(ctx, stream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, classify("Latest", err)
	}
	out := make([]Entry, len(msgs))
	for i, m := range msgs {
		// XRevRange returns newest-first; Latest promises chronological order.
		out[len(msgs)-1-i] = decodeXMessage(m)
	}
	return out, nil
}

func (l *RedisLog) GroupRead(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	res, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, classify("GroupRead", err)
	}
	var out []Entry
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, decodeXMessage(m))
		}
	}
	return out, nil
}

func (l *RedisLog) GroupAck(ctx context.Context, stream, group, entryID string) error {
	if err := l.client.XAck(ctx, stream, group, entryID).Err(); err != nil {
		return classify("GroupAck", err)
	}
	return nil
}

func (l *RedisLog) EnsureGroup(ctx context.Context, stream, group string) error {
	err := l.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return classify("EnsureGroup", err)
	}
	return nil
}

func (l *RedisLog) Close() error {
	return l.client.Close()
}
