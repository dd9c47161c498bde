// Package events implements the event backbone: envelope encoding, the
// durable and in-memory log backends, the bus facade, and the consumer
// manager that drives side-effect handlers off the log.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Severity is one of the three levels an envelope may carry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Stream names. Entry-ids are ordered within a stream only; there is no
// cross-stream ordering guarantee.
const (
	GlobalStream     = "stream:events:global"
	SimulationStream = "stream:events:simulation"
)

// Required consumer groups, created idempotently at startup.
const (
	GroupSOCCore        = "cg:soc-core"
	GroupReadModels     = "cg:read-models"
	GroupAudit          = "cg:audit"
	GroupAnalytics      = "cg:analytics"
	GroupFrontendFanout = "cg:frontend-fanout"
)

// Envelope is the canonical event record (spec §3.1). EntityRefs and
// Payload are nested maps on the wire between callers, but are
// JSON-encoded to strings when the durable backend stores them, since
// it only accepts flat string->string fields.
type Envelope struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	SourceContext string         `json:"source_context"`
	Severity      Severity       `json:"severity"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	EntityRefs    map[string]any `json:"entity_refs"`
	Payload       map[string]any `json:"payload"`

	// Residual carries any fields present on decode that are not part of
	// the canonical shape above, so consumers reading an older or
	// extended wire format don't lose data silently.
	Residual map[string]string `json:"-"`
}

// NewEnvelope fills in EventID/Timestamp and defaults for optional fields.
func NewEnvelope(eventType, sourceContext string, severity Severity, correlationID string, entityRefs, payload map[string]any) *Envelope {
	if severity == "" {
		severity = SeverityInfo
	}
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	if entityRefs == nil {
		entityRefs = map[string]any{}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return &Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		SourceContext: sourceContext,
		Severity:      severity,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		EntityRefs:    entityRefs,
		Payload:       payload,
	}
}

// canonicalFields lists the keys Encode/Decode treat specially; anything
// else read off the wire lands in Residual.
var canonicalFields = map[string]bool{
	"event_id":       true,
	"event_type":     true,
	"source_context": true,
	"severity":       true,
	"timestamp":      true,
	"correlation_id": true,
	"entity_refs":    true,
	"payload":        true,
}

// Encode flattens an envelope into the string->string shape the durable
// log's wire format requires. entity_refs and payload are JSON-encoded.
func Encode(e *Envelope) map[string]string {
	refsJSON, _ := json.Marshal(e.EntityRefs)
	payloadJSON, _ := json.Marshal(e.Payload)

	flat := map[string]string{
		"event_id":       e.EventID,
		"event_type":     e.EventType,
		"source_context": e.SourceContext,
		"severity":       string(e.Severity),
		"timestamp":      e.Timestamp.UTC().Format(time.RFC3339Nano),
		"correlation_id": e.CorrelationID,
		"entity_refs":    string(refsJSON),
		"payload":        string(payloadJSON),
	}
	for k, v := range e.Residual {
		flat[k] = v
	}
	return flat
}

// Decode reconstructs an Envelope from a flat map, tolerating values
// that arrive as []byte (as some stream drivers hand back), already
// empty, or already JSON-parsed. Decode(Encode(e)) reproduces e's
// canonical fields; Decode is also safe to call twice on the same
// input (idempotent).
func Decode(flat map[string]any) *Envelope {
	e := &Envelope{
		EntityRefs: map[string]any{},
		Payload:    map[string]any{},
		Residual:   map[string]string{},
	}

	get := func(key string) string {
		return asString(flat[key])
	}

	e.EventID = get("event_id")
	e.EventType = get("event_type")
	e.SourceContext = get("source_context")
	e.Severity = Severity(get("severity"))
	e.CorrelationID = get("correlation_id")

	if ts := get("timestamp"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		} else if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = parsed
		}
	}

	e.EntityRefs = asObjectMap(flat["entity_refs"])
	e.Payload = asObjectMap(flat["payload"])

	for k, v := range flat {
		if canonicalFields[k] {
			continue
		}
		e.Residual[k] = asString(v)
	}

	return e
}

// asString tolerates string, []byte, nil, and falls back to JSON
// encoding for anything else (mirrors the source system's
// byte/str/None tolerance when reading off a stream driver).
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// asObjectMap parses a value that may already be a map[string]any
// (idempotent decode), a JSON-encoded string/[]byte, or empty/nil.
func asObjectMap(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return t
	case string:
		return parseObjectJSON(t)
	case []byte:
		return parseObjectJSON(string(t))
	default:
		return map[string]any{}
	}
}

// parseObjectJSON tolerantly parses a wire-encoded JSON object. Input
// that gjson.Valid rejects (malformed JSON, including trailing bytes
// after the object) or that is not an object yields an empty map, so
// one bad field does not fail the whole envelope decode.
func parseObjectJSON(s string) map[string]any {
	if s == "" || !gjson.Valid(s) {
		return map[string]any{}
	}
	result := gjson.Parse(s)
	if !result.IsObject() {
		return map[string]any{}
	}
	out := make(map[string]any, len(result.Map()))
	for k, v := range result.Map() {
		out[k] = v.Value()
	}
	return out
}

// GetAny returns the first present key's value among keys, or nil.
// Mirrors the source system's tolerant payload field lookup used by
// the consumer dispatch table, where producers are not always
// consistent about field naming (e.g. incidentId vs incident_id).
func GetAny(payload map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := payload[k]; ok {
			return v
		}
	}
	return nil
}

// GetAnyString is GetAny with a string coercion and default fallback.
func GetAnyString(payload map[string]any, def string, keys ...string) string {
	v := GetAny(payload, keys...)
	if v == nil {
		return def
	}
	s := asString(v)
	if s == "" {
		return def
	}
	return s
}
