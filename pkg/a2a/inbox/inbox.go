// Package inbox implements the durable per-session A2A event log embedded in
// a session record: validation, idempotent append, injection filtering,
// acknowledge and retention pruning.
//
// The package never owns storage. Callers read the raw a2aInbox blob out of a
// session entry, run these pure functions, and write the result back inside
// one sessions.Store.AtomicUpdate transform.
package inbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the event format this consumer understands. Events
// carrying any other version are skipped, never guessed at.
const SchemaVersion = 1

// Event is one relayed task result. Immutable once delivered except for the
// delivery markers, which are set exactly once by a consuming turn.
type Event struct {
	SchemaVersion    int    `json:"schemaVersion"`
	CreatedAt        int64  `json:"createdAt"` // ms epoch, producer-assigned
	RunID            string `json:"runId"`
	SourceSessionKey string `json:"sourceSessionKey"`
	SourceDisplayKey string `json:"sourceDisplayKey,omitempty"`
	ReplyText        string `json:"replyText"`
	DeliveredAt      int64  `json:"deliveredAt,omitempty"`
	DeliveredRunID   string `json:"deliveredRunId,omitempty"`
}

// Delivered reports whether a consumer turn has already rendered this event.
func (e Event) Delivered() bool {
	return e.DeliveredAt != 0
}

// State is the inbox sub-object persisted at SessionEntry.a2aInbox.
// Events keep insertion order on disk; display order is recomputed at read
// time by BuildPromptBlock.
type State struct {
	Events []Event `json:"events"`
}

// AckMode selects what acknowledge does with consumed events.
type AckMode int

const (
	// AckMark sets the delivery markers and keeps the event for retention.
	AckMark AckMode = iota
	// AckClear removes consumed events outright.
	AckClear
)

// ParseAckMode converts the config string form. The config layer has already
// validated it; unknown input still fails loudly here rather than defaulting.
func ParseAckMode(s string) (AckMode, error) {
	switch s {
	case "mark":
		return AckMark, nil
	case "clear":
		return AckClear, nil
	default:
		return AckMark, fmt.Errorf("unknown ack mode %q", s)
	}
}

// ValidationError reports which part of a stored inbox blob failed
// validation. A single bad field blocks the entire read: a corrupted record
// is never partially trusted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("inbox validation: field %q: %s", e.Field, e.Reason)
}

// Validate parses and checks a raw a2aInbox blob. An empty blob is an empty
// inbox. Anything that is not an object holding an events list, or any event
// missing a required field or carrying a wrong type, fails the whole read.
func Validate(raw []byte) (*State, error) {
	if len(raw) == 0 {
		return &State{}, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, &ValidationError{Field: "a2aInbox", Reason: "not a JSON object"}
	}

	rawEvents, ok := top["events"]
	if !ok {
		return nil, &ValidationError{Field: "events", Reason: "missing"}
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(rawEvents, &items); err != nil {
		return nil, &ValidationError{Field: "events", Reason: "not a list of objects"}
	}

	state := &State{Events: make([]Event, 0, len(items))}
	for i, item := range items {
		ev, verr := validateEvent(i, item)
		if verr != nil {
			return nil, verr
		}
		state.Events = append(state.Events, ev)
	}
	return state, nil
}

func validateEvent(index int, item map[string]json.RawMessage) (Event, *ValidationError) {
	field := func(name string) string {
		return fmt.Sprintf("events[%d].%s", index, name)
	}

	var ev Event
	var verr *ValidationError

	requireInt := func(name string, dst *int64) {
		if verr != nil {
			return
		}
		raw, ok := item[name]
		if !ok {
			verr = &ValidationError{Field: field(name), Reason: "missing"}
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			verr = &ValidationError{Field: field(name), Reason: "not a number"}
		}
	}
	requireString := func(name string, dst *string) {
		if verr != nil {
			return
		}
		raw, ok := item[name]
		if !ok {
			verr = &ValidationError{Field: field(name), Reason: "missing"}
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			verr = &ValidationError{Field: field(name), Reason: "not a string"}
		}
	}
	optionalInt := func(name string, dst *int64) {
		if verr != nil {
			return
		}
		raw, ok := item[name]
		if !ok {
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			verr = &ValidationError{Field: field(name), Reason: "not a number"}
		}
	}
	optionalString := func(name string, dst *string) {
		if verr != nil {
			return
		}
		raw, ok := item[name]
		if !ok {
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			verr = &ValidationError{Field: field(name), Reason: "not a string"}
		}
	}

	var schema int64
	requireInt("schemaVersion", &schema)
	requireInt("createdAt", &ev.CreatedAt)
	requireString("runId", &ev.RunID)
	requireString("sourceSessionKey", &ev.SourceSessionKey)
	requireString("replyText", &ev.ReplyText)
	optionalString("sourceDisplayKey", &ev.SourceDisplayKey)
	optionalInt("deliveredAt", &ev.DeliveredAt)
	optionalString("deliveredRunId", &ev.DeliveredRunID)

	if verr != nil {
		return Event{}, verr
	}
	ev.SchemaVersion = int(schema)

	if ev.RunID == "" {
		return Event{}, &ValidationError{Field: field("runId"), Reason: "empty"}
	}
	if ev.SourceSessionKey == "" {
		return Event{}, &ValidationError{Field: field("sourceSessionKey"), Reason: "empty"}
	}
	return ev, nil
}

// Append adds an event preserving insertion order. A second write with the
// same runId is a no-op so producer retries stay idempotent; the first
// write's payload is retained.
func Append(state *State, ev Event) bool {
	for _, existing := range state.Events {
		if existing.RunID == ev.RunID {
			return false
		}
	}
	state.Events = append(state.Events, ev)
	return true
}

// Partition is the result of FilterForInjection. Already-delivered events
// appear in none of the three buckets.
type Partition struct {
	Pending     []Event
	Stale       []Event
	Unsupported []Event
}

// FilterForInjection splits undelivered events into those eligible for
// rendering (pending), those past the injection age window (stale), and
// those written by a producer format this consumer does not understand
// (unsupported). It never mutates or drops the underlying events: stale and
// unsupported stay in storage so a later fix can still deliver them.
func FilterForInjection(events []Event, now time.Time, maxAge time.Duration, schemaVersion int) Partition {
	var p Partition
	cutoff := now.UnixMilli() - maxAge.Milliseconds()
	for _, ev := range events {
		if ev.Delivered() {
			continue
		}
		switch {
		case ev.SchemaVersion != schemaVersion:
			p.Unsupported = append(p.Unsupported, ev)
		case ev.CreatedAt < cutoff:
			p.Stale = append(p.Stale, ev)
		default:
			p.Pending = append(p.Pending, ev)
		}
	}
	return p
}

// Acknowledge marks (or, in clear mode, removes) every event whose runId is
// in includedRunIDs. DeliveredAt is monotonic: an event already carrying a
// delivery marker keeps its first one.
func Acknowledge(state *State, includedRunIDs []string, deliveredAtMs int64, deliveredRunID string, mode AckMode) {
	included := make(map[string]bool, len(includedRunIDs))
	for _, id := range includedRunIDs {
		included[id] = true
	}

	if mode == AckClear {
		kept := state.Events[:0]
		for _, ev := range state.Events {
			if !included[ev.RunID] {
				kept = append(kept, ev)
			}
		}
		state.Events = kept
		return
	}

	for i := range state.Events {
		if included[state.Events[i].RunID] && !state.Events[i].Delivered() {
			state.Events[i].DeliveredAt = deliveredAtMs
			state.Events[i].DeliveredRunID = deliveredRunID
		}
	}
}

// PruneRetention removes events that are both delivered and older (by
// delivery time) than the retention window. Pending events are never
// removed, regardless of age. retentionDays <= 0 means never prune.
func PruneRetention(events []Event, now time.Time, retentionDays int) ([]Event, int) {
	if retentionDays <= 0 {
		return events, 0
	}
	cutoff := now.UnixMilli() - int64(retentionDays)*24*int64(time.Hour/time.Millisecond)
	kept := make([]Event, 0, len(events))
	pruned := 0
	for _, ev := range events {
		if ev.Delivered() && ev.DeliveredAt < cutoff {
			pruned++
			continue
		}
		kept = append(kept, ev)
	}
	return kept, pruned
}

// Marshal encodes the state back into the form stored at
// SessionEntry.a2aInbox.
func (s *State) Marshal() (json.RawMessage, error) {
	if s.Events == nil {
		s.Events = []Event{}
	}
	return json.Marshal(s)
}
