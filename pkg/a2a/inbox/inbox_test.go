package inbox

import (
	"errors"
	"testing"
	"time"
)

func testEvent(runID string, createdAt int64) Event {
	return Event{
		SchemaVersion:    SchemaVersion,
		CreatedAt:        createdAt,
		RunID:            runID,
		SourceSessionKey: "agent:main:cli",
		ReplyText:        "reply for " + runID,
	}
}

func TestValidate_EmptyBlobIsEmptyInbox(t *testing.T) {
	state, err := Validate(nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(state.Events) != 0 {
		t.Errorf("expected empty inbox, got %d events", len(state.Events))
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	state := &State{}
	Append(state, Event{
		SchemaVersion:    1,
		CreatedAt:        1738737600000,
		RunID:            "run-123",
		SourceSessionKey: "agent:main:subagent:sub-001",
		SourceDisplayKey: "Payments QA",
		ReplyText:        "All 42 checks passed.",
	})

	raw, err := state.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(parsed.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(parsed.Events))
	}
	ev := parsed.Events[0]
	if ev.RunID != "run-123" || ev.CreatedAt != 1738737600000 {
		t.Errorf("event mangled: %+v", ev)
	}
	if ev.SourceDisplayKey != "Payments QA" {
		t.Errorf("expected display key preserved, got %q", ev.SourceDisplayKey)
	}
	if ev.Delivered() {
		t.Error("fresh event must not read as delivered")
	}
}

func TestValidate_FailClosed(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"not an object", `[1,2]`, "a2aInbox"},
		{"missing events", `{"other":[]}`, "events"},
		{"events not a list", `{"events":{}}`, "events"},
		{"missing runId", `{"events":[{"schemaVersion":1,"createdAt":1,"sourceSessionKey":"a","replyText":"x"}]}`, "events[0].runId"},
		{"empty runId", `{"events":[{"schemaVersion":1,"createdAt":1,"runId":"","sourceSessionKey":"a","replyText":"x"}]}`, "events[0].runId"},
		{"createdAt wrong type", `{"events":[{"schemaVersion":1,"createdAt":"soon","runId":"r","sourceSessionKey":"a","replyText":"x"}]}`, "events[0].createdAt"},
		{"empty sourceSessionKey", `{"events":[{"schemaVersion":1,"createdAt":1,"runId":"r","sourceSessionKey":"","replyText":"x"}]}`, "events[0].sourceSessionKey"},
		{"missing replyText", `{"events":[{"schemaVersion":1,"createdAt":1,"runId":"r","sourceSessionKey":"a"}]}`, "events[0].replyText"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate([]byte(tc.raw))
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if verr.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestValidate_OneBadEventBlocksAll(t *testing.T) {
	raw := `{"events":[
		{"schemaVersion":1,"createdAt":1,"runId":"good","sourceSessionKey":"a","replyText":"x"},
		{"schemaVersion":1,"createdAt":2,"runId":"","sourceSessionKey":"a","replyText":"y"}
	]}`
	if _, err := Validate([]byte(raw)); err == nil {
		t.Fatal("expected the whole read to fail")
	}
}

func TestAppend_DedupeKeepsFirstWrite(t *testing.T) {
	state := &State{}
	first := testEvent("run-1", 100)
	first.ReplyText = "first write"

	if !Append(state, first) {
		t.Fatal("first append should succeed")
	}

	retry := testEvent("run-1", 200)
	retry.ReplyText = "retry payload"
	if Append(state, retry) {
		t.Error("duplicate runId append should be a no-op")
	}

	if len(state.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(state.Events))
	}
	if state.Events[0].ReplyText != "first write" {
		t.Errorf("first write's payload must be retained, got %q", state.Events[0].ReplyText)
	}
}

func TestFilterForInjection_Buckets(t *testing.T) {
	now := time.UnixMilli(1738737600000)
	maxAge := 10 * time.Minute

	fresh := testEvent("fresh", now.UnixMilli()-time.Minute.Milliseconds())
	stale := testEvent("stale", now.UnixMilli()-11*time.Minute.Milliseconds())
	future := testEvent("future", now.UnixMilli()+2*time.Minute.Milliseconds())
	unsupported := testEvent("v2", now.UnixMilli())
	unsupported.SchemaVersion = 2
	delivered := testEvent("done", now.UnixMilli())
	delivered.DeliveredAt = now.UnixMilli()

	// A wrong schema version outranks staleness.
	oldUnsupported := testEvent("old-v2", now.UnixMilli()-time.Hour.Milliseconds())
	oldUnsupported.SchemaVersion = 2

	p := FilterForInjection(
		[]Event{fresh, stale, future, unsupported, delivered, oldUnsupported},
		now, maxAge, SchemaVersion,
	)

	if len(p.Pending) != 2 {
		t.Fatalf("expected 2 pending (fresh, future), got %d", len(p.Pending))
	}
	if p.Pending[0].RunID != "fresh" || p.Pending[1].RunID != "future" {
		t.Errorf("unexpected pending set: %+v", p.Pending)
	}
	if len(p.Stale) != 1 || p.Stale[0].RunID != "stale" {
		t.Errorf("unexpected stale set: %+v", p.Stale)
	}
	if len(p.Unsupported) != 2 {
		t.Errorf("expected 2 unsupported, got %d", len(p.Unsupported))
	}
}

func TestAcknowledge_MarkIsMonotonic(t *testing.T) {
	state := &State{}
	Append(state, testEvent("run-1", 100))

	already := testEvent("run-2", 100)
	already.DeliveredAt = 500
	already.DeliveredRunID = "turn-old"
	Append(state, already)

	Acknowledge(state, []string{"run-1", "run-2"}, 900, "turn-new", AckMark)

	if got := state.Events[0].DeliveredAt; got != 900 {
		t.Errorf("run-1 deliveredAt: expected 900, got %d", got)
	}
	if got := state.Events[1].DeliveredAt; got != 500 {
		t.Errorf("run-2 must keep its first delivery marker, got %d", got)
	}
	if got := state.Events[1].DeliveredRunID; got != "turn-old" {
		t.Errorf("run-2 must keep its first delivery run, got %q", got)
	}
}

func TestAcknowledge_ClearRemovesOnlyIncluded(t *testing.T) {
	state := &State{}
	Append(state, testEvent("run-1", 100))
	Append(state, testEvent("run-2", 200))
	Append(state, testEvent("run-3", 300))

	Acknowledge(state, []string{"run-1", "run-3"}, 900, "turn-1", AckClear)

	if len(state.Events) != 1 || state.Events[0].RunID != "run-2" {
		t.Errorf("expected only run-2 to survive, got %+v", state.Events)
	}
}

func TestPruneRetention_NeverRemovesPending(t *testing.T) {
	now := time.UnixMilli(1738737600000)

	ancient := testEvent("ancient", 0)
	oldDelivered := testEvent("old-done", 0)
	oldDelivered.DeliveredAt = now.UnixMilli() - 40*24*time.Hour.Milliseconds()
	recentDelivered := testEvent("recent-done", 0)
	recentDelivered.DeliveredAt = now.UnixMilli() - time.Hour.Milliseconds()

	kept, pruned := PruneRetention([]Event{ancient, oldDelivered, recentDelivered}, now, 30)

	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}
	if len(kept) != 2 {
		t.Fatalf("expected 2 kept, got %d", len(kept))
	}
	for _, ev := range kept {
		if ev.RunID == "old-done" {
			t.Error("old delivered event should have been pruned")
		}
	}
}

func TestPruneRetention_ZeroDaysNeverPrunes(t *testing.T) {
	now := time.UnixMilli(1738737600000)
	ev := testEvent("done", 0)
	ev.DeliveredAt = 1

	kept, pruned := PruneRetention([]Event{ev}, now, 0)
	if pruned != 0 || len(kept) != 1 {
		t.Errorf("retention 0 must keep everything, kept=%d pruned=%d", len(kept), pruned)
	}
}

func TestParseAckMode(t *testing.T) {
	if mode, err := ParseAckMode("mark"); err != nil || mode != AckMark {
		t.Errorf("mark: got %v, %v", mode, err)
	}
	if mode, err := ParseAckMode("clear"); err != nil || mode != AckClear {
		t.Errorf("clear: got %v, %v", mode, err)
	}
	if _, err := ParseAckMode("purge"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
