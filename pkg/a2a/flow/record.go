package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/relayclaw/pkg/a2a/display"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/inbox"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/metrics"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/sessions"
)

// RecordRequest asks for one completed task's result to be written into a
// recipient session's inbox. RecipientSessionKey is the session that
// dispatched the task; SourceSessionKey is the session that produced the
// result.
type RecordRequest struct {
	RecipientSessionKey string
	SourceSessionKey    string
	SourceDisplayKey    string
	RunID               string
	ReplyText           string
}

// RecordResult reports whether the event was written. Written is false for
// empty payloads, policy denials, blocked unlabeled sources, duplicate run
// ids and persistence failures; none of those raise an error to the caller.
type RecordResult struct {
	Written bool
	EventID string
}

// Record appends a task result to the recipient's inbox, gated by policy and
// display resolution, as one atomic store update.
func (o *Orchestrator) Record(ctx context.Context, req RecordRequest) RecordResult {
	reply := strings.TrimSpace(req.ReplyText)
	if reply == "" {
		return RecordResult{}
	}

	if !o.opts.Policy.IsAllowed(req.RecipientSessionKey, req.SourceSessionKey) {
		o.collector.Incr(metrics.CounterPolicyDenied, req.RecipientSessionKey)
		logger.InfoCF("a2a", "Inbox write denied by policy", map[string]any{
			"recipient": req.RecipientSessionKey,
			"source":    req.SourceSessionKey,
			"run_id":    req.RunID,
		})
		return RecordResult{}
	}

	sourceEntry, _, err := o.store.Get(o.opts.StorePath, req.SourceSessionKey)
	if err != nil {
		logger.WarnCF("a2a", "Loading source session for display resolution failed", map[string]any{
			"source": req.SourceSessionKey,
			"error":  err.Error(),
		})
	}
	res := display.Resolve(req.SourceSessionKey, req.SourceDisplayKey, sourceEntry, o.opts.Naming)
	if res.Blocked {
		// An unlabeled spawned session is a labeling defect at the source,
		// not an ordinary denial. Block the write and get a human to look.
		o.collector.Incr(metrics.CounterUnlabeledBlocked, req.SourceSessionKey)
		logger.ErrorCF("a2a", "Blocking inbox write from unlabeled spawned session", map[string]any{
			"source":    req.SourceSessionKey,
			"recipient": req.RecipientSessionKey,
			"run_id":    req.RunID,
		})
		if o.warn != nil {
			o.warn(req.RecipientSessionKey,
				"A2A relay dropped a message from unlabeled spawned session "+req.SourceSessionKey+
					"; fix the session's labeling at the source.")
		}
		return RecordResult{}
	}
	if res.UsedFallback {
		o.collector.Incr(metrics.CounterDisplayFallback, req.SourceSessionKey)
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	displayKey := res.Key
	if displayKey == req.SourceSessionKey {
		// The raw identifier is the render-time fallback anyway; storing it
		// as a display key would freeze it in the event.
		displayKey = ""
	}

	event := inbox.Event{
		SchemaVersion:    inbox.SchemaVersion,
		CreatedAt:        time.Now().UnixMilli(),
		RunID:            runID,
		SourceSessionKey: req.SourceSessionKey,
		SourceDisplayKey: displayKey,
		ReplyText:        reply,
	}

	appended := false
	err = o.store.AtomicUpdate(ctx, o.opts.StorePath, req.RecipientSessionKey, func(entry *sessions.Entry) error {
		state, verr := inbox.Validate(entry.A2AInbox)
		if verr != nil {
			return verr
		}
		appended = inbox.Append(state, event)
		raw, merr := state.Marshal()
		if merr != nil {
			return merr
		}
		entry.A2AInbox = raw
		return nil
	})
	if err != nil {
		var verr *inbox.ValidationError
		if errors.As(err, &verr) {
			logger.ErrorCF("a2a", "Recipient inbox failed validation, write refused", map[string]any{
				"recipient": req.RecipientSessionKey,
				"field":     verr.Field,
				"reason":    verr.Reason,
			})
		} else {
			logger.ErrorCF("a2a", "Persisting inbox event failed", map[string]any{
				"recipient": req.RecipientSessionKey,
				"run_id":    runID,
				"error":     err.Error(),
			})
		}
		return RecordResult{}
	}

	if !appended {
		o.collector.Incr(metrics.CounterInboxDeduped, req.RecipientSessionKey)
		logger.DebugCF("a2a", "Duplicate run id, inbox append skipped", map[string]any{
			"recipient": req.RecipientSessionKey,
			"run_id":    runID,
		})
		return RecordResult{}
	}

	o.collector.Incr(metrics.CounterInboxAppended, req.RecipientSessionKey)
	return RecordResult{Written: true, EventID: runID}
}

// BeforeTurnHook is called by the host agent-turn pipeline at the start of
// every turn for a session. It renders the session's pending inbox events
// into a prepend-context block and acknowledges them in one atomic update.
// Returns "" when there is nothing to inject.
//
// If the acknowledge update fails the block is still returned (it is about
// to be shown to the model either way) and the events stay pending on disk,
// so the next turn sees them again. At-least-once visibility over
// exactly-once.
func (o *Orchestrator) BeforeTurnHook(ctx context.Context, sessionKey, turnRunID string) string {
	entry, ok, err := o.store.Get(o.opts.StorePath, sessionKey)
	if err != nil {
		logger.ErrorCF("a2a", "Loading session for inbox injection failed", map[string]any{
			"session": sessionKey,
			"error":   err.Error(),
		})
		return ""
	}
	if !ok || len(entry.A2AInbox) == 0 {
		return ""
	}

	state, err := inbox.Validate(entry.A2AInbox)
	if err != nil {
		var verr *inbox.ValidationError
		if errors.As(err, &verr) {
			logger.ErrorCF("a2a", "Stored inbox failed validation, skipping injection", map[string]any{
				"session": sessionKey,
				"field":   verr.Field,
				"reason":  verr.Reason,
			})
		}
		return ""
	}

	now := time.Now()
	part := inbox.FilterForInjection(state.Events, now, o.opts.MaxAge, inbox.SchemaVersion)
	for _, ev := range part.Stale {
		o.collector.Incr(metrics.CounterInboxStale, sessionKey)
		logger.InfoCF("a2a", "Skipping stale inbox event", map[string]any{
			"session":    sessionKey,
			"run_id":     ev.RunID,
			"created_at": ev.CreatedAt,
		})
	}
	for _, ev := range part.Unsupported {
		o.collector.Incr(metrics.CounterInboxUnsupported, sessionKey)
		logger.WarnCF("a2a", "Skipping inbox event with unsupported schema version", map[string]any{
			"session":        sessionKey,
			"run_id":         ev.RunID,
			"schema_version": ev.SchemaVersion,
		})
	}
	if len(part.Pending) == 0 {
		return ""
	}

	block := inbox.BuildPromptBlock(part.Pending, o.opts.MaxEvents, o.opts.MaxChars)
	if len(block.IncludedRunIDs) == 0 {
		return ""
	}

	if turnRunID == "" {
		turnRunID = uuid.New().String()
	}
	deliveredAt := now.UnixMilli()

	err = o.store.AtomicUpdate(ctx, o.opts.StorePath, sessionKey, func(entry *sessions.Entry) error {
		latest, verr := inbox.Validate(entry.A2AInbox)
		if verr != nil {
			return verr
		}
		inbox.Acknowledge(latest, block.IncludedRunIDs, deliveredAt, turnRunID, o.opts.Ack)
		latest.Events, _ = inbox.PruneRetention(latest.Events, now, o.opts.RetentionDays)
		raw, merr := latest.Marshal()
		if merr != nil {
			return merr
		}
		entry.A2AInbox = raw
		return nil
	})
	if err != nil {
		// Events stay pending on disk; this turn still gets the block.
		logger.ErrorCF("a2a", "Acknowledging inbox events failed, will redeliver", map[string]any{
			"session": sessionKey,
			"run_ids": block.IncludedRunIDs,
			"error":   err.Error(),
		})
	}

	return block.Text
}
