// Package flow drives one dispatched task's result from the session that
// produced it to the session that asked for it: wait for the reply, an
// optional bounded negotiation exchange, a final announce turn, one
// best-effort channel delivery, and a durable inbox record.
//
// A flow run is fire-and-forget from the dispatcher's point of view. Nothing
// in here propagates an error back to the caller; every failure is logged
// and the run settles into a terminal state.
package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/relayclaw/pkg/a2a/display"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/inbox"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/metrics"
	"github.com/tinyland-inc/relayclaw/pkg/a2a/policy"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/sessions"
)

// Skip tokens. A turn replying with exactly one of these (after trimming)
// is declining to produce output for that step.
const (
	// SkipToken ends the negotiation exchange early.
	SkipToken = "A2A_SKIP"
	// AnnounceSkipToken suppresses the public announcement.
	AnnounceSkipToken = "A2A_ANNOUNCE_SKIP"
)

// announceWaitCap bounds how long a flow waits on the target's reply no
// matter what timeout is configured.
const announceWaitCap = 60 * time.Second

// waitGrace is added on top of the capped wait so a turn finishing right at
// the limit still counts.
const waitGrace = 5 * time.Second

// TurnStatus is the terminal state reported for a waited-on run.
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
	TurnTimedOut  TurnStatus = "timed_out"
)

// TurnRequest describes one agent turn to run on a session.
type TurnRequest struct {
	SessionKey        string
	Message           string
	ExtraSystemPrompt string
	Timeout           time.Duration
}

// TurnRunner is the external collaborator that schedules agent turns.
type TurnRunner interface {
	WaitForCompletion(ctx context.Context, runID string, timeout time.Duration) (TurnStatus, error)
	ReadLatestReply(ctx context.Context, sessionKey string) (string, error)
	RunTurn(ctx context.Context, req TurnRequest) (string, error)
}

// AnnounceTarget identifies where a human-visible announcement goes. Absent
// (nil) means the announcement is inbox-only.
type AnnounceTarget struct {
	Channel   string
	To        string
	AccountID string
}

// Delivery is one outbound announcement send.
type Delivery struct {
	Channel        string
	To             string
	AccountID      string
	Message        string
	IdempotencyKey string
}

// Messenger is the external messaging-channel collaborator.
type Messenger interface {
	ResolveAnnounceTarget(ctx context.Context, sessionKey, displayKey string) (*AnnounceTarget, error)
	Deliver(ctx context.Context, d Delivery) error
}

// Options is the relay configuration in typed form, parsed once at startup.
type Options struct {
	Policy          policy.Policy
	Naming          display.NamingMode
	Ack             inbox.AckMode
	RetentionDays   int
	MaxPingPong     int
	PingPongDelay   time.Duration
	AnnounceTimeout time.Duration
	MaxEvents       int
	MaxChars        int
	MaxAge          time.Duration
	StorePath       string
}

// DefaultOptions returns the built-in defaults for everything except the
// store path, which has no sensible default.
func DefaultOptions(storePath string) Options {
	return Options{
		Naming:          display.NamingPreferred,
		Ack:             inbox.AckMark,
		MaxPingPong:     0,
		PingPongDelay:   time.Second,
		AnnounceTimeout: announceWaitCap,
		MaxEvents:       inbox.DefaultMaxEvents,
		MaxChars:        inbox.DefaultMaxChars,
		MaxAge:          10 * time.Minute,
		StorePath:       storePath,
	}
}

// Task is one dispatched agent-to-agent request being relayed to completion.
type Task struct {
	RunID               string
	RequesterSessionKey string
	TargetSessionKey    string
	TaskText            string
	// Reply is the already-known result for synchronous completions; when
	// empty the flow waits on the target's run.
	Reply string
}

// State names a flow run's position for logging and tests.
type State string

const (
	StateWaitingForReply State = "waiting_for_reply"
	StateNegotiating     State = "negotiating"
	StateAnnouncing      State = "announcing"
	StateDirectToInbox   State = "direct_to_inbox"
	StateDone            State = "done"
)

// Outcome summarizes where a finished run ended up.
type Outcome struct {
	State     State
	Announced bool
	Recorded  bool
}

// Orchestrator runs relay flows. Many runs may be in flight concurrently;
// the session store's per-path serialization is the only shared state.
type Orchestrator struct {
	store     *sessions.Store
	runner    TurnRunner
	messenger Messenger
	collector *metrics.Collector
	opts      Options

	// warn, when set, surfaces operator-visible warnings (degraded
	// labeling) into the owning conversation.
	warn func(sessionKey, message string)
}

func NewOrchestrator(store *sessions.Store, runner TurnRunner, messenger Messenger, collector *metrics.Collector, opts Options) *Orchestrator {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Orchestrator{
		store:     store,
		runner:    runner,
		messenger: messenger,
		collector: collector,
		opts:      opts,
	}
}

// SetWarnFunc registers the sink for session-visible warnings.
func (o *Orchestrator) SetWarnFunc(fn func(sessionKey, message string)) {
	o.warn = fn
}

// Run drives one task to a terminal state. It never returns an error and
// never panics into the dispatcher; unexpected failures are logged with the
// run identifiers and the flow ends cleanly.
func (o *Orchestrator) Run(ctx context.Context, task Task) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("a2a", "Relay flow panicked", map[string]any{
				"run_id":    task.RunID,
				"requester": task.RequesterSessionKey,
				"target":    task.TargetSessionKey,
				"panic":     fmt.Sprint(r),
			})
			outcome.State = StateDone
		}
	}()

	outcome.State = StateWaitingForReply
	reply := strings.TrimSpace(task.Reply)

	if reply == "" {
		reply = o.waitForReply(ctx, task)
		if reply == "" {
			// No reply ever arrived. Not an error: the flow just has
			// nothing to relay.
			logger.InfoCF("a2a", "No reply obtained, relay ends", map[string]any{
				"run_id": task.RunID,
				"target": task.TargetSessionKey,
			})
			outcome.State = StateDone
			return outcome
		}
	}

	if o.opts.Policy.Delivery == policy.DeliveryInbox {
		outcome.State = StateDirectToInbox
		res := o.Record(ctx, RecordRequest{
			RecipientSessionKey: task.RequesterSessionKey,
			SourceSessionKey:    task.TargetSessionKey,
			RunID:               task.RunID,
			ReplyText:           reply,
		})
		outcome.Recorded = res.Written
		outcome.State = StateDone
		return outcome
	}

	latest := reply
	if o.shouldNegotiate(task) {
		outcome.State = StateNegotiating
		latest = o.negotiate(ctx, task, reply)
	}

	outcome.State = StateAnnouncing
	announcement := o.announce(ctx, task, reply, latest)
	outcome.Announced = announcement != ""

	shown := announcement
	if shown == "" {
		shown = latest
	}
	if strings.TrimSpace(shown) != "" {
		res := o.Record(ctx, RecordRequest{
			RecipientSessionKey: task.RequesterSessionKey,
			SourceSessionKey:    task.TargetSessionKey,
			RunID:               task.RunID,
			ReplyText:           shown,
		})
		outcome.Recorded = res.Written
	}

	outcome.State = StateDone
	return outcome
}

func (o *Orchestrator) waitForReply(ctx context.Context, task Task) string {
	timeout := o.opts.AnnounceTimeout
	if timeout <= 0 || timeout > announceWaitCap {
		timeout = announceWaitCap
	}
	timeout += waitGrace

	status, err := o.runner.WaitForCompletion(ctx, task.RunID, timeout)
	if err != nil || status != TurnCompleted {
		logger.DebugCF("a2a", "Wait for completion did not finish", map[string]any{
			"run_id": task.RunID,
			"status": string(status),
			"error":  errString(err),
		})
		return ""
	}

	text, err := o.runner.ReadLatestReply(ctx, task.TargetSessionKey)
	if err != nil {
		logger.WarnCF("a2a", "Reading latest reply failed", map[string]any{
			"run_id": task.RunID,
			"target": task.TargetSessionKey,
			"error":  err.Error(),
		})
		return ""
	}
	return strings.TrimSpace(text)
}

func (o *Orchestrator) shouldNegotiate(task Task) bool {
	return o.opts.MaxPingPong > 0 &&
		task.RequesterSessionKey != "" &&
		task.RequesterSessionKey != task.TargetSessionKey
}

// negotiate runs the bounded ping-pong exchange: the requester session
// reacts to the target's output, the target reacts to the requester's, for
// at most MaxPingPong rounds. An empty reply or the skip token ends the
// exchange immediately. Returns the latest target-side text.
func (o *Orchestrator) negotiate(ctx context.Context, task Task, firstReply string) string {
	latest := firstReply

	negotiationPrompt := fmt.Sprintf(
		"You are in a brief follow-up exchange about a task another agent completed for you. "+
			"Reply with anything that still needs relaying, or reply exactly %s if nothing further is needed.",
		SkipToken)

	for turn := 0; turn < o.opts.MaxPingPong; turn++ {
		requesterOut, err := o.runner.RunTurn(ctx, TurnRequest{
			SessionKey:        task.RequesterSessionKey,
			Message:           latest,
			ExtraSystemPrompt: negotiationPrompt,
			Timeout:           o.opts.AnnounceTimeout,
		})
		if err != nil {
			logger.WarnCF("a2a", "Negotiation turn failed", map[string]any{
				"run_id":  task.RunID,
				"session": task.RequesterSessionKey,
				"turn":    turn,
				"error":   err.Error(),
			})
			break
		}
		if isSkip(requesterOut, SkipToken) {
			break
		}

		if !o.pause(ctx) {
			break
		}

		targetOut, err := o.runner.RunTurn(ctx, TurnRequest{
			SessionKey:        task.TargetSessionKey,
			Message:           strings.TrimSpace(requesterOut),
			ExtraSystemPrompt: negotiationPrompt,
			Timeout:           o.opts.AnnounceTimeout,
		})
		if err != nil {
			logger.WarnCF("a2a", "Negotiation turn failed", map[string]any{
				"run_id":  task.RunID,
				"session": task.TargetSessionKey,
				"turn":    turn,
				"error":   err.Error(),
			})
			break
		}
		if isSkip(targetOut, SkipToken) {
			break
		}
		latest = strings.TrimSpace(targetOut)

		if !o.pause(ctx) {
			break
		}
	}

	return latest
}

// pause waits the configured rate-limit delay without blocking other flows.
func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.opts.PingPongDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(o.opts.PingPongDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// announce runs the concluding turn on the target session and, when it
// produces something public, makes exactly one best-effort channel delivery.
// Returns the announcement text, or "" when the announcement was skipped or
// the turn failed.
func (o *Orchestrator) announce(ctx context.Context, task Task, firstReply, latest string) string {
	targetEntry, _, err := o.store.Get(o.opts.StorePath, task.TargetSessionKey)
	if err != nil {
		logger.WarnCF("a2a", "Loading target session for announce failed", map[string]any{
			"run_id": task.RunID,
			"target": task.TargetSessionKey,
			"error":  err.Error(),
		})
	}
	res := display.Resolve(task.TargetSessionKey, "", targetEntry, o.opts.Naming)

	var announceTarget *AnnounceTarget
	if o.messenger != nil {
		announceTarget, err = o.messenger.ResolveAnnounceTarget(ctx, task.TargetSessionKey, res.Key)
		if err != nil {
			logger.WarnCF("a2a", "Resolving announce target failed", map[string]any{
				"run_id": task.RunID,
				"target": task.TargetSessionKey,
				"error":  err.Error(),
			})
			announceTarget = nil
		}
	}

	systemPrompt := fmt.Sprintf(
		"This conversation is concluding. You completed a task for another agent session.\n"+
			"Original task: %s\n"+
			"Your first reply: %s\n"+
			"Your latest reply: %s\n"+
			"Compose a short public announcement of the result. "+
			"Reply exactly %s to say nothing publicly.",
		task.TaskText, firstReply, latest, AnnounceSkipToken)

	text, err := o.runner.RunTurn(ctx, TurnRequest{
		SessionKey:        task.TargetSessionKey,
		Message:           "Summarize the completed task for the people following this conversation.",
		ExtraSystemPrompt: systemPrompt,
		Timeout:           o.opts.AnnounceTimeout,
	})
	if err != nil {
		logger.WarnCF("a2a", "Announce turn failed", map[string]any{
			"run_id": task.RunID,
			"target": task.TargetSessionKey,
			"error":  err.Error(),
		})
		return ""
	}
	if isSkip(text, AnnounceSkipToken) {
		return ""
	}
	announcement := strings.TrimSpace(text)

	if announceTarget != nil && o.messenger != nil {
		delivery := Delivery{
			Channel:        announceTarget.Channel,
			To:             announceTarget.To,
			AccountID:      announceTarget.AccountID,
			Message:        announcement,
			IdempotencyKey: uuid.New().String(),
		}
		if err := o.messenger.Deliver(ctx, delivery); err != nil {
			// Single best-effort attempt; the inbox record below is the
			// durable fallback.
			o.collector.Incr(metrics.CounterAnnounceFailed, announceTarget.Channel)
			logger.ErrorCF("a2a", "Announce delivery failed", map[string]any{
				"run_id":  task.RunID,
				"channel": announceTarget.Channel,
				"to":      announceTarget.To,
				"error":   err.Error(),
			})
		} else {
			o.collector.Incr(metrics.CounterAnnounceDelivered, announceTarget.Channel)
		}
	}

	return announcement
}

// isSkip reports whether a turn's output is empty or exactly the given skip
// token after trimming.
func isSkip(text, token string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == "" || trimmed == token
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
