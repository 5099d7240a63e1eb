// Package turns schedules single agent turns on sessions and tracks
// dispatched task runs to completion. It is the TurnRunner collaborator the
// relay flow drives.
package turns

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/a2a/flow"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/providers"
	"github.com/tinyland-inc/relayclaw/pkg/sessions"
)

const baseSystemPrompt = "You are an agent session in a multi-session assistant. " +
	"Answer the incoming message directly and concisely."

// Runner runs provider-backed turns and remembers in-flight task runs so a
// relay flow can wait on them.
type Runner struct {
	store       *sessions.Store
	storePath   string
	provider    providers.Provider
	model       string
	maxTokens   int
	temperature *float64

	mu   sync.Mutex
	runs map[string]*run
}

type run struct {
	done   chan struct{}
	status flow.TurnStatus
}

func NewRunner(store *sessions.Store, storePath string, provider providers.Provider, model string, maxTokens int, temperature *float64) *Runner {
	return &Runner{
		store:       store,
		storePath:   storePath,
		provider:    provider,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		runs:        make(map[string]*run),
	}
}

// Dispatch starts a task run on a session in the background. The result is
// persisted as the session's latest reply and the run becomes waitable under
// runID.
func (r *Runner) Dispatch(ctx context.Context, sessionKey, runID, message string) {
	rn := &run{done: make(chan struct{})}
	r.mu.Lock()
	r.runs[runID] = rn
	r.mu.Unlock()

	go func() {
		defer close(rn.done)
		_, err := r.RunTurn(ctx, flow.TurnRequest{
			SessionKey: sessionKey,
			Message:    message,
		})
		if err != nil {
			rn.status = flow.TurnFailed
			logger.ErrorCF("turns", "Dispatched run failed", map[string]any{
				"run_id":  runID,
				"session": sessionKey,
				"error":   err.Error(),
			})
			return
		}
		rn.status = flow.TurnCompleted
	}()
}

// WaitForCompletion blocks until the run finishes or the timeout elapses.
func (r *Runner) WaitForCompletion(ctx context.Context, runID string, timeout time.Duration) (flow.TurnStatus, error) {
	r.mu.Lock()
	rn, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return flow.TurnFailed, fmt.Errorf("unknown run %q", runID)
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-rn.done:
		r.mu.Lock()
		delete(r.runs, runID)
		r.mu.Unlock()
		return rn.status, nil
	case <-t.C:
		r.reapWhenDone(runID, rn)
		return flow.TurnTimedOut, nil
	case <-ctx.Done():
		r.reapWhenDone(runID, rn)
		return flow.TurnTimedOut, ctx.Err()
	}
}

// reapWhenDone removes an abandoned run from the tracking map once its
// goroutine finishes, so timed-out dispatches do not accumulate.
func (r *Runner) reapWhenDone(runID string, rn *run) {
	go func() {
		<-rn.done
		r.mu.Lock()
		delete(r.runs, runID)
		r.mu.Unlock()
	}()
}

// ReadLatestReply returns the session's most recently persisted reply text.
func (r *Runner) ReadLatestReply(ctx context.Context, sessionKey string) (string, error) {
	entry, _, err := r.store.Get(r.storePath, sessionKey)
	if err != nil {
		return "", err
	}
	return entry.LastReply, nil
}

// RunTurn executes one provider chat turn on a session and persists the
// reply as the session's latest.
func (r *Runner) RunTurn(ctx context.Context, req flow.TurnRequest) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	system := baseSystemPrompt
	if req.ExtraSystemPrompt != "" {
		system += "\n\n" + req.ExtraSystemPrompt
	}

	messages := []providers.Message{{Role: "system", Content: system}}

	// Seed the prior exchange so consecutive relay turns on the same
	// session stay coherent without a full transcript store.
	entry, _, err := r.store.Get(r.storePath, req.SessionKey)
	if err == nil && entry.LastReply != "" {
		messages = append(messages, providers.Message{Role: "assistant", Content: entry.LastReply})
	}
	messages = append(messages, providers.Message{Role: "user", Content: req.Message})

	options := map[string]any{"max_tokens": r.maxTokens}
	if r.temperature != nil {
		options["temperature"] = *r.temperature
	}

	resp, err := r.provider.Chat(ctx, messages, r.model, options)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Content)
	if reply != "" {
		if err := r.store.AtomicUpdate(ctx, r.storePath, req.SessionKey, func(e *sessions.Entry) error {
			e.LastReply = reply
			return nil
		}); err != nil {
			logger.WarnCF("turns", "Persisting latest reply failed", map[string]any{
				"session": req.SessionKey,
				"error":   err.Error(),
			})
		}
	}
	return reply, nil
}
