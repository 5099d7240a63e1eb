package channels

import (
	"context"
	"fmt"

	"github.com/tinyland-inc/relayclaw/pkg/a2a/flow"
	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/sessions"
)

// Announcer implements the flow.Messenger contract over the channel
// manager: announce targets come from the target session's persisted
// conversation binding, deliveries go out synchronously through the bound
// channel so the flow sees the outcome of its single attempt.
type Announcer struct {
	store     *sessions.Store
	storePath string
	manager   *Manager
}

func NewAnnouncer(store *sessions.Store, storePath string, manager *Manager) *Announcer {
	return &Announcer{
		store:     store,
		storePath: storePath,
		manager:   manager,
	}
}

// ResolveAnnounceTarget reads the channel binding off the session record.
// Sessions with no live conversation (or a channel this gateway has no
// adapter for) get a nil target: the announcement stays inbox-only. A
// constructed adapter is enough; one-shot invocations deliver without the
// receive side ever starting.
func (a *Announcer) ResolveAnnounceTarget(ctx context.Context, sessionKey, displayKey string) (*flow.AnnounceTarget, error) {
	entry, ok, err := a.store.Get(a.storePath, sessionKey)
	if err != nil {
		return nil, err
	}
	if !ok || entry.Channel == "" || entry.To == "" {
		return nil, nil
	}
	if _, managed := a.manager.Get(entry.Channel); !managed {
		return nil, nil
	}
	return &flow.AnnounceTarget{
		Channel:   entry.Channel,
		To:        entry.To,
		AccountID: entry.AccountID,
	}, nil
}

// Deliver makes the one best-effort send for an announcement.
func (a *Announcer) Deliver(ctx context.Context, d flow.Delivery) error {
	ch, ok := a.manager.Get(d.Channel)
	if !ok {
		return fmt.Errorf("no channel %q", d.Channel)
	}
	return ch.Send(ctx, bus.OutboundMessage{
		Channel:        d.Channel,
		ChatID:         d.To,
		AccountID:      d.AccountID,
		Content:        d.Message,
		IdempotencyKey: d.IdempotencyKey,
	})
}
