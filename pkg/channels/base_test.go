package channels

import (
	"context"
	"testing"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
)

func TestIsAllowed_EmptyListAllowsEveryone(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(), nil)
	if !c.IsAllowed("anyone") {
		t.Error("empty allow list must allow everyone")
	}
}

func TestIsAllowed_PlainEntries(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(), []string{"12345", "@alice"})

	if !c.IsAllowed("12345") {
		t.Error("listed id must be allowed")
	}
	if !c.IsAllowed("alice") {
		t.Error("@-prefixed entry must match the bare name")
	}
	if c.IsAllowed("99999") {
		t.Error("unlisted id must be refused")
	}
}

func TestIsAllowed_CompoundSenderID(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(), []string{"12345"})

	if !c.IsAllowed("12345|alice") {
		t.Error("compound id|username must match on the id side")
	}

	c = NewBaseChannel("test", bus.NewMessageBus(), []string{"alice"})
	if !c.IsAllowed("12345|alice") {
		t.Error("compound id|username must match on the username side")
	}
}

func TestIsAllowed_CompoundAllowEntry(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(), []string{"12345|alice"})

	if !c.IsAllowed("12345") {
		t.Error("bare id must match a compound allow entry")
	}
	if !c.IsAllowed("alice") {
		t.Error("bare username must match a compound allow entry")
	}
	if c.IsAllowed("99999") {
		t.Error("unrelated id must be refused")
	}
}

func TestHandleMessage_RefusedSenderPublishesNothing(t *testing.T) {
	b := bus.NewMessageBus()
	c := NewBaseChannel("test", b, []string{"allowed-only"})

	c.HandleMessage("m1", "stranger", "chat-1", "hello", "agent:test:chat-1", nil)
	c.HandleMessage("m2", "allowed-only", "chat-1", "hi", "agent:test:chat-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected one message")
	}
	if msg.SenderID != "allowed-only" || msg.Content != "hi" {
		t.Errorf("wrong message passed the gate: %+v", msg)
	}
}
