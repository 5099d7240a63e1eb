package bus

// InboundMessage is a message arriving from a chat platform, already mapped
// to the session that owns the conversation.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	MessageID  string            `json:"message_id,omitempty"`
	SessionKey string            `json:"session_key"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a message to deliver on a chat platform. Announce
// deliveries carry an idempotency key so a retried publish cannot double
// sends on channels that honor client tokens.
type OutboundMessage struct {
	Channel        string `json:"channel"`
	ChatID         string `json:"chat_id"`
	AccountID      string `json:"account_id,omitempty"`
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}
