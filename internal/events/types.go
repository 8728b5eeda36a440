package events

import "time"

// InboundMessageV1 is an already-authenticated, already-deframed chat message
// as placed on the inbound queue by the transport webhook.
type InboundMessageV1 struct {
	EventID    string    `json:"event_id"`
	Sender     string    `json:"sender"`
	MessageID  string    `json:"message_id"`
	Body       string    `json:"body"`
	Channel    string    `json:"channel,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundReplyV1 is the reply the transport should deliver to Sender.
type OutboundReplyV1 struct {
	EventID   string    `json:"event_id"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	InReplyTo string    `json:"in_reply_to,omitempty"`
	Action    string    `json:"action,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	Score     float64   `json:"score"`
	LeadID    string    `json:"lead_id,omitempty"`
	Fallback  bool      `json:"fallback,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}
