package channel

import "time"

// Event types published on the bus.
const (
	EventQueued   = "channel.queued"
	EventRejected = "channel.rejected"
	EventSent     = "channel.sent"
	EventFailed   = "channel.failed"
	EventStopped  = "channel.stopped"
)

// DeliveryEvent is the payload of every per-message event.
type DeliveryEvent struct {
	Channel    string    `json:"channel"`
	RequestID  string    `json:"request_id"`
	Text       string    `json:"text,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	MessageID  int64     `json:"message_id,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// StoppedEvent is published once when a worker exits.
type StoppedEvent struct {
	Channel string `json:"channel"`
	State   State  `json:"state"`
	Error   string `json:"error,omitempty"`
}
