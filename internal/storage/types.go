package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

const DefaultKeep = 1000

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file, no dependencies
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Keep bounds how many records per channel are retained. 0 means DefaultKeep.
	Keep int
	// RecordText keeps the message text on each record. Off by default.
	RecordText bool
}

// Outcome values of a DeliveryRecord.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// DeliveryRecord is one terminal delivery outcome.
type DeliveryRecord struct {
	At         time.Time `json:"at"`
	Channel    string    `json:"channel"`
	RequestID  string    `json:"request_id"`
	Outcome    string    `json:"outcome"`
	Kind       string    `json:"kind,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	MessageID  int64     `json:"message_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	// Text is set only with Config.RecordText and is truncated to MaxTextLen runes.
	Text string `json:"text,omitempty"`
}

const MaxTextLen = 256

// recordedText is what a store persists for text given the RecordText setting.
func recordedText(keep bool, s string) string {
	if !keep {
		return ""
	}
	return truncateText(s)
}

func truncateText(s string) string {
	r := []rune(s)
	if len(r) <= MaxTextLen {
		return s
	}
	return string(r[:MaxTextLen]) + "…"
}
