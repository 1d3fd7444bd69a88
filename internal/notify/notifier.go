package notify

import (
	"context"
	"encoding/json"
	"time"
)

// Notifier delivers a finished report. Implementations do not retry.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Message is the JSON payload published to message brokers.
type Message struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

func encodeMessage(subject, body string, now time.Time) ([]byte, error) {
	return json.Marshal(Message{Subject: subject, Body: body, SentAt: now.UTC()})
}
