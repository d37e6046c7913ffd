// Package events publishes notifications after a plan or tip has been
// generated and committed, for downstream consumers such as mobile push or
// analytics. Publishing is strictly post-commit and best-effort: a publish
// failure is logged and never unwinds a completed request.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"FinMitra/pkg/logger"
)

// Event kinds.
const (
	KindPlanGenerated = "plan.generated"
	KindTipGenerated  = "tip.generated"
)

// Event describes one completed generation.
type Event struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	SessionKey string `json:"session_key,omitempty"`
	Model      string `json:"model,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// NewEvent stamps an event with an ID and timestamp.
func NewEvent(kind, sessionKey, model string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		SessionKey: sessionKey,
		Model:      model,
		CreatedAt:  time.Now().Unix(),
	}
}

// Publisher delivers events to some downstream channel.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher writes events to the structured log. It is the default when
// no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: logger.Named("events")}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.log.Info("event published",
		slog.String("event_id", event.ID),
		slog.String("kind", event.Kind),
		slog.String("session_key", event.SessionKey),
	)
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error {
	return nil
}
