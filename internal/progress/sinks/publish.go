package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/review-harvester/internal/harvest"
	"github.com/JakeFAU/review-harvester/internal/progress"
)

// Notification is the message published when a target finishes.
type Notification struct {
	RunID      string    `json:"run_id"`
	City       string    `json:"city"`
	Hotel      string    `json:"hotel"`
	SeedURL    string    `json:"seed_url"`
	Status     string    `json:"status"`
	Records    int64     `json:"records"`
	Pages      int64     `json:"pages"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// PublishSink announces finished targets on a topic.
type PublishSink struct {
	publisher harvest.Publisher
	topic     string
}

// NewPublishSink returns a sink that publishes to topic.
func NewPublishSink(publisher harvest.Publisher, topic string) *PublishSink {
	return &PublishSink{publisher: publisher, topic: topic}
}

// Consume publishes one Notification per target-end event.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		if !evt.Stage.IsTargetEnd() {
			continue
		}
		msg := Notification{
			RunID:      evt.RunUUID().String(),
			City:       evt.City,
			Hotel:      evt.Hotel,
			SeedURL:    evt.URL,
			Status:     string(outcomeStatus(evt.Stage)),
			Records:    evt.Records,
			Pages:      evt.Pages,
			Error:      evt.Note,
			FinishedAt: evt.TS.UTC(),
		}
		if _, err := s.publisher.Publish(ctx, s.topic, msg); err != nil {
			return fmt.Errorf("publish %s/%s: %w", evt.City, evt.Hotel, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
