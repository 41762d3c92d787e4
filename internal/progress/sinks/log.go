package sinks

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/review-harvester/internal/progress"
)

// LogSink mirrors the event stream into debug logs, with only the fields
// that matter for each stage.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging under the "events" name.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("events")}
}

// Consume logs the batch. It never fails.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	if !s.logger.Core().Enabled(zapcore.DebugLevel) {
		return nil
	}
	for _, evt := range batch {
		s.logger.Debug(string(evt.Stage), eventFields(evt)...)
	}
	return nil
}

func eventFields(evt progress.Event) []zap.Field {
	fields := []zap.Field{zap.Stringer("run_id", uuid.UUID(evt.RunID))}
	switch {
	case evt.Stage == progress.StagePageDone:
		fields = append(fields,
			zap.String("hotel", evt.Hotel),
			zap.String("url", evt.URL),
			zap.String("status_class", string(evt.StatusClass)),
			zap.Int64("bytes", evt.Bytes),
			zap.Int64("records", evt.Records),
		)
	case evt.Stage == progress.StageTargetStart:
		fields = append(fields, zap.String("city", evt.City), zap.String("hotel", evt.Hotel))
	case evt.Stage.IsTargetEnd():
		fields = append(fields,
			zap.String("city", evt.City),
			zap.String("hotel", evt.Hotel),
			zap.Int64("records", evt.Records),
			zap.Int64("pages", evt.Pages),
		)
	}
	if evt.Dur > 0 {
		fields = append(fields, zap.Duration("dur", evt.Dur))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	return fields
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}
