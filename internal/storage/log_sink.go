package storage

import (
	"context"

	"go.uber.org/zap"

	"asinshort/pkg/models"
)

// LogSink implements engine.Sink by writing redirects to the log. It is used
// when no database is configured.
type LogSink struct {
	Log *zap.Logger
}

func (s *LogSink) Save(_ context.Context, batch []models.Redirect) error {
	for _, r := range batch {
		s.Log.Info("Redirect",
			zap.String("id", r.ID.String()),
			zap.String("tab", r.TabID),
			zap.String("asin", r.ASIN),
			zap.Stringer("shape", r.Shape),
			zap.String("from", r.From),
			zap.Time("at", r.At),
		)
	}
	return nil
}
