// Package watcher polls for newly published tenders and feeds each one to
// the immediate notification pipeline exactly once.
package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tender-alerts/internal/models"
)

// TenderSource provides tenders published after a point in time.
type TenderSource interface {
	PublishedSince(ctx context.Context, since time.Time) ([]models.Tender, error)
}

// ImmediateRunner is the processor entry point for one new tender.
type ImmediateRunner interface {
	RunImmediate(ctx context.Context, tender *models.Tender) (*models.RunReport, error)
}

// SeenMarker remembers which tenders already went through the immediate
// pipeline, so a poll overlap never notifies twice.
type SeenMarker interface {
	IsTenderSeen(ctx context.Context, tenderID string) (bool, error)
	MarkTenderSeen(ctx context.Context, tenderID string) error
}

type Watcher struct {
	source   TenderSource
	runner   ImmediateRunner
	seen     SeenMarker
	interval time.Duration
	logger   *zap.Logger

	lastPoll time.Time
}

func New(
	source TenderSource,
	runner ImmediateRunner,
	seen SeenMarker,
	interval time.Duration,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		source:   source,
		runner:   runner,
		seen:     seen,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks, polling on the configured interval until the context is
// canceled. Run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("tender watcher started", zap.Duration("interval", w.interval))

	// Overlap the first window one interval back so tenders published just
	// before startup are not lost.
	w.lastPoll = time.Now().Add(-w.interval)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("tender watcher stopped")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	since := w.lastPoll
	w.lastPoll = time.Now()

	pollCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	tenders, err := w.source.PublishedSince(pollCtx, since)
	if err != nil {
		w.logger.Error("failed to fetch new tenders", zap.Error(err))
		return
	}

	if len(tenders) == 0 {
		w.logger.Debug("no new tenders")
		return
	}

	w.logger.Info("processing new tenders", zap.Int("count", len(tenders)))

	for i := range tenders {
		tender := &tenders[i]

		seen, err := w.seen.IsTenderSeen(pollCtx, tender.ID)
		if err != nil {
			w.logger.Error("failed to check seen marker",
				zap.String("tender_id", tender.ID),
				zap.Error(err),
			)
			continue
		}
		if seen {
			continue
		}

		report, err := w.runner.RunImmediate(pollCtx, tender)
		if err != nil {
			w.logger.Error("immediate run failed",
				zap.String("tender_id", tender.ID),
				zap.Error(err),
			)
			continue
		}

		if err := w.seen.MarkTenderSeen(pollCtx, tender.ID); err != nil {
			w.logger.Error("failed to mark tender as seen",
				zap.String("tender_id", tender.ID),
				zap.Error(err),
			)
		}

		w.logger.Debug("immediate run finished",
			zap.String("tender_id", tender.ID),
			zap.Int("emails_sent", report.EmailsSent),
			zap.Int("errors", len(report.Errors)),
		)
	}
}
