package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tender-alerts/internal/models"
)

// PublishedSince returns tender snapshots published after the given time,
// oldest first.
func (s *Store) PublishedSince(ctx context.Context, since time.Time) ([]models.Tender, error) {
	var tenders []models.Tender

	_, err := s.sess.
		Select("*").
		From("tenders").
		Where("published_at > ?", since).
		OrderBy("published_at").
		LoadContext(ctx, &tenders)

	if err != nil {
		s.logger.Error("failed to get published tenders",
			zap.Time("since", since),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get published tenders: %w", err)
	}

	return tenders, nil
}
