package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tender-alerts/internal/models"
)

const alertSelect = `
	SELECT ac.*, o.email AS owner_email, o.premium AS owner_premium
	FROM alert_configs ac
	JOIN owners o ON o.id = ac.owner_id
	WHERE ac.active AND ac.email_enabled
`

// ActiveImmediate returns active configurations with immediate frequency,
// joined with the owner's delivery identity.
func (s *Store) ActiveImmediate(ctx context.Context) ([]models.AlertConfig, error) {
	var configs []models.AlertConfig

	query := alertSelect + ` AND ac.frequency = 'immediate'`

	_, err := s.sess.
		SelectBySql(query).
		LoadContext(ctx, &configs)

	if err != nil {
		s.logger.Error("failed to get immediate configs", zap.Error(err))
		return nil, fmt.Errorf("get immediate configs: %w", err)
	}

	return configs, nil
}

// ActiveDaily returns active daily configurations whose time-of-day bucket
// equals the given "HH:MM" value.
func (s *Store) ActiveDaily(ctx context.Context, bucket string) ([]models.AlertConfig, error) {
	var configs []models.AlertConfig

	query := alertSelect + ` AND ac.frequency = 'daily' AND ac.daily_time = ?`

	_, err := s.sess.
		SelectBySql(query, bucket).
		LoadContext(ctx, &configs)

	if err != nil {
		s.logger.Error("failed to get daily configs",
			zap.String("bucket", bucket),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get daily configs: %w", err)
	}

	return configs, nil
}

// ActiveWeekly returns active weekly configurations that are due: never
// sent, or last sent at least seven days before asOf.
func (s *Store) ActiveWeekly(ctx context.Context, asOf time.Time) ([]models.AlertConfig, error) {
	var configs []models.AlertConfig

	query := alertSelect + `
		AND ac.frequency = 'weekly'
		AND (ac.last_sent_at IS NULL OR ac.last_sent_at <= ? - INTERVAL '7 days')`

	_, err := s.sess.
		SelectBySql(query, asOf).
		LoadContext(ctx, &configs)

	if err != nil {
		s.logger.Error("failed to get weekly configs", zap.Error(err))
		return nil, fmt.Errorf("get weekly configs: %w", err)
	}

	return configs, nil
}

// IncrementMatchStats bumps the match counter of one configuration and
// records the tender that matched.
func (s *Store) IncrementMatchStats(ctx context.Context, configID int64, tenderID string) error {
	query := `
		UPDATE alert_configs
		SET total_matches          = total_matches + 1,
		    last_matched_tender_id = ?,
		    last_matched_at        = NOW()
		WHERE id = ?
	`

	_, err := s.sess.UpdateBySql(query, tenderID, configID).ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to increment match stats",
			zap.Int64("config_id", configID),
			zap.String("tender_id", tenderID),
			zap.Error(err),
		)
		return fmt.Errorf("increment match stats: %w", err)
	}

	return nil
}

// IncrementEmailSent bumps the delivery counter and advances the last-sent
// timestamp after a confirmed send.
func (s *Store) IncrementEmailSent(ctx context.Context, configID int64, sentAt time.Time) error {
	query := `
		UPDATE alert_configs
		SET emails_sent  = emails_sent + 1,
		    last_sent_at = ?
		WHERE id = ?
	`

	_, err := s.sess.UpdateBySql(query, sentAt, configID).ExecContext(ctx)
	if err != nil {
		s.logger.Error("failed to increment emails sent",
			zap.Int64("config_id", configID),
			zap.Error(err),
		)
		return fmt.Errorf("increment emails sent: %w", err)
	}

	return nil
}

// DeleteInactiveConfigs removes configurations that have been inactive since
// before the threshold. Returns the number of deleted rows.
func (s *Store) DeleteInactiveConfigs(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.sess.
		DeleteFrom("alert_configs").
		Where("NOT active AND updated_at < ?", olderThan).
		ExecContext(ctx)

	if err != nil {
		s.logger.Error("failed to delete inactive configs",
			zap.Time("older_than", olderThan),
			zap.Error(err),
		)
		return 0, fmt.Errorf("delete inactive configs: %w", err)
	}

	deleted, _ := result.RowsAffected()

	if deleted > 0 {
		s.logger.Info("inactive configs deleted",
			zap.Int64("count", deleted),
			zap.Time("older_than", olderThan),
		)
	}

	return deleted, nil
}
