// Package processor runs the notification pipeline: fetch eligible
// configurations, match them against candidate tenders, render and dispatch
// mail, then persist stats for confirmed sends.
package processor

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"tender-alerts/internal/matcher"
	"tender-alerts/internal/models"
	"tender-alerts/internal/notify"
)

// Registry exposes the eligibility queries over saved alert configurations.
type Registry interface {
	ActiveImmediate(ctx context.Context) ([]models.AlertConfig, error)
	ActiveDaily(ctx context.Context, bucket string) ([]models.AlertConfig, error)
	ActiveWeekly(ctx context.Context, asOf time.Time) ([]models.AlertConfig, error)
}

// TenderSource provides read-only candidate tender snapshots.
type TenderSource interface {
	PublishedSince(ctx context.Context, since time.Time) ([]models.Tender, error)
}

// StatsStore persists per-configuration delivery statistics.
type StatsStore interface {
	IncrementMatchStats(ctx context.Context, configID int64, tenderID string) error
	IncrementEmailSent(ctx context.Context, configID int64, sentAt time.Time) error
	DeleteInactiveConfigs(ctx context.Context, olderThan time.Time) (int64, error)
}

// DispatchLimiter counts outbound sends in the current window. Exceeding the
// limit slows dispatch down; it never drops a notification.
type DispatchLimiter interface {
	RegisterSend(ctx context.Context) (int64, error)
}

type Options struct {
	DispatchDelay   time.Duration
	RunWarnDuration time.Duration
	RetentionDays   int
	MaxSendsPerMin  int64
}

// Processor wires registry, matching engine, renderer and transport into one
// pipeline shared by the immediate, daily and weekly run modes.
type Processor struct {
	registry Registry
	tenders  TenderSource
	stats    StatsStore
	engine   *matcher.Engine
	renderer *notify.Renderer
	sender   notify.Sender
	limiter  DispatchLimiter
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(time.Duration)
}

func New(
	registry Registry,
	tenders TenderSource,
	stats StatsStore,
	engine *matcher.Engine,
	renderer *notify.Renderer,
	sender notify.Sender,
	limiter DispatchLimiter,
	opts Options,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		registry: registry,
		tenders:  tenders,
		stats:    stats,
		engine:   engine,
		renderer: renderer,
		sender:   sender,
		limiter:  limiter,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// RunImmediate matches one newly observed tender against all immediate
// configurations and dispatches per-match notifications.
func (p *Processor) RunImmediate(ctx context.Context, tender *models.Tender) (*models.RunReport, error) {
	defer p.warnSlowRun("immediate")()

	cfgs, err := p.registry.ActiveImmediate(ctx)
	if err != nil {
		return nil, err
	}

	result := p.engine.GroupMatches(cfgs, []models.Tender{*tender})
	return p.dispatch(ctx, result, models.FrequencyImmediate), nil
}

// RunDaily processes configurations in the given HH:MM bucket against
// tenders published in the last 24 hours.
func (p *Processor) RunDaily(ctx context.Context, bucket string) (*models.RunReport, error) {
	defer p.warnSlowRun("daily")()

	cfgs, err := p.registry.ActiveDaily(ctx, bucket)
	if err != nil {
		return nil, err
	}

	tenders, err := p.tenders.PublishedSince(ctx, p.now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	result := p.engine.GroupMatches(cfgs, tenders)
	return p.dispatch(ctx, result, models.FrequencyDaily), nil
}

// RunWeekly processes due weekly configurations (never sent, or last sent at
// least seven days ago) against tenders published in the last 7 days.
func (p *Processor) RunWeekly(ctx context.Context) (*models.RunReport, error) {
	defer p.warnSlowRun("weekly")()

	asOf := p.now()

	cfgs, err := p.registry.ActiveWeekly(ctx, asOf)
	if err != nil {
		return nil, err
	}

	// The store query already filters; keep the invariant even against a
	// registry that returns extras.
	due := make([]models.AlertConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.WeeklyDue(asOf) {
			due = append(due, cfg)
		}
	}

	tenders, err := p.tenders.PublishedSince(ctx, asOf.Add(-7*24*time.Hour))
	if err != nil {
		return nil, err
	}

	result := p.engine.GroupMatches(due, tenders)
	return p.dispatch(ctx, result, models.FrequencyWeekly), nil
}

// RunRetention removes configurations inactive beyond the retention
// threshold.
func (p *Processor) RunRetention(ctx context.Context) error {
	olderThan := p.now().AddDate(0, 0, -p.opts.RetentionDays)

	deleted, err := p.stats.DeleteInactiveConfigs(ctx, olderThan)
	if err != nil {
		return err
	}

	p.logger.Info("retention cleanup finished",
		zap.Int64("deleted_configs", deleted),
		zap.Time("older_than", olderThan),
	)

	return nil
}

// recipientJob is the per-recipient work unit of one owner's matches. An
// owner splits into several jobs when configs carry recipient overrides.
type recipientJob struct {
	recipient string
	configs   []models.AlertConfig
	tenders   []models.Tender
	matchedBy map[string][]int64
}

func (p *Processor) dispatch(ctx context.Context, result *matcher.GroupResult, freq models.Frequency) *models.RunReport {
	report := &models.RunReport{}

	for _, err := range result.Errors {
		report.Errors = append(report.Errors, err.Error())
	}

	first := true
	for oi := range result.Owners {
		owner := &result.Owners[oi]
		report.ProcessedOwners++

		for _, job := range splitByRecipient(owner) {
			if !first {
				p.sleep(p.opts.DispatchDelay)
			}
			first = false

			p.throttle(ctx)

			if err := p.dispatchOne(ctx, &job, freq); err != nil {
				p.logger.Error("dispatch failed",
					zap.Int64("owner_id", owner.OwnerID),
					zap.String("recipient", job.recipient),
					zap.Error(err),
				)
				report.Errors = append(report.Errors, err.Error())
				continue
			}

			report.EmailsSent++
		}
	}

	p.logger.Info("batch run finished",
		zap.String("frequency", string(freq)),
		zap.Int("processed_owners", report.ProcessedOwners),
		zap.Int("emails_sent", report.EmailsSent),
		zap.Int("errors", len(report.Errors)),
	)

	return report
}

func (p *Processor) dispatchOne(ctx context.Context, job *recipientJob, freq models.Frequency) error {
	var msg *notify.RenderedMessage
	var err error

	if freq == models.FrequencyImmediate {
		msg, err = p.renderer.RenderImmediate(&job.configs[0], job.tenders)
	} else {
		msg, err = p.renderer.RenderDigest(freq, digestSections(job))
	}
	if err != nil {
		return err
	}

	notification := &models.NotificationJob{
		Recipient: job.recipient,
		Subject:   msg.Subject,
		HTMLBody:  msg.HTML,
		TextBody:  msg.Text,
	}
	for _, t := range job.tenders {
		notification.TenderIDs = append(notification.TenderIDs, t.ID)
	}
	for _, cfg := range job.configs {
		notification.ConfigIDs = append(notification.ConfigIDs, cfg.ID)
	}

	deliveryID, err := p.sender.Send(ctx, notification)
	if err != nil {
		return err
	}

	p.logger.Debug("notification delivered",
		zap.String("recipient", job.recipient),
		zap.String("delivery_id", deliveryID),
		zap.Int("tenders", len(job.tenders)),
	)

	// Stats follow confirmed sends only.
	p.persistStats(ctx, job)

	return nil
}

func (p *Processor) persistStats(ctx context.Context, job *recipientJob) {
	sentAt := p.now()

	for _, t := range job.tenders {
		for _, configID := range job.matchedBy[t.ID] {
			if err := p.stats.IncrementMatchStats(ctx, configID, t.ID); err != nil {
				p.logger.Error("failed to increment match stats",
					zap.Int64("config_id", configID),
					zap.String("tender_id", t.ID),
					zap.Error(err),
				)
			}
		}
	}

	for _, cfg := range job.configs {
		if err := p.stats.IncrementEmailSent(ctx, cfg.ID, sentAt); err != nil {
			p.logger.Error("failed to increment emails sent",
				zap.Int64("config_id", cfg.ID),
				zap.Error(err),
			)
		}
	}
}

func (p *Processor) throttle(ctx context.Context) {
	if p.limiter == nil {
		return
	}

	count, err := p.limiter.RegisterSend(ctx)
	if err != nil {
		p.logger.Error("failed to register send with limiter", zap.Error(err))
		return
	}

	if count > p.opts.MaxSendsPerMin {
		p.logger.Warn("send rate above configured limit, slowing down",
			zap.Int64("count", count),
			zap.Int64("limit", p.opts.MaxSendsPerMin),
		)
		p.sleep(time.Second)
	}
}

func (p *Processor) warnSlowRun(mode string) func() {
	start := p.now()
	return func() {
		elapsed := p.now().Sub(start)
		if elapsed > p.opts.RunWarnDuration {
			p.logger.Warn("run took longer than expected",
				zap.String("mode", mode),
				zap.Duration("elapsed", elapsed),
			)
		}
	}
}

// splitByRecipient turns one owner's deduplicated matches into per-recipient
// jobs, honoring per-config recipient overrides.
func splitByRecipient(owner *matcher.OwnerMatches) []recipientJob {
	byRecipient := make(map[string]*recipientJob)

	for _, cfg := range owner.Configs {
		recipient := cfg.Recipient()

		job, ok := byRecipient[recipient]
		if !ok {
			job = &recipientJob{
				recipient: recipient,
				matchedBy: make(map[string][]int64),
			}
			byRecipient[recipient] = job
		}

		job.configs = append(job.configs, cfg)
	}

	for _, job := range byRecipient {
		configIDs := make(map[int64]bool, len(job.configs))
		for _, cfg := range job.configs {
			configIDs[cfg.ID] = true
		}

		for _, t := range owner.Tenders {
			var matched []int64
			for _, id := range owner.MatchedBy[t.ID] {
				if configIDs[id] {
					matched = append(matched, id)
				}
			}
			if len(matched) == 0 {
				continue
			}
			job.tenders = append(job.tenders, t)
			job.matchedBy[t.ID] = matched
		}
	}

	jobs := make([]recipientJob, 0, len(byRecipient))
	for _, job := range byRecipient {
		if len(job.tenders) == 0 {
			continue
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].recipient < jobs[j].recipient })

	return jobs
}

func digestSections(job *recipientJob) []notify.DigestSection {
	// Each tender goes into the section of the first config that matched it,
	// so dedup survives sectioning.
	sections := make([]notify.DigestSection, len(job.configs))
	index := make(map[int64]int, len(job.configs))
	for i, cfg := range job.configs {
		sections[i] = notify.DigestSection{ConfigName: cfg.Name}
		index[cfg.ID] = i
	}

	for _, t := range job.tenders {
		matched := job.matchedBy[t.ID]
		if len(matched) == 0 {
			continue
		}
		i := index[matched[0]]
		sections[i].Tenders = append(sections[i].Tenders, t)
	}

	return sections
}
