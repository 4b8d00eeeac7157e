package processor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tender-alerts/internal/matcher"
	"tender-alerts/internal/models"
	"tender-alerts/internal/notify"
	"tender-alerts/internal/processor"
)

func ptr[T any](v T) *T { return &v }

type fakeRegistry struct {
	immediate []models.AlertConfig
	daily     map[string][]models.AlertConfig
	weekly    []models.AlertConfig
}

func (r *fakeRegistry) ActiveImmediate(context.Context) ([]models.AlertConfig, error) {
	return r.immediate, nil
}

func (r *fakeRegistry) ActiveDaily(_ context.Context, bucket string) ([]models.AlertConfig, error) {
	return r.daily[bucket], nil
}

func (r *fakeRegistry) ActiveWeekly(context.Context, time.Time) ([]models.AlertConfig, error) {
	return r.weekly, nil
}

type fakeTenders struct {
	tenders []models.Tender
}

func (f *fakeTenders) PublishedSince(context.Context, time.Time) ([]models.Tender, error) {
	return f.tenders, nil
}

type fakeStats struct {
	matches map[int64][]string
	emails  map[int64]int
	deleted int64
}

func newFakeStats() *fakeStats {
	return &fakeStats{
		matches: make(map[int64][]string),
		emails:  make(map[int64]int),
	}
}

func (s *fakeStats) IncrementMatchStats(_ context.Context, configID int64, tenderID string) error {
	s.matches[configID] = append(s.matches[configID], tenderID)
	return nil
}

func (s *fakeStats) IncrementEmailSent(_ context.Context, configID int64, _ time.Time) error {
	s.emails[configID]++
	return nil
}

func (s *fakeStats) DeleteInactiveConfigs(context.Context, time.Time) (int64, error) {
	return s.deleted, nil
}

type fakeSender struct {
	jobs    []*models.NotificationJob
	failFor map[string]bool
}

func (s *fakeSender) Send(_ context.Context, job *models.NotificationJob) (string, error) {
	if s.failFor[job.Recipient] {
		return "", &notify.DeliveryError{Recipient: job.Recipient, Provider: "fake", Detail: "rejected"}
	}
	s.jobs = append(s.jobs, job)
	return "fake-1", nil
}

func newProcessor(reg processor.Registry, src processor.TenderSource, stats processor.StatsStore, sender notify.Sender) *processor.Processor {
	return processor.New(
		reg,
		src,
		stats,
		matcher.NewEngine(zap.NewNop()),
		notify.NewRenderer("https://portal.example.com"),
		sender,
		nil,
		processor.Options{
			DispatchDelay:   0,
			RunWarnDuration: time.Hour,
			RetentionDays:   90,
			MaxSendsPerMin:  100,
		},
		zap.NewNop(),
	)
}

func laptopConfig(id, ownerID int64, email string) models.AlertConfig {
	return models.AlertConfig{
		ID:           id,
		OwnerID:      ownerID,
		Name:         "laptop watch",
		Active:       true,
		EmailEnabled: true,
		Frequency:    models.FrequencyImmediate,
		OwnerEmail:   email,
		Keywords: models.KeywordClauses{
			{Term: "laptop", MatchType: models.MatchContains},
		},
	}
}

func laptopTender(id string) models.Tender {
	return models.Tender{
		ID:          id,
		Title:       "Supply of 50 Laptops",
		Description: "Portable computers for field staff",
		Category:    "IT Equipment",
		Province:    "Ankara",
		District:    "Cankaya",
		PublishedAt: time.Now().Add(-time.Hour),
		ClosingAt:   time.Now().Add(14 * 24 * time.Hour),
		Status:      "open",
		Priority:    "normal",
	}
}

func TestRunImmediate_EndToEnd(t *testing.T) {
	reg := &fakeRegistry{immediate: []models.AlertConfig{laptopConfig(1, 10, "a@example.com")}}
	stats := newFakeStats()
	sender := &fakeSender{}

	proc := newProcessor(reg, &fakeTenders{}, stats, sender)

	tender := laptopTender("t-1")
	report, err := proc.RunImmediate(context.Background(), &tender)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ProcessedOwners)
	assert.Equal(t, 1, report.EmailsSent)
	assert.Empty(t, report.Errors)

	require.Len(t, sender.jobs, 1)
	job := sender.jobs[0]
	assert.Equal(t, "a@example.com", job.Recipient)
	assert.Equal(t, []string{"t-1"}, job.TenderIDs)
	assert.Equal(t, []int64{1}, job.ConfigIDs)
	assert.Contains(t, job.Subject, "laptop watch")

	assert.Equal(t, []string{"t-1"}, stats.matches[1], "totalMatches becomes 1")
	assert.Equal(t, 1, stats.emails[1], "emailsSent becomes 1")
}

func TestRunImmediate_NoMatchSendsNothing(t *testing.T) {
	reg := &fakeRegistry{immediate: []models.AlertConfig{laptopConfig(1, 10, "a@example.com")}}
	stats := newFakeStats()
	sender := &fakeSender{}

	proc := newProcessor(reg, &fakeTenders{}, stats, sender)

	tender := laptopTender("t-1")
	tender.Title = "Road construction works"
	tender.Description = "Asphalt resurfacing"

	report, err := proc.RunImmediate(context.Background(), &tender)
	require.NoError(t, err)

	assert.Zero(t, report.ProcessedOwners)
	assert.Zero(t, report.EmailsSent)
	assert.Empty(t, sender.jobs)
	assert.Empty(t, stats.matches)
	assert.Empty(t, stats.emails)
}

func TestRunImmediate_DedupOneEmailBothConfigsCounted(t *testing.T) {
	second := laptopConfig(2, 10, "a@example.com")
	second.Name = "computer watch"
	second.Keywords = models.KeywordClauses{{Term: "computer", MatchType: models.MatchContains}}

	reg := &fakeRegistry{immediate: []models.AlertConfig{laptopConfig(1, 10, "a@example.com"), second}}
	stats := newFakeStats()
	sender := &fakeSender{}

	proc := newProcessor(reg, &fakeTenders{}, stats, sender)

	tender := laptopTender("t-1")
	report, err := proc.RunImmediate(context.Background(), &tender)
	require.NoError(t, err)

	assert.Equal(t, 1, report.EmailsSent, "one notification despite two matching configs")
	require.Len(t, sender.jobs, 1)
	assert.Equal(t, []string{"t-1"}, sender.jobs[0].TenderIDs)

	assert.Equal(t, []string{"t-1"}, stats.matches[1])
	assert.Equal(t, []string{"t-1"}, stats.matches[2])
	assert.Equal(t, 1, stats.emails[1])
	assert.Equal(t, 1, stats.emails[2])
}

func TestRunDaily_FailedDispatchIsIsolated(t *testing.T) {
	reg := &fakeRegistry{daily: map[string][]models.AlertConfig{
		"09:00": {
			laptopConfig(1, 10, "a@example.com"),
			laptopConfig(2, 20, "b@example.com"),
		},
	}}
	stats := newFakeStats()
	sender := &fakeSender{failFor: map[string]bool{"a@example.com": true}}

	proc := newProcessor(reg, &fakeTenders{tenders: []models.Tender{laptopTender("t-1")}}, stats, sender)

	report, err := proc.RunDaily(context.Background(), "09:00")
	require.NoError(t, err)

	assert.Equal(t, 2, report.ProcessedOwners)
	assert.Equal(t, 1, report.EmailsSent)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "a@example.com")

	// Stats only follow confirmed sends.
	assert.Empty(t, stats.matches[1])
	assert.Zero(t, stats.emails[1])
	assert.Equal(t, []string{"t-1"}, stats.matches[2])
	assert.Equal(t, 1, stats.emails[2])
}

func TestRunWeekly_EligibilityWindow(t *testing.T) {
	recent := laptopConfig(1, 10, "recent@example.com")
	recent.Frequency = models.FrequencyWeekly
	recent.LastSentAt = ptr(time.Now().Add(-3 * 24 * time.Hour))

	due := laptopConfig(2, 20, "due@example.com")
	due.Frequency = models.FrequencyWeekly
	due.LastSentAt = ptr(time.Now().Add(-8 * 24 * time.Hour))

	neverSent := laptopConfig(3, 30, "never@example.com")
	neverSent.Frequency = models.FrequencyWeekly

	reg := &fakeRegistry{weekly: []models.AlertConfig{recent, due, neverSent}}
	stats := newFakeStats()
	sender := &fakeSender{}

	proc := newProcessor(reg, &fakeTenders{tenders: []models.Tender{laptopTender("t-1")}}, stats, sender)

	report, err := proc.RunWeekly(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.EmailsSent)

	recipients := make([]string, 0, len(sender.jobs))
	for _, job := range sender.jobs {
		recipients = append(recipients, job.Recipient)
	}
	assert.ElementsMatch(t, []string{"due@example.com", "never@example.com"}, recipients)
}

func TestRunDaily_RecipientOverrideSplitsDispatch(t *testing.T) {
	first := laptopConfig(1, 10, "owner@example.com")
	second := laptopConfig(2, 10, "owner@example.com")
	second.Name = "forwarded watch"
	second.RecipientOverride = ptr("team@example.com")

	reg := &fakeRegistry{daily: map[string][]models.AlertConfig{
		"09:00": {first, second},
	}}
	stats := newFakeStats()
	sender := &fakeSender{}

	proc := newProcessor(reg, &fakeTenders{tenders: []models.Tender{laptopTender("t-1")}}, stats, sender)

	report, err := proc.RunDaily(context.Background(), "09:00")
	require.NoError(t, err)

	assert.Equal(t, 1, report.ProcessedOwners)
	assert.Equal(t, 2, report.EmailsSent, "one job per distinct recipient")

	recipients := make([]string, 0, len(sender.jobs))
	for _, job := range sender.jobs {
		recipients = append(recipients, job.Recipient)
	}
	assert.ElementsMatch(t, []string{"owner@example.com", "team@example.com"}, recipients)
}

func TestRunRetention_DelegatesToStore(t *testing.T) {
	stats := newFakeStats()
	stats.deleted = 4

	proc := newProcessor(&fakeRegistry{}, &fakeTenders{}, stats, &fakeSender{})

	require.NoError(t, proc.RunRetention(context.Background()))
}
