package watcher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"tender-alerts/internal/models"
	"tender-alerts/internal/watcher"
)

type fakeSource struct {
	mu      sync.Mutex
	tenders []models.Tender
}

func (f *fakeSource) PublishedSince(context.Context, time.Time) ([]models.Tender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tenders, nil
}

type fakeRunner struct {
	mu  sync.Mutex
	ran []string
}

func (f *fakeRunner) RunImmediate(_ context.Context, tender *models.Tender) (*models.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, tender.ID)
	return &models.RunReport{}, nil
}

func (f *fakeRunner) processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ran...)
}

type fakeSeen struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeSeen() *fakeSeen {
	return &fakeSeen{seen: make(map[string]bool)}
}

func (f *fakeSeen) IsTenderSeen(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[id], nil
}

func (f *fakeSeen) MarkTenderSeen(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[id] = true
	return nil
}

func TestWatcher_ProcessesEachTenderOnce(t *testing.T) {
	source := &fakeSource{tenders: []models.Tender{
		{ID: "t-1", Title: "Supply of 50 Laptops"},
		{ID: "t-2", Title: "Office furniture"},
	}}
	runner := &fakeRunner{}
	seen := newFakeSeen()

	w := watcher.New(source, runner, seen, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	// Let the initial poll and at least one ticker poll run.
	time.Sleep(70 * time.Millisecond)
	cancel()
	<-done

	assert.ElementsMatch(t, []string{"t-1", "t-2"}, runner.processed(),
		"seen markers keep repeated polls from re-notifying")
}

func TestWatcher_SkipsAlreadySeenTenders(t *testing.T) {
	source := &fakeSource{tenders: []models.Tender{{ID: "t-1"}}}
	runner := &fakeRunner{}
	seen := newFakeSeen()
	seen.seen["t-1"] = true

	w := watcher.New(source, runner, seen, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Empty(t, runner.processed())
}
