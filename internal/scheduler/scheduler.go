// Package scheduler runs the named notification jobs on cron schedules
// pinned to one configured timezone. It only knows when to fire; what runs
// is injected as a plain function.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context)

// JobStatus is the operational view of one named job.
type JobStatus struct {
	Name     string
	Spec     string
	Running  bool
	LastFire *time.Time
	NextFire *time.Time
}

type job struct {
	name     string
	spec     string
	fn       JobFunc
	cron     *cron.Cron
	entryID  cron.EntryID
	running  bool
	inFlight atomic.Bool
	lastFire *time.Time
}

// Scheduler manages named cron jobs. Each job gets its own cron runner so
// start and stop work per job; all schedule evaluation uses the configured
// location, never the caller's.
type Scheduler struct {
	mu     sync.Mutex
	loc    *time.Location
	jobs   map[string]*job
	logger *zap.Logger
}

func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		loc:    loc,
		jobs:   make(map[string]*job),
		logger: logger,
	}
}

// Register adds a named job without starting it. Registering a duplicate
// name or an invalid cron spec fails.
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	j := &job{
		name: name,
		spec: spec,
		fn:   fn,
		cron: cron.New(cron.WithLocation(s.loc)),
	}

	entryID, err := j.cron.AddFunc(spec, func() {
		s.run(j)
	})
	if err != nil {
		return fmt.Errorf("register job %q: %w", name, err)
	}
	j.entryID = entryID

	s.jobs[name] = j

	s.logger.Info("job registered",
		zap.String("job", name),
		zap.String("spec", spec),
	)

	return nil
}

// run executes one fire of a job. Overlapping fires of the same job are
// skipped, not queued.
func (s *Scheduler) run(j *job) {
	if !j.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("previous run still in flight, skipping trigger",
			zap.String("job", j.name),
		)
		return
	}
	defer j.inFlight.Store(false)

	now := time.Now().In(s.loc)
	s.mu.Lock()
	j.lastFire = &now
	s.mu.Unlock()

	s.logger.Info("job fired", zap.String("job", j.name))

	j.fn(context.Background())
}

func (s *Scheduler) Start(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	if !j.running {
		j.cron.Start()
		j.running = true
		s.logger.Info("job started", zap.String("job", name))
	}

	return nil
}

// Stop prevents future fires of the job. An in-flight run completes on its
// own.
func (s *Scheduler) Stop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	if j.running {
		j.cron.Stop()
		j.running = false
		s.logger.Info("job stopped", zap.String("job", name))
	}

	return nil
}

func (s *Scheduler) StartAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if !j.running {
			j.cron.Start()
			j.running = true
		}
	}

	s.logger.Info("all jobs started", zap.Int("count", len(s.jobs)))
}

func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.running {
			j.cron.Stop()
			j.running = false
		}
	}

	s.logger.Info("all jobs stopped")
}

// Trigger fires the job now, through the same entry point the schedule
// uses, so the re-entrancy guard still applies. It blocks until the run
// completes or is skipped.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	s.run(j)
	return nil
}

// Status reports the last and next fire time of every registered job.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		status := JobStatus{
			Name:     j.name,
			Spec:     j.spec,
			Running:  j.running,
			LastFire: j.lastFire,
		}

		if j.running {
			next := j.cron.Entry(j.entryID).Next
			if !next.IsZero() {
				status.NextFire = &next
			}
		}

		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })

	return statuses
}

// Shutdown stops and clears all registrations. Safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.running {
			j.cron.Stop()
		}
	}

	s.jobs = make(map[string]*job)
	s.logger.Info("scheduler shut down")
}
