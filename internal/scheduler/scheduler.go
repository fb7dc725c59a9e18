package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/models"
	"github.com/urtica-dioica/tito-sub002/internal/redis"
)

// bookkeepingPrefix namespaces the per-job last-run records in the store.
const bookkeepingPrefix = redis.KeyPrefix + "jobs:lastrun:"

// bookkeepingTTL keeps last-run records around long enough for operators
// to notice a silent job without accumulating forever.
const bookkeepingTTL = 30 * 24 * time.Hour

// runTimeout bounds a single job execution.
const runTimeout = 10 * time.Minute

// bookkeepingTimeout bounds the last-run record write. It is independent of
// the run's own context so a run that died on its timeout still leaves a
// trace in the store.
const bookkeepingTimeout = 5 * time.Second

// Result is the outcome of one job run.
type Result struct {
	// Count is the job's primary metric (files swept, rows pruned).
	Count int
	// Detail is an optional human-readable description of the run.
	Detail string
}

// JobFunc is the action a job performs. Params carry optional overrides
// for manually triggered runs and are nil for scheduled occurrences.
type JobFunc func(ctx context.Context, params map[string]any) (*Result, error)

// RunObserver is notified after every job run, scheduled or manual, with
// the run's outcome. Used to feed run counters into the metrics registry.
type RunObserver func(job string, err error)

// Job binds a name and recurrence rule to an action.
type Job struct {
	Name string
	Rule Rule
	Run  JobFunc
}

// lastRunRecord is the JSON bookkeeping payload written after every run.
type lastRunRecord struct {
	Job        string    `json:"job"`
	RanAt      time.Time `json:"ran_at"`
	Count      int       `json:"count"`
	DurationMS int64     `json:"duration_ms"`
	Source     string    `json:"source"`
	Error      string    `json:"error,omitempty"`
}

// registeredJob tracks one job's schedule state alongside the cron entry.
type registeredJob struct {
	job       Job
	entryID   cron.EntryID
	nextRunAt time.Time
	lastRunAt time.Time
	lastError string
}

// Scheduler owns the recurring jobs. It wraps a cron runner but tracks
// every job's next occurrence itself, and guarantees that after Stop
// returns no scheduled run will fire until Start is called again.
type Scheduler struct {
	cron   *cron.Cron
	store  redis.Store
	logger *logrus.Logger

	mu       sync.Mutex
	running  bool
	jobs     map[string]*registeredJob
	order    []string
	observer RunObserver
}

// New creates a scheduler. Jobs are registered with Register and begin
// firing only after Start.
func New(store redis.Store, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		logger: logger,
		jobs:   make(map[string]*registeredJob),
	}
}

// Register adds a job to the scheduler. Registering while the scheduler is
// running is an error; the job set is fixed between Start and Stop.
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cannot register job %q while scheduler is running", job.Name)
	}
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q is already registered", job.Name)
	}

	s.jobs[job.Name] = &registeredJob{job: job}
	s.order = append(s.order, job.Name)

	s.logger.WithFields(logrus.Fields{
		"job":  job.Name,
		"rule": job.Rule.String(),
	}).Info("Registered scheduled job")
	return nil
}

// Start arms every registered job and begins firing on schedule.
// Idempotent: starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("Scheduler already running, ignoring Start")
		return
	}

	s.cron = cron.New()
	now := time.Now()

	for _, name := range s.order {
		reg := s.jobs[name]
		job := reg.job

		entryID, err := s.cron.AddFunc(job.Rule.CronSpec(), func() {
			s.runScheduled(job.Name)
		})
		if err != nil {
			// Specs come from validated rules; log and skip rather than
			// taking the whole scheduler down.
			s.logger.WithError(err).WithField("job", name).Error("Failed to arm scheduled job")
			continue
		}

		reg.entryID = entryID
		reg.nextRunAt = job.Rule.NextOccurrence(now)

		s.logger.WithFields(logrus.Fields{
			"job":         name,
			"next_run_at": reg.nextRunAt.Format(time.RFC3339),
		}).Info("Armed scheduled job")
	}

	s.cron.Start()
	s.running = true
}

// Stop disarms every job and blocks until any in-flight run finishes. When
// Stop returns, no scheduled run will fire until Start is called again.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cronRunner := s.cron
	s.cron = nil
	for _, reg := range s.jobs {
		reg.nextRunAt = time.Time{}
		reg.entryID = 0
	}
	s.mu.Unlock()

	// Wait outside the lock so an in-flight run can record its outcome.
	<-cronRunner.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// SetObserver registers the run observer. Safe to call before or after
// Start; a nil observer disables notifications.
func (s *Scheduler) SetObserver(fn RunObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

func (s *Scheduler) notify(name string, err error) {
	s.mu.Lock()
	fn := s.observer
	s.mu.Unlock()

	if fn != nil {
		fn(name, err)
	}
}

// Running reports whether the scheduler is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger runs a job immediately and synchronously, outside its schedule.
// The run does not consume or move the job's next occurrence, and works
// whether or not the scheduler is running. The job's error, if any, is
// returned to the caller rather than only logged.
func (s *Scheduler) Trigger(ctx context.Context, name string, params map[string]any) (*Result, time.Duration, error) {
	s.mu.Lock()
	reg, exists := s.jobs[name]
	s.mu.Unlock()
	if !exists {
		return nil, 0, models.ErrUnknownJob
	}

	start := time.Now()
	result, err := reg.job.Run(ctx, params)
	elapsed := time.Since(start)

	s.writeBookkeeping(name, start, result, elapsed, "manual", err)
	s.notify(name, err)

	if err != nil {
		return nil, elapsed, err
	}
	if result == nil {
		result = &Result{}
	}
	return result, elapsed, nil
}

// Status reports every job's schedule state for the admin API.
func (s *Scheduler) Status() models.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := models.SchedulerStatus{
		Running: s.running,
		Jobs:    make([]models.JobStatus, 0, len(s.order)),
	}

	for _, name := range s.order {
		reg := s.jobs[name]
		status.Jobs = append(status.Jobs, models.JobStatus{
			Name:      name,
			Rule:      reg.job.Rule.String(),
			NextRunAt: reg.nextRunAt,
			LastRunAt: reg.lastRunAt,
			LastError: reg.lastError,
		})
	}

	return status
}

// runScheduled executes one scheduled occurrence: run the action with a
// bounded context, record the outcome, and advance the tracked next
// occurrence. Failures are logged and the job stays scheduled; a broken
// run never cancels future occurrences.
func (s *Scheduler) runScheduled(name string) {
	s.mu.Lock()
	reg, exists := s.jobs[name]
	if !exists || !s.running {
		s.mu.Unlock()
		return
	}
	job := reg.job
	start := time.Now()
	reg.lastRunAt = start
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	logger := s.logger.WithField("job", name)
	logger.Info("Running scheduled job")

	result, err := job.Run(ctx, nil)
	elapsed := time.Since(start)

	s.mu.Lock()
	if err != nil {
		reg.lastError = err.Error()
	} else {
		reg.lastError = ""
	}
	// Advance the tracked occurrence unless Stop cleared it mid-run.
	var next time.Time
	if s.running {
		reg.nextRunAt = job.Rule.NextOccurrence(time.Now())
		next = reg.nextRunAt
	}
	s.mu.Unlock()

	s.writeBookkeeping(name, start, result, elapsed, "scheduled", err)
	s.notify(name, err)

	if err != nil {
		logger.WithError(err).WithField("next_run_at", next.Format(time.RFC3339)).Error("Scheduled job failed")
		return
	}

	count := 0
	if result != nil {
		count = result.Count
	}
	logger.WithFields(logrus.Fields{
		"count":       count,
		"duration_ms": elapsed.Milliseconds(),
		"next_run_at": next.Format(time.RFC3339),
	}).Info("Scheduled job completed")
}

// writeBookkeeping records the run outcome in the store so operators can
// audit job history across restarts. Best effort: the store client already
// degrades softly. The write gets its own context so a record is kept even
// when the run's context is already dead.
func (s *Scheduler) writeBookkeeping(name string, ranAt time.Time, result *Result, elapsed time.Duration, source string, runErr error) {
	record := lastRunRecord{
		Job:        name,
		RanAt:      ranAt.UTC(),
		DurationMS: elapsed.Milliseconds(),
		Source:     source,
	}
	if result != nil {
		record.Count = result.Count
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()
	_ = s.store.Set(ctx, bookkeepingPrefix+name, string(payload), bookkeepingTTL)
}
