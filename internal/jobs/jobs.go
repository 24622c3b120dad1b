// Package jobs tracks asynchronous operations (indexing runs, bulk deletes)
// with an in-memory registry, progress events, and a terminal-job sweep.
package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job states. A job moves pending -> running -> completed or failed.
// Terminal states never transition again.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Sentinel errors for job lifecycle violations.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrTerminalState     = errors.New("job is in a terminal state")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// defaultRetention is how long terminal jobs stay queryable before the
// sweep removes them.
const defaultRetention = 24 * time.Hour

// eventBuffer is the per-subscriber channel capacity. Slow subscribers drop
// events rather than block the manager.
const eventBuffer = 64

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// ErrorDetail captures why a job failed.
type ErrorDetail struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Job is one tracked asynchronous operation.
type Job struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	State    string `json:"state"`
	// Stage names the phase the job is currently in (e.g. "ingest").
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	// Metadata carries caller-supplied context (version, source path, ...)
	// so event consumers see it on every broadcast.
	Metadata map[string]any `json:"metadata,omitempty"`
	Result   any            `json:"result,omitempty"`
	Error    *ErrorDetail   `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (j *Job) terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// snapshot returns a copy safe to hand out across goroutines.
func (j *Job) snapshot() Job {
	copy := *j
	if j.Metadata != nil {
		meta := make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			meta[k] = v
		}
		copy.Metadata = meta
	}
	if j.Error != nil {
		errCopy := *j.Error
		copy.Error = &errCopy
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		copy.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		copy.FinishedAt = &t
	}
	return copy
}

// Event types delivered to subscribers.
const (
	EventCreated   = "created"
	EventStarted   = "started"
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Event is one job lifecycle notification. Job is a snapshot taken at
// publish time.
type Event struct {
	Type string
	Job  Job
}

// Publisher forwards job events to an external transport.
type Publisher interface {
	Publish(event Event) error
}

type subscriber struct {
	ch    chan Event
	jobID string
}

// Manager tracks jobs in memory, fans events out to subscribers, and sweeps
// terminal jobs past retention on a cron schedule.
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	subs    map[int]subscriber
	nextSub int

	retention time.Duration
	publisher Publisher
	cron      *cron.Cron
	logger    *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetention overrides how long terminal jobs stay queryable.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithPublisher forwards every job event to an external transport. Publish
// failures are logged, never propagated to the caller mutating the job.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

// NewManager creates a job manager.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		jobs:      make(map[string]*Job),
		subs:      make(map[int]subscriber),
		retention: defaultRetention,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateJob registers a new pending job and returns its snapshot. Metadata
// rides along on every event broadcast; nil is fine.
func (m *Manager) CreateJob(kind string, metadata map[string]any) Job {
	now := timeNow()
	job := &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		State:     StatePending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snap := job.snapshot()
	m.mu.Unlock()

	m.emit(Event{Type: EventCreated, Job: snap})
	return snap
}

// StartJob transitions a pending job to running.
func (m *Manager) StartJob(id string) error {
	snap, err := m.mutate(id, func(job *Job) error {
		if job.State != StatePending {
			return fmt.Errorf("%w: %s -> running", ErrInvalidTransition, job.State)
		}
		now := timeNow()
		job.State = StateRunning
		job.StartedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	m.emit(Event{Type: EventStarted, Job: snap})
	return nil
}

// UpdateProgress records progress on a running job. Percent is clamped to
// [0, 100]; an empty stage leaves the current stage unchanged.
func (m *Manager) UpdateProgress(id string, percent int, stage, message string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	snap, err := m.mutate(id, func(job *Job) error {
		if job.terminal() {
			return fmt.Errorf("%w: %s", ErrTerminalState, job.State)
		}
		job.Progress = percent
		if stage != "" {
			job.Stage = stage
		}
		job.Message = message
		return nil
	})
	if err != nil {
		return err
	}
	m.emit(Event{Type: EventProgress, Job: snap})
	return nil
}

// CompleteJob marks a job completed with its result.
func (m *Manager) CompleteJob(id string, result any) error {
	snap, err := m.mutate(id, func(job *Job) error {
		if job.terminal() {
			return fmt.Errorf("%w: %s", ErrTerminalState, job.State)
		}
		now := timeNow()
		job.State = StateCompleted
		job.Progress = 100
		job.Result = result
		job.FinishedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	m.emit(Event{Type: EventCompleted, Job: snap})
	return nil
}

// FailJob marks a job failed with the error detail.
func (m *Manager) FailJob(id string, jobErr error, stack string) error {
	snap, err := m.mutate(id, func(job *Job) error {
		if job.terminal() {
			return fmt.Errorf("%w: %s", ErrTerminalState, job.State)
		}
		now := timeNow()
		job.State = StateFailed
		job.Error = &ErrorDetail{Message: jobErr.Error(), Stack: stack}
		job.FinishedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	m.emit(Event{Type: EventFailed, Job: snap})
	return nil
}

// mutate applies fn to the job under the lock and returns a snapshot.
func (m *Manager) mutate(id string, fn func(*Job) error) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err := fn(job); err != nil {
		return Job{}, err
	}
	job.UpdatedAt = timeNow()
	return job.snapshot(), nil
}

// GetJob returns a snapshot of one job.
func (m *Manager) GetJob(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.snapshot(), nil
}

// GetAllJobs returns snapshots of every tracked job, oldest first.
func (m *Manager) GetAllJobs() []Job {
	return m.listJobs(func(*Job) bool { return true })
}

// GetActiveJobs returns snapshots of pending and running jobs, oldest first.
func (m *Manager) GetActiveJobs() []Job {
	return m.listJobs(func(j *Job) bool { return !j.terminal() })
}

func (m *Manager) listJobs(keep func(*Job) bool) []Job {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if keep(job) {
			jobs = append(jobs, job.snapshot())
		}
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Subscribe delivers every job event until unsubscribe is called. The
// channel is buffered; events are dropped when the subscriber lags.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.subscribe("")
}

// SubscribeJob delivers events for a single job.
func (m *Manager) SubscribeJob(id string) (<-chan Event, func()) {
	return m.subscribe(id)
}

func (m *Manager) subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	m.mu.Lock()
	key := m.nextSub
	m.nextSub++
	m.subs[key] = subscriber{ch: ch, jobID: jobID}
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		if sub, ok := m.subs[key]; ok {
			delete(m.subs, key)
			close(sub.ch)
		}
		m.mu.Unlock()
	}
	return ch, unsubscribe
}

// emit fans an event out to subscribers and the optional publisher.
func (m *Manager) emit(event Event) {
	m.mu.RLock()
	for _, sub := range m.subs {
		if sub.jobID != "" && sub.jobID != event.Job.ID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			m.logger.Warn("dropping job event for slow subscriber",
				zap.String("job_id", event.Job.ID),
				zap.String("event", event.Type),
			)
		}
	}
	m.mu.RUnlock()

	if m.publisher != nil {
		if err := m.publisher.Publish(event); err != nil {
			m.logger.Warn("publishing job event failed",
				zap.String("job_id", event.Job.ID),
				zap.String("event", event.Type),
				zap.Error(err),
			)
		}
	}
}

// Sweep removes terminal jobs whose finish time is older than the retention
// window and returns how many were removed.
func (m *Manager) Sweep() int {
	cutoff := timeNow().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, job := range m.jobs {
		if job.terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("swept terminal jobs", zap.Int("removed", removed))
	}
	return removed
}

// StartSweeper schedules Sweep on the cron expression (e.g. "@hourly").
func (m *Manager) StartSweeper(schedule string) error {
	if m.cron != nil {
		return errors.New("sweeper already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { m.Sweep() }); err != nil {
		return fmt.Errorf("scheduling sweep %q: %w", schedule, err)
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop halts the sweeper and closes all subscriber channels.
func (m *Manager) Stop() {
	if m.cron != nil {
		ctx := m.cron.Stop()
		<-ctx.Done()
		m.cron = nil
	}

	m.mu.Lock()
	for key, sub := range m.subs {
		delete(m.subs, key)
		close(sub.ch)
	}
	m.mu.Unlock()
}
