package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultPollBudget is how many consecutive poll failures a job absorbs
	// before the tracker marks it failed.
	DefaultPollBudget = 5

	// MinPollInterval is the recommended spacing between polls of the same
	// job. The tracker does not reject tighter polling, it counts it, so
	// callers hammering a slow service show up in the job record.
	MinPollInterval = 2 * time.Second
)

// Job is the tracker's record of one generation request. Fields are
// snapshots; mutate only through the tracker.
type Job struct {
	ID           string
	Provider     string
	RemoteID     string
	Status       Status
	Progress     float64
	ResultRef    string
	Err          string
	SubmittedAt  time.Time
	LastPolledAt time.Time
	// PollFailures counts consecutive poll errors; reset on any success.
	PollFailures int
	// TightPolls counts polls issued sooner than MinPollInterval after the
	// previous one.
	TightPolls int
}

// Tracker owns the job table. All transitions go through it so the
// forward-only status invariant holds no matter how callers interleave.
type Tracker struct {
	log        *zap.Logger
	pollBudget int
	now        func() time.Time

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewTracker returns an empty tracker. A zero pollBudget selects
// DefaultPollBudget.
func NewTracker(log *zap.Logger, pollBudget int) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if pollBudget <= 0 {
		pollBudget = DefaultPollBudget
	}
	return &Tracker{
		log:        log,
		pollBudget: pollBudget,
		now:        time.Now,
		jobs:       make(map[string]*Job),
	}
}

// Submit sends the request to the provider and registers the resulting job.
// Submission failure is returned to the caller and leaves no job behind.
func (t *Tracker) Submit(ctx context.Context, p Provider, req SubmitRequest) (Job, error) {
	remoteID, err := p.Submit(ctx, req)
	if err != nil {
		return Job{}, fmt.Errorf("submitting to %s: %w", p.Name(), err)
	}
	job := &Job{
		ID:          uuid.NewString(),
		Provider:    p.Name(),
		RemoteID:    remoteID,
		Status:      StatusSubmitted,
		SubmittedAt: t.now(),
	}
	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()
	t.log.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("provider", job.Provider),
		zap.String("remote_id", remoteID))
	return *job, nil
}

// Get returns a snapshot of the job.
func (t *Tracker) Get(id string) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return *job, nil
}

// Jobs returns snapshots of every tracked job, newest first.
func (t *Tracker) Jobs() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// Poll asks the provider for fresh status and applies it. Terminal jobs are
// returned as-is without contacting the provider. Poll errors consume the
// job's failure budget; exhausting it fails the job.
func (t *Tracker) Poll(ctx context.Context, p Provider, id string) (Job, error) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if job.Status.Terminal() {
		snap := *job
		t.mu.Unlock()
		return snap, nil
	}
	if job.Provider != p.Name() {
		t.mu.Unlock()
		return Job{}, fmt.Errorf("%w: job %s belongs to provider %s, polled via %s",
			ErrInvalidState, id, job.Provider, p.Name())
	}
	now := t.now()
	if !job.LastPolledAt.IsZero() && now.Sub(job.LastPolledAt) < MinPollInterval {
		job.TightPolls++
	}
	job.LastPolledAt = now
	remoteID := job.RemoteID
	t.mu.Unlock()

	update, err := p.Poll(ctx, remoteID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		job.PollFailures++
		t.log.Warn("job poll failed",
			zap.String("job_id", job.ID),
			zap.Int("failures", job.PollFailures),
			zap.Error(err))
		if job.PollFailures >= t.pollBudget {
			t.transition(job, PollUpdate{
				Status:  StatusFailed,
				Message: fmt.Sprintf("poll retry budget exhausted: %v", err),
			})
		}
		return *job, fmt.Errorf("polling %s: %w", p.Name(), err)
	}
	job.PollFailures = 0
	t.transition(job, update)
	return *job, nil
}

// transition applies an update under t.mu, enforcing forward-only movement.
// A stale update that would move the status backwards still refreshes
// progress but leaves the status alone.
func (t *Tracker) transition(job *Job, update PollUpdate) {
	if update.Progress > job.Progress {
		job.Progress = update.Progress
	}
	if update.Status.rank() < job.Status.rank() {
		return
	}
	if job.Status.Terminal() {
		return
	}
	if update.Status == job.Status {
		return
	}
	old := job.Status
	job.Status = update.Status
	switch update.Status {
	case StatusCompleted:
		job.Progress = 100
		job.ResultRef = update.ResultRef
	case StatusFailed:
		job.Err = update.Message
	}
	t.log.Info("job status changed",
		zap.String("job_id", job.ID),
		zap.String("from", old.String()),
		zap.String("to", job.Status.String()))
}

// ImportResult hands a completed job's result to the host for import under
// the given object name. Any non-completed status is ErrInvalidState.
func (t *Tracker) ImportResult(ctx context.Context, host Commander, id, name string) error {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if job.Status != StatusCompleted {
		status := job.Status
		t.mu.Unlock()
		return fmt.Errorf("%w: job %s is %s, result import needs COMPLETED", ErrInvalidState, id, status)
	}
	params := map[string]any{
		"name":       name,
		"provider":   job.Provider,
		"result_ref": job.ResultRef,
		"remote_id":  job.RemoteID,
	}
	t.mu.Unlock()

	if _, err := host.Call(ctx, "import_generated_asset", params); err != nil {
		return fmt.Errorf("importing asset for job %s: %w", id, err)
	}
	return nil
}
