package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/kerbaras/mdbulk/pkg/data"
)

// ErrJobRunning is returned when a mutation job is started while another one
// is still running.
var ErrJobRunning = errors.New("another job is still running")

// Outcome of one item of a bulk operation.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeSkipped Outcome = "skipped"
	OutcomeErrored Outcome = "errored"
)

// Progress reports a finished item.
type Progress struct {
	Action    string
	Index     int
	Total     int
	ChapterID string
	Outcome   Outcome
	Error     error
}

type progressKey struct{}

func withReporter(ctx context.Context, report func(Progress)) context.Context {
	return context.WithValue(ctx, progressKey{}, report)
}

func reportProgress(ctx context.Context, p Progress) {
	if report, ok := ctx.Value(progressKey{}).(func(Progress)); ok {
		report(p)
	}
}

// JobFunc is the body of a job. It must return once ctx is cancelled.
type JobFunc func(ctx context.Context) (data.Tally, error)

// Job runs one bulk operation in the background.
type Job struct {
	id       string
	name     string
	progress chan Progress
	cancel   context.CancelFunc
	done     chan struct{}

	mu    sync.Mutex
	tally data.Tally
	err   error
}

// StartJob runs fn on its own goroutine. Cancelling ctx or calling Cancel
// stops the job between items.
func StartJob(ctx context.Context, name string, fn JobFunc) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		id:       uuid.NewString(),
		name:     name,
		progress: make(chan Progress, 100),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(j.done)
		defer cancel()
		tally, err := fn(withReporter(ctx, j.sendProgress))
		j.mu.Lock()
		j.tally, j.err = tally, err
		j.mu.Unlock()
		close(j.progress)
	}()
	return j
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Name() string {
	return j.name
}

// Progress returns the update channel. It is closed when the job ends.
func (j *Job) Progress() <-chan Progress {
	return j.progress
}

func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job ends.
func (j *Job) Wait() (data.Tally, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tally, j.err
}

// sendProgress never blocks; updates are dropped when nobody is reading.
func (j *Job) sendProgress(p Progress) {
	select {
	case j.progress <- p:
	default:
	}
}
