package export

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invoicecraft/studio/internal/apperr"
	"github.com/invoicecraft/studio/internal/invoice"
	"github.com/invoicecraft/studio/internal/metrics"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

var ErrJobNotFound = errors.New("export job not found")

// JobError is the client-facing failure of a job.
type JobError struct {
	Code      apperr.Kind `json:"code"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

// Job is a snapshot of an asynchronous export.
type Job struct {
	ID          string     `json:"jobId"`
	InvoiceID   string     `json:"invoiceId"`
	Status      JobStatus  `json:"status"`
	RequestedAt time.Time  `json:"requestedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	Pages       int        `json:"pages,omitempty"`
	Size        int        `json:"size,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
}

// DocumentExporter is the part of Exporter the queue drives.
type DocumentExporter interface {
	Export(ctx context.Context, inv invoice.Invoice) (Artifact, error)
}

type jobState struct {
	job      Job
	invoice  invoice.Invoice
	artifact Artifact
	done     chan struct{}
}

// JobQueue runs exports in the background with a single worker slot, so at
// most one capture is in flight per process. Jobs are not retried and cannot
// be cancelled once started.
type JobQueue struct {
	mu          sync.RWMutex
	jobs        map[string]*jobState
	exporter    DocumentExporter
	retention   time.Duration
	workerSlots chan struct{}
	ctx         context.Context
}

// NewJobQueue starts a queue whose jobs run under ctx. Finished jobs are
// forgotten after retention; zero keeps them for the life of the process.
func NewJobQueue(ctx context.Context, exporter DocumentExporter, retention time.Duration) *JobQueue {
	return &JobQueue{
		jobs:        map[string]*jobState{},
		exporter:    exporter,
		retention:   retention,
		workerSlots: make(chan struct{}, 1),
		ctx:         ctx,
	}
}

// Enqueue snapshots inv and returns the queued job immediately.
func (q *JobQueue) Enqueue(inv invoice.Invoice) Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	state := &jobState{
		job: Job{
			ID:          uuid.NewString(),
			InvoiceID:   inv.ID,
			Status:      JobQueued,
			RequestedAt: time.Now().UTC(),
		},
		invoice: inv,
		done:    make(chan struct{}),
	}
	q.jobs[state.job.ID] = state
	metrics.ExportQueueDepth.Inc()

	go q.runJob(state)
	return cloneJob(state.job)
}

func (q *JobQueue) Get(jobID string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	state, ok := q.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return cloneJob(state.job), true
}

// Artifact returns the finished document of a succeeded job.
func (q *JobQueue) Artifact(jobID string) (Artifact, Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	state, ok := q.jobs[jobID]
	if !ok {
		return Artifact{}, Job{}, ErrJobNotFound
	}
	return state.artifact, cloneJob(state.job), nil
}

// Wait blocks until the job reaches a terminal status or ctx ends.
func (q *JobQueue) Wait(ctx context.Context, jobID string) (Job, error) {
	q.mu.RLock()
	state, ok := q.jobs[jobID]
	q.mu.RUnlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}
	select {
	case <-state.done:
		job, _ := q.Get(jobID)
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *JobQueue) runJob(state *jobState) {
	q.workerSlots <- struct{}{}
	defer func() { <-q.workerSlots }()
	defer close(state.done)

	metrics.ExportQueueDepth.Dec()
	start := time.Now().UTC()
	q.update(state, func(job *Job) {
		job.Status = JobRunning
		job.StartedAt = &start
	})

	art, err := q.exporter.Export(q.ctx, state.invoice)
	now := time.Now().UTC()
	if err != nil {
		q.update(state, func(job *Job) {
			job.Status = JobFailed
			job.FinishedAt = &now
			job.Error = &JobError{Code: apperr.KindOf(err), Message: err.Error(), Retryable: apperr.Retryable(err)}
		})
	} else {
		q.mu.Lock()
		state.artifact = art
		state.job.Status = JobSucceeded
		state.job.FinishedAt = &now
		state.job.Filename = art.Filename
		state.job.Pages = art.Pages
		state.job.Size = len(art.Data)
		q.mu.Unlock()
	}

	if q.retention > 0 {
		go q.expire(state.job.ID)
	}
}

func (q *JobQueue) expire(jobID string) {
	timer := time.NewTimer(q.retention)
	defer timer.Stop()
	select {
	case <-timer.C:
		q.mu.Lock()
		delete(q.jobs, jobID)
		q.mu.Unlock()
	case <-q.ctx.Done():
	}
}

func (q *JobQueue) update(state *jobState, mutate func(job *Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mutate(&state.job)
}

func cloneJob(job Job) Job {
	clone := job
	if job.StartedAt != nil {
		t := *job.StartedAt
		clone.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		clone.FinishedAt = &t
	}
	if job.Error != nil {
		e := *job.Error
		clone.Error = &e
	}
	return clone
}
