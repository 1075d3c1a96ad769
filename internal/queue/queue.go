// Package queue implements the in-process encoding job queue: priority
// ordered, bounded concurrency, bounded retries. Job state lives in process
// memory only; jobs lost to a restart are re-created by the watchdog's
// orphaned-PENDING sweep.
package queue

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of a job in the queue.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultPriority is used when callers have no ordering preference.
// Lower values dequeue sooner.
const DefaultPriority = 10

// DefaultMaxAttempts bounds retries per job.
const DefaultMaxAttempts = 3

// Job is one unit of encoding work. Values handed out by the queue are
// snapshots; mutating them does not affect queue state.
type Job struct {
	ID          uuid.UUID
	VideoID     uuid.UUID
	InputPath   string
	Priority    int
	Status      Status
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	LastError   string

	seq uint64
}

// ErrUnknownJob is returned for job ids the queue has no record of.
var ErrUnknownJob = errors.New("unknown job id")

// Stats are per-status job counts.
type Stats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Queue is safe for concurrent use.
type Queue struct {
	mu            sync.Mutex
	jobs          map[uuid.UUID]*Job
	pending       []*Job // sorted by (priority, insertion order)
	processing    int
	maxConcurrent int
	nextSeq       uint64

	signal chan struct{}
}

// New creates a queue permitting at most maxConcurrent jobs in processing.
func New(maxConcurrent int) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		jobs:          make(map[uuid.UUID]*Job),
		maxConcurrent: maxConcurrent,
		signal:        make(chan struct{}, 1),
	}
}

// Signal returns a channel that receives a token whenever a job becomes
// available. Used by the worker alongside its periodic poll; a token lost
// to a race is recovered within one poll period.
func (q *Queue) Signal() <-chan struct{} {
	return q.signal
}

// Enqueue adds a job for videoID and returns its id. The queue does not
// dedupe by video id; callers check FindByVideoID first.
func (q *Queue) Enqueue(videoID uuid.UUID, inputPath string, priority int) uuid.UUID {
	q.mu.Lock()
	job := &Job{
		ID:          uuid.New(),
		VideoID:     videoID,
		InputPath:   inputPath,
		Priority:    priority,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   time.Now().UTC(),
		seq:         q.nextSeq,
	}
	q.nextSeq++
	q.jobs[job.ID] = job
	q.insertPending(job)
	q.mu.Unlock()

	q.notify()
	return job.ID
}

// DequeueNext returns the next pending job, or nil when the queue is empty
// or the concurrency cap is reached. It never blocks. The returned job has
// already been moved to processing with its attempt counted.
func (q *Queue) DequeueNext() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing >= q.maxConcurrent || len(q.pending) == 0 {
		return nil
	}

	job := q.pending[0]
	q.pending = q.pending[1:]

	now := time.Now().UTC()
	job.Status = StatusProcessing
	job.Attempts++
	job.StartedAt = &now
	q.processing++

	return snapshot(job)
}

// MarkComplete transitions a processing job to completed.
func (q *Queue) MarkComplete(jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return ErrUnknownJob
	}
	if job.Status == StatusProcessing {
		q.processing--
	}
	now := time.Now().UTC()
	job.Status = StatusCompleted
	job.FinishedAt = &now
	job.LastError = ""
	return nil
}

// MarkFailed records a failure. With retry and remaining attempts the job
// returns to pending (re-sorted by priority); otherwise it is terminally
// failed.
func (q *Queue) MarkFailed(jobID uuid.UUID, errMsg string, retry bool) error {
	q.mu.Lock()

	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return ErrUnknownJob
	}
	if job.Status == StatusProcessing {
		q.processing--
	}
	job.LastError = errMsg

	if retry && job.Attempts < job.MaxAttempts {
		job.Status = StatusPending
		job.StartedAt = nil
		q.insertPending(job)
		q.mu.Unlock()
		q.notify()
		return nil
	}

	now := time.Now().UTC()
	job.Status = StatusFailed
	job.FinishedAt = &now
	q.mu.Unlock()
	return nil
}

// FindByVideoID returns the most recently created job for videoID, if any.
func (q *Queue) FindByVideoID(videoID uuid.UUID) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var found *Job
	for _, job := range q.jobs {
		if job.VideoID != videoID {
			continue
		}
		if found == nil || job.seq > found.seq {
			found = job
		}
	}
	if found == nil {
		return nil, false
	}
	return snapshot(found), true
}

// Stats returns job counts by status.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	for _, job := range q.jobs {
		switch job.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// PurgeOld removes terminal jobs that finished more than maxAge ago and
// returns how many were removed.
func (q *Queue) PurgeOld(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, job := range q.jobs {
		if job.Status != StatusCompleted && job.Status != StatusFailed {
			continue
		}
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed
}

// insertPending adds job to the pending list keeping (priority, seq) order.
// Caller holds q.mu.
func (q *Queue) insertPending(job *Job) {
	idx := sort.Search(len(q.pending), func(i int) bool {
		p := q.pending[i]
		if p.Priority != job.Priority {
			return p.Priority > job.Priority
		}
		return p.seq > job.seq
	})
	q.pending = append(q.pending, nil)
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = job
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func snapshot(job *Job) *Job {
	clone := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		clone.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		clone.FinishedAt = &t
	}
	return &clone
}
