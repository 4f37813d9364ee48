package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/teranos/rota/errors"
)

// SubscriberChannelBufferSize bounds the updates held for a slow subscriber.
const SubscriberChannelBufferSize = 100

// Queue is the job store plus in-process change notifications.
type Queue struct {
	store *Store

	mu   sync.RWMutex
	subs map[chan *Job]struct{}
}

func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		store: NewStore(db),
		subs:  make(map[chan *Job]struct{}),
	}
}

// Store exposes the underlying store for read-mostly callers.
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if err := q.store.CreateJob(ctx, job); err != nil {
		return errors.WithDetailf(errors.Wrap(err, "failed to enqueue job"),
			"job %s for schedule %s (%s)", job.ID, job.ScheduleDefID, job.Trigger)
	}
	q.notifySubscribers(job)
	return nil
}

// Claim takes the oldest unclaimed queued job for workerID, or returns nil.
func (q *Queue) Claim(ctx context.Context, workerID string) (*Job, error) {
	job, err := q.store.ClaimNext(ctx, workerID)
	if err != nil {
		return nil, errors.WithDetailf(err, "worker %s", workerID)
	}
	return job, nil
}

// ClaimJob claims the job with id for workerID, or returns nil if another
// worker got it first.
func (q *Queue) ClaimJob(ctx context.Context, id, workerID string) (*Job, error) {
	return q.store.ClaimJob(ctx, id, workerID)
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// UpdateJob persists a job's state and notifies subscribers
func (q *Queue) UpdateJob(ctx context.Context, job *Job) error {
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return errors.WithDetailf(err, "job %s for schedule %s -> %s", job.ID, job.ScheduleDefID, job.Status)
	}
	q.notifySubscribers(job)
	return nil
}

// ListJobs returns jobs newest first
func (q *Queue) ListJobs(ctx context.Context, f ListFilter) ([]*Job, error) {
	return q.store.ListJobs(ctx, f)
}

// FindActiveJob returns the queued or running job of a schedule, or nil.
func (q *Queue) FindActiveJob(ctx context.Context, scheduleDefID string) (*Job, error) {
	return q.store.FindActiveJob(ctx, scheduleDefID)
}

// ReleaseStaleClaims returns jobs claimed before cutoff to the queue
func (q *Queue) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int, error) {
	return q.store.ReleaseStaleClaims(ctx, cutoff)
}

// GetStats returns queue statistics
func (q *Queue) GetStats(ctx context.Context) (*QueueStats, error) {
	return q.store.GetStats(ctx)
}

// Subscribe returns a channel receiving a copy of every job written through
// this queue. Writes by other processes are not seen. Pair with Unsubscribe.
func (q *Queue) Subscribe() chan *Job {
	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.mu.Lock()
	q.subs[ch] = struct{}{}
	q.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch. The channel is left open.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	delete(q.subs, ch)
	q.mu.Unlock()
}

// notifySubscribers never blocks; a full subscriber misses the update.
func (q *Queue) notifySubscribers(job *Job) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	snapshot := *job
	for ch := range q.subs {
		select {
		case ch <- &snapshot:
		default:
		}
	}
}
