package async

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
)

// JobExecutor runs one claimed job. It owns every status transition of the
// job, including failure; the pool only logs what it returns.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// MaintenanceFunc is run periodically by the pool (expired lease recovery,
// log pruning).
type MaintenanceFunc func(ctx context.Context) error

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers             int           `json:"workers"`              // Number of concurrent workers
	PollInterval        time.Duration `json:"poll_interval"`        // How often idle workers check for jobs
	MaintenanceInterval time.Duration `json:"maintenance_interval"` // 0 disables maintenance
	StopTimeout         time.Duration `json:"stop_timeout"`         // Grace period for in-flight jobs
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:             2,
		PollInterval:        2 * time.Second,
		MaintenanceInterval: time.Minute,
		StopTimeout:         30 * time.Second,
	}
}

// WorkerPool manages a pool of workers that process schedule jobs
type WorkerPool struct {
	queue       *Queue
	executor    JobExecutor
	maintenance MaintenanceFunc
	config      WorkerPoolConfig
	holder      string // lease holder prefix, unique per process
	parentCtx   context.Context
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *zap.SugaredLogger

	mu            sync.Mutex
	jobsProcessed int
	activeWorkers int
}

// NewWorkerPool creates a pool. Cancelling ctx stops the workers.
func NewWorkerPool(ctx context.Context, queue *Queue, executor JobExecutor, cfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultWorkerPoolConfig().StopTimeout
	}
	workerCtx, cancel := context.WithCancel(ctx)
	host, _ := os.Hostname()

	return &WorkerPool{
		queue:     queue,
		executor:  executor,
		config:    cfg,
		holder:    fmt.Sprintf("%s-%d", host, os.Getpid()),
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		logger:    logger.OrNop(log).Named("pulse"),
	}
}

// SetMaintenance installs the periodic maintenance hook. Call before Start.
func (wp *WorkerPool) SetMaintenance(fn MaintenanceFunc) {
	wp.maintenance = fn
}

// WorkerID names worker i of this pool; it is stored as claimed_by and used
// as the lease holder.
func (wp *WorkerPool) WorkerID(i int) string {
	return fmt.Sprintf("%s/w%d", wp.holder, i)
}

// Start begins processing jobs with the worker pool
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	// Context cancelled by a previous Stop: derive a fresh one
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	wp.jobsProcessed = 0
	ctx := wp.ctx
	wp.mu.Unlock()

	wp.logger.Infow("Starting worker pool",
		"workers", wp.config.Workers,
		"poll_interval", wp.config.PollInterval)

	if wp.maintenance != nil && wp.config.MaintenanceInterval > 0 {
		wp.runMaintenance(ctx) // recover whatever a crashed predecessor left behind
		wp.wg.Add(1)
		go wp.maintenanceLoop(ctx)
	}

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop cancels the workers and waits for in-flight jobs up to StopTimeout.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	wp.cancel()
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Infow("Worker pool stopped - all workers exited cleanly")
	case <-time.After(wp.config.StopTimeout):
		wp.logger.Warnw("Worker pool stop timed out - jobs may still be finishing",
			"timeout", wp.config.StopTimeout)
	}
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	workerID := wp.WorkerID(id)

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	// Error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoffDuration := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain: keep claiming while there is work
		for {
			processed, err := wp.ProcessNext(ctx, workerID)
			if err == nil {
				if errorCount > 0 {
					wp.logger.Infow("Worker recovered from errors",
						logger.FieldWorkerID, workerID,
						"previous_error_count", errorCount)
				}
				errorCount = 0
				backoffDuration = time.Second
				if processed && ctx.Err() == nil {
					continue
				}
				break
			}

			if ctx.Err() != nil || errors.Is(err, sql.ErrConnDone) {
				return // shutting down
			}
			errorCount++
			wp.logger.Errorw("Worker error processing job",
				logger.FieldWorkerID, workerID,
				logger.FieldError, err,
				"consecutive_errors", errorCount)

			if errorCount >= maxConsecutiveErrors {
				wp.logger.Warnw("Worker backing off due to consecutive errors",
					logger.FieldWorkerID, workerID,
					logger.FieldBackoff, backoffDuration,
					"consecutive_errors", errorCount)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoffDuration):
				}
				backoffDuration = min(backoffDuration*2, maxBackoff)
			}
			break
		}
	}
}

// ProcessNext claims and executes one job. It reports whether a job was
// found. Errors returned are store failures; job failures are recorded on
// the job by the executor.
func (wp *WorkerPool) ProcessNext(ctx context.Context, workerID string) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	job, err := wp.queue.Claim(ctx, workerID)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim job")
	}
	if job == nil {
		return false, nil
	}

	wp.mu.Lock()
	wp.jobsProcessed++
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	if err := wp.executor.Execute(ctx, job); err != nil {
		if ctx.Err() != nil {
			wp.logger.Infow("Job interrupted by shutdown", logger.FieldJobID, job.ID)
			return true, nil
		}
		wp.logger.Debugw("Job finished with error",
			logger.FieldJobID, job.ID,
			logger.FieldError, err)
	}
	return true, nil
}

func (wp *WorkerPool) maintenanceLoop(ctx context.Context) {
	defer wp.wg.Done()
	ticker := time.NewTicker(wp.config.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.runMaintenance(ctx)
		}
	}
}

func (wp *WorkerPool) runMaintenance(ctx context.Context) {
	if err := wp.maintenance(ctx); err != nil && ctx.Err() == nil {
		wp.logger.Warnw("Maintenance failed", logger.FieldError, err)
	}
}

// Stats reports jobs processed since Start and jobs currently executing.
func (wp *WorkerPool) Stats() (processed, active int) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.jobsProcessed, wp.activeWorkers
}

// Queue returns the job queue (useful for enqueuing jobs)
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.config.Workers
}
