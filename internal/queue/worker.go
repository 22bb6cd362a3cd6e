package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/metrics"
)

// Handler processes one claimed job. Returning an error triggers the queue's
// retry policy; duplicate downstream effects are possible and must be
// tolerated (at-least-once).
type Handler func(ctx context.Context, job *Job) error

var (
	popTimeout        = time.Second
	promotionInterval = 500 * time.Millisecond
)

const requeueTimeout = 5 * time.Second

// detach returns a context for queue writes that must land even after the
// run context is cancelled. A claimed job whose handler loses to shutdown
// still has to reach the delayed or failed list; writing it with the
// cancelled context would drop it from every list at once.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
}

// Worker drains a single hackathon's queue with a bounded number of
// in-flight jobs. Separate hooks report completion, per-attempt failure and
// permanent failure so neither outcome is silent.
type Worker struct {
	hackathonID string
	backend     Backend
	policy      Policy
	concurrency int
	handler     Handler
	logger      *slog.Logger

	OnCompleted        func(job *Job)
	OnFailed           func(job *Job, err error)
	OnPermanentFailure func(job *Job, err error)
}

func NewWorker(hackathonID string, backend Backend, policy Policy, concurrency int, handler Handler, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 20
	}
	return &Worker{
		hackathonID: hackathonID,
		backend:     backend,
		policy:      policy,
		concurrency: concurrency,
		handler:     handler,
		logger:      logger,
	}
}

// Run consumes jobs until the context is cancelled, then waits for in-flight
// jobs to finish. In-flight jobs are never cancelled mid-fan-out; they
// complete, reschedule or dead-letter.
func (w *Worker) Run(ctx context.Context) error {
	if n, err := w.backend.Reclaim(ctx, w.hackathonID); err != nil {
		w.logger.Error("failed to reclaim abandoned jobs",
			slog.String("hackathon_id", w.hackathonID),
			slog.Any("error", err))
	} else if n > 0 {
		w.logger.Warn("reclaimed abandoned jobs",
			slog.String("hackathon_id", w.hackathonID),
			slog.Int("count", n))
	}

	go w.promoteLoop(ctx)

	slots := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case slots <- struct{}{}:
		}

		payload, err := w.backend.PopReady(ctx, w.hackathonID, popTimeout)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				wg.Wait()
				return ctx.Err()
			}
			w.logger.Error("queue pop failed",
				slog.String("hackathon_id", w.hackathonID),
				slog.Any("error", err))
			continue
		}
		if payload == nil {
			<-slots
			continue
		}

		wg.Add(1)
		go func(payload []byte) {
			defer wg.Done()
			defer func() { <-slots }()
			w.process(ctx, payload)
		}(payload)
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promotionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.backend.PromoteDue(ctx, w.hackathonID, time.Now()); err != nil && ctx.Err() == nil {
				w.logger.Error("delayed job promotion failed",
					slog.String("hackathon_id", w.hackathonID),
					slog.Any("error", err))
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, payload []byte) {
	defer w.release(ctx, payload)

	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		// Unparseable payloads cannot be retried meaningfully; dead-letter
		// them so they remain inspectable.
		w.logger.Error("dropping malformed job payload",
			slog.String("hackathon_id", w.hackathonID),
			slog.Any("error", err))
		wctx, cancel := detach(ctx)
		defer cancel()
		_ = w.backend.PushFailed(wctx, w.hackathonID, payload)
		return
	}

	job.Attempt++
	metrics.JobsConsumedTotal.WithLabelValues(w.hackathonID).Inc()
	w.logger.Debug("processing job",
		slog.String("job_id", job.ID),
		slog.String("hackathon_id", job.HackathonID),
		slog.Int("attempt", job.Attempt))

	err := w.handler(ctx, &job)
	if err == nil {
		metrics.JobsCompletedTotal.WithLabelValues(w.hackathonID).Inc()
		w.logger.Info("job completed",
			slog.String("job_id", job.ID),
			slog.String("hackathon_id", job.HackathonID))
		if w.OnCompleted != nil {
			w.OnCompleted(&job)
		}
		return
	}

	if w.OnFailed != nil {
		w.OnFailed(&job, err)
	}

	if job.Attempt < w.policy.MaxAttempts {
		w.retry(ctx, &job, err)
		return
	}
	w.deadLetter(ctx, &job, err)
}

func (w *Worker) retry(ctx context.Context, job *Job, cause error) {
	delay := w.policy.Delay(job.Attempt)
	payload, err := json.Marshal(job)
	if err != nil {
		w.logger.Error("failed to marshal job for retry",
			slog.String("job_id", job.ID),
			slog.Any("error", err))
		return
	}
	wctx, cancel := detach(ctx)
	defer cancel()
	if err := w.backend.PushDelayed(wctx, job.HackathonID, payload, time.Now().Add(delay)); err != nil {
		w.logger.Error("failed to schedule retry",
			slog.String("job_id", job.ID),
			slog.Any("error", err))
		return
	}
	metrics.JobRetriesTotal.WithLabelValues(w.hackathonID).Inc()
	w.logger.Warn("job failed, retry scheduled",
		slog.String("job_id", job.ID),
		slog.String("hackathon_id", job.HackathonID),
		slog.Int("attempt", job.Attempt),
		slog.Duration("delay", delay),
		slog.Any("error", cause))
}

func (w *Worker) deadLetter(ctx context.Context, job *Job, cause error) {
	payload, merr := json.Marshal(job)
	if merr == nil {
		wctx, cancel := detach(ctx)
		defer cancel()
		if err := w.backend.PushFailed(wctx, job.HackathonID, payload); err != nil {
			w.logger.Error("failed to dead-letter job",
				slog.String("job_id", job.ID),
				slog.Any("error", err))
		}
	}
	metrics.JobsFailedTotal.WithLabelValues(w.hackathonID).Inc()
	w.logger.Error("job failed permanently",
		slog.String("job_id", job.ID),
		slog.String("hackathon_id", job.HackathonID),
		slog.Int("attempts", job.Attempt),
		slog.Any("error", cause))
	if w.OnPermanentFailure != nil {
		w.OnPermanentFailure(job, cause)
	}
}

// release drops the claimed payload from the processing list once the job
// has reached a terminal outcome. Runs on a detached context so shutdown
// cannot leave the entry stuck; a payload that is never released is
// re-queued by Reclaim on the next worker start.
func (w *Worker) release(ctx context.Context, payload []byte) {
	wctx, cancel := detach(ctx)
	defer cancel()
	if err := w.backend.Release(wctx, w.hackathonID, payload); err != nil {
		w.logger.Error("failed to release claimed job",
			slog.String("hackathon_id", w.hackathonID),
			slog.Any("error", err))
	}
}
