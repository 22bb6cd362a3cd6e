package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/models"
)

// Set owns one queue per hackathon. Queues are created lazily on first use
// and live for the rest of the process; creation is exactly-once per tenant.
type Set struct {
	backend Backend
	policy  Policy
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[string]*Queue
}

func NewSet(backend Backend, policy Policy, logger *slog.Logger) *Set {
	return &Set{
		backend: backend,
		policy:  policy,
		logger:  logger,
		queues:  make(map[string]*Queue),
	}
}

// Get returns the hackathon's queue, creating it on first use.
func (s *Set) Get(hackathonID string) *Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[hackathonID]
	if !ok {
		q = &Queue{hackathonID: hackathonID, backend: s.backend, policy: s.policy}
		s.queues[hackathonID] = q
	}
	return q
}

// Enqueue creates a fan-out job for the notification on the hackathon's
// queue and returns the job id.
func (s *Set) Enqueue(ctx context.Context, hackathonID string, n *models.Notification) (string, error) {
	jobID, err := s.Get(hackathonID).Enqueue(ctx, n)
	if err != nil {
		return "", err
	}
	s.logger.Debug("job enqueued",
		slog.String("job_id", jobID),
		slog.String("hackathon_id", hackathonID),
		slog.Uint64("notification_id", uint64(n.ID)))
	return jobID, nil
}

// Queue is a single tenant's job queue.
type Queue struct {
	hackathonID string
	backend     Backend
	policy      Policy
}

func (q *Queue) Enqueue(ctx context.Context, n *models.Notification) (string, error) {
	job := &Job{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		HackathonID:    q.hackathonID,
		Message:        n.Message,
		Type:           n.Type,
		EnqueuedAt:     time.Now(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.backend.RegisterTenant(ctx, q.hackathonID); err != nil {
		return "", fmt.Errorf("register tenant %s: %w", q.hackathonID, err)
	}
	if err := q.backend.PushReady(ctx, q.hackathonID, payload); err != nil {
		return "", fmt.Errorf("enqueue job for %s: %w", q.hackathonID, err)
	}
	return job.ID, nil
}
