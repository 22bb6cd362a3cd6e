package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pool runs one Worker per known hackathon and discovers new hackathons at
// runtime from the backend's tenant registry, so a worker process needs no
// static tenant list.
type Pool struct {
	backend     Backend
	policy      Policy
	concurrency int
	handler     Handler
	logger      *slog.Logger
	interval    time.Duration

	// OnTenantStarted runs once before a tenant's worker starts, for
	// per-tenant setup such as consumer-group creation. An error skips
	// the tenant until the next discovery pass.
	OnTenantStarted    func(ctx context.Context, hackathonID string) error
	OnPermanentFailure func(job *Job, err error)

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

func NewPool(backend Backend, policy Policy, concurrency int, handler Handler, interval time.Duration, logger *slog.Logger) *Pool {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Pool{
		backend:     backend,
		policy:      policy,
		concurrency: concurrency,
		handler:     handler,
		logger:      logger,
		interval:    interval,
		running:     make(map[string]bool),
	}
}

// Run starts workers for the seed hackathons, then rescans the tenant
// registry on an interval, starting workers for newly seen hackathons.
// Blocks until the context is cancelled and all workers have drained.
func (p *Pool) Run(ctx context.Context, seed []string) error {
	for _, hackathonID := range seed {
		p.startTenant(ctx, hackathonID)
	}
	p.discover(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			p.discover(ctx)
		}
	}
}

func (p *Pool) discover(ctx context.Context) {
	tenants, err := p.backend.Tenants(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("tenant discovery failed", slog.Any("error", err))
		}
		return
	}
	for _, hackathonID := range tenants {
		p.startTenant(ctx, hackathonID)
	}
}

func (p *Pool) startTenant(ctx context.Context, hackathonID string) {
	p.mu.Lock()
	if p.running[hackathonID] {
		p.mu.Unlock()
		return
	}
	p.running[hackathonID] = true
	p.mu.Unlock()

	if p.OnTenantStarted != nil {
		if err := p.OnTenantStarted(ctx, hackathonID); err != nil {
			p.logger.Error("tenant setup failed",
				slog.String("hackathon_id", hackathonID),
				slog.Any("error", err))
			p.mu.Lock()
			delete(p.running, hackathonID)
			p.mu.Unlock()
			return
		}
	}

	worker := NewWorker(hackathonID, p.backend, p.policy, p.concurrency, p.handler, p.logger)
	worker.OnPermanentFailure = p.OnPermanentFailure

	p.logger.Info("worker started", slog.String("hackathon_id", hackathonID))
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("worker exited",
				slog.String("hackathon_id", hackathonID),
				slog.Any("error", err))
		}
	}()
}
