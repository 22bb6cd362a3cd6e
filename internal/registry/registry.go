// Package registry tracks which hackathon each live connection belongs to.
// The mapping lives in the shared identity store so any worker instance can
// resolve a tenant's connections, not just the gateway that accepted them.
package registry

import (
	"context"
	"fmt"
	"log/slog"
)

// IdentityStore is the durable connection-to-hackathon mapping.
type IdentityStore interface {
	Upsert(ctx context.Context, connectionID, hackathonID string) error
	Clear(ctx context.Context, connectionID string) error
	Resolve(ctx context.Context, hackathonID string) ([]string, error)
}

// TenantRegistrar records hackathons for worker discovery.
type TenantRegistrar interface {
	RegisterTenant(ctx context.Context, hackathonID string) error
}

type Registry struct {
	store     IdentityStore
	registrar TenantRegistrar
	logger    *slog.Logger
}

// New returns a registry over the given store. registrar may be nil when
// tenant discovery is not wanted (tests, single-tenant deployments).
func New(store IdentityStore, registrar TenantRegistrar, logger *slog.Logger) *Registry {
	return &Registry{store: store, registrar: registrar, logger: logger}
}

// Join associates a connection with a hackathon. Joining again with the same
// connection id is idempotent.
func (r *Registry) Join(ctx context.Context, connectionID, hackathonID string) error {
	if err := r.store.Upsert(ctx, connectionID, hackathonID); err != nil {
		return fmt.Errorf("join %s to %s: %w", connectionID, hackathonID, err)
	}
	if r.registrar != nil {
		// Discovery registration is advisory: a failure must not reject
		// the join.
		if err := r.registrar.RegisterTenant(ctx, hackathonID); err != nil {
			r.logger.Warn("tenant registration failed",
				slog.String("hackathon_id", hackathonID),
				slog.Any("error", err))
		}
	}
	return nil
}

// Leave removes the connection's mapping. Resolve reflects the removal
// immediately afterwards.
func (r *Registry) Leave(ctx context.Context, connectionID string) error {
	if err := r.store.Clear(ctx, connectionID); err != nil {
		return fmt.Errorf("leave %s: %w", connectionID, err)
	}
	return nil
}

// Resolve returns every live connection currently associated with the
// hackathon. All of them: partial delivery through a single representative
// connection is exactly the failure mode this registry exists to avoid.
func (r *Registry) Resolve(ctx context.Context, hackathonID string) ([]string, error) {
	conns, err := r.store.Resolve(ctx, hackathonID)
	if err != nil {
		return nil, fmt.Errorf("resolve connections for %s: %w", hackathonID, err)
	}
	return conns, nil
}
