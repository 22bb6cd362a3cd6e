package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/pkg/logger"
)

type fakeStore struct {
	mu       sync.Mutex
	byConn   map[string]string
	upserts  int
	clearErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byConn: make(map[string]string)}
}

func (s *fakeStore) Upsert(_ context.Context, connectionID, hackathonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConn[connectionID] = hackathonID
	s.upserts++
	return nil
}

func (s *fakeStore) Clear(_ context.Context, connectionID string) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byConn, connectionID)
	return nil
}

func (s *fakeStore) Resolve(_ context.Context, hackathonID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for conn, h := range s.byConn {
		if h == hackathonID {
			out = append(out, conn)
		}
	}
	return out, nil
}

type fakeRegistrar struct {
	mu      sync.Mutex
	tenants []string
	err     error
}

func (r *fakeRegistrar) RegisterTenant(_ context.Context, hackathonID string) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, hackathonID)
	return nil
}

func TestJoinIsIdempotent(t *testing.T) {
	store := newFakeStore()
	reg := New(store, nil, logger.New("error"))

	ctx := context.Background()
	require.NoError(t, reg.Join(ctx, "conn-1", "ethindia-2024"))
	require.NoError(t, reg.Join(ctx, "conn-1", "ethindia-2024"))

	conns, err := reg.Resolve(ctx, "ethindia-2024")
	require.NoError(t, err)
	assert.Equal(t, []string{"conn-1"}, conns)
}

func TestResolveReflectsLeaves(t *testing.T) {
	store := newFakeStore()
	reg := New(store, nil, logger.New("error"))
	ctx := context.Background()

	// N joins, M leaves: resolve must return exactly N-M connections.
	joined := []string{"conn-1", "conn-2", "conn-3", "conn-4", "conn-5"}
	for _, id := range joined {
		require.NoError(t, reg.Join(ctx, id, "ethindia-2024"))
	}
	require.NoError(t, reg.Leave(ctx, "conn-2"))
	require.NoError(t, reg.Leave(ctx, "conn-4"))

	conns, err := reg.Resolve(ctx, "ethindia-2024")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conn-1", "conn-3", "conn-5"}, conns)
}

func TestResolveIsTenantScoped(t *testing.T) {
	store := newFakeStore()
	reg := New(store, nil, logger.New("error"))
	ctx := context.Background()

	require.NoError(t, reg.Join(ctx, "conn-1", "ethindia-2024"))
	require.NoError(t, reg.Join(ctx, "conn-2", "tinkerquest-2025"))

	conns, err := reg.Resolve(ctx, "ethindia-2024")
	require.NoError(t, err)
	assert.Equal(t, []string{"conn-1"}, conns)
}

func TestJoinRegistersTenantForDiscovery(t *testing.T) {
	store := newFakeStore()
	registrar := &fakeRegistrar{}
	reg := New(store, registrar, logger.New("error"))

	require.NoError(t, reg.Join(context.Background(), "conn-1", "ethindia-2024"))
	assert.Equal(t, []string{"ethindia-2024"}, registrar.tenants)
}

func TestJoinSurvivesRegistrarFailure(t *testing.T) {
	store := newFakeStore()
	registrar := &fakeRegistrar{err: errors.New("redis down")}
	reg := New(store, registrar, logger.New("error"))

	// Discovery registration is advisory; the join itself must succeed.
	require.NoError(t, reg.Join(context.Background(), "conn-1", "ethindia-2024"))
	conns, err := reg.Resolve(context.Background(), "ethindia-2024")
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}
