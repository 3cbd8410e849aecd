package goTrust

import (
	"context"
	"time"

	"github.com/MrEthical07/goTrust/internal/stores"
)

type contextBackend interface {
	Get(ctx context.Context, principalID string) (*stores.ContextRecord, error)
	Upsert(ctx context.Context, principalID string, obs stores.Observed, now time.Time) (bool, error)
	Delete(ctx context.Context, principalID string) error
	Ping(ctx context.Context) error
}

// storeAdapter exposes an internal context backend as a [ContextStore].
type storeAdapter struct {
	backend contextBackend
	now     func() time.Time
}

func newStoreAdapter(backend contextBackend, now func() time.Time) *storeAdapter {
	return &storeAdapter{backend: backend, now: now}
}

func (a *storeAdapter) Get(ctx context.Context, principalID string) (*ExpectedContext, error) {
	rec, err := a.backend.Get(ctx, principalID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &ExpectedContext{
		PrincipalID:     rec.PrincipalID,
		Address:         rec.Address,
		ClientSignature: rec.ClientSignature,
		Location:        rec.Location,
		LastSeen:        rec.LastSeen,
	}, nil
}

func (a *storeAdapter) Upsert(ctx context.Context, principalID string, obs Observation) (bool, error) {
	return a.backend.Upsert(ctx, principalID, stores.Observed{
		Address:         obs.Address,
		ClientSignature: obs.ClientSignature,
		Location:        obs.Location,
	}, a.now())
}

func (a *storeAdapter) Delete(ctx context.Context, principalID string) error {
	return a.backend.Delete(ctx, principalID)
}

func (a *storeAdapter) Ping(ctx context.Context) error {
	return a.backend.Ping(ctx)
}
