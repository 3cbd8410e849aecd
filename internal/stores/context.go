package stores

import (
	"errors"
	"time"
)

// ErrContextBackend is returned when the backing store cannot be reached or
// returns an unexpected result.
var ErrContextBackend = errors.New("context store backend unavailable")

// ContextRecord is the stored expected context of one principal.
type ContextRecord struct {
	PrincipalID     string
	Address         string
	ClientSignature string
	Location        string
	LastSeen        time.Time
}

// Observed is the request-time triple an upsert compares against.
type Observed struct {
	Address         string
	ClientSignature string
	Location        string
}

// Matches reports whether every field of the record equals the observation.
func (r *ContextRecord) Matches(obs Observed) bool {
	return r != nil &&
		r.Address == obs.Address &&
		r.ClientSignature == obs.ClientSignature &&
		r.Location == obs.Location
}
