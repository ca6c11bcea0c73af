// Package inventory persists a user's servers and answers dashboard queries
// over them.
package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/vpsinv/internal/domain"
)

var (
	// ErrLoadFailed wraps store failures while listing servers.
	ErrLoadFailed = errors.New("failed to load servers")
	// ErrStore wraps store failures while writing a server.
	ErrStore = errors.New("error saving server")
	// ErrNotFound is returned for unknown ids and for servers owned by
	// another user. The two cases are not distinguished.
	ErrNotFound = errors.New("server not found")
)

// Repository is the persistence boundary of the inventory.
//
// Update with a payload Version > 0 fails with *domain.ConflictError when the
// stored version differs. With Version 0 the last writer wins.
type Repository interface {
	// List returns userID's servers ordered by creation time then id. On
	// failure it returns an empty, non-nil slice and an error wrapping
	// ErrLoadFailed.
	List(ctx context.Context, userID string) ([]domain.Server, error)
	Create(ctx context.Context, userID string, in domain.InsertServer) (domain.Server, error)
	Update(ctx context.Context, userID, serverID string, in domain.InsertServer) (domain.Server, error)
	Delete(ctx context.Context, userID, serverID string) error
}

// prepare validates in and gives every service without an id a fresh one.
// The caller's slice is left untouched.
func prepare(in domain.InsertServer) (domain.InsertServer, error) {
	if err := in.Validate(); err != nil {
		return domain.InsertServer{}, err
	}
	out := in
	out.Services = make([]domain.Service, len(in.Services))
	for i, svc := range in.Services {
		if strings.TrimSpace(svc.ID) == "" {
			svc.ID = uuid.NewString()
		}
		out.Services[i] = svc
	}
	return out, nil
}
