package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
	"github.com/MrSnakeDoc/vpsinv/internal/domain"
)

// MemoryRepository keeps servers in a map. It never fails on I/O.
type MemoryRepository struct {
	mu      sync.Mutex
	servers map[string]ownedServer // serverID -> server
	now     func() time.Time
}

type ownedServer struct {
	userID string
	server domain.Server
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		servers: make(map[string]ownedServer),
		now:     docstore.Now,
	}
}

func (r *MemoryRepository) List(_ context.Context, userID string) ([]domain.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Server, 0)
	for _, rec := range r.servers {
		if rec.userID == userID {
			out = append(out, rec.server.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) Create(_ context.Context, userID string, in domain.InsertServer) (domain.Server, error) {
	in, err := prepare(in)
	if err != nil {
		return domain.Server{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := domain.Server{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	assign(&s, in)
	r.servers[s.ID] = ownedServer{userID: userID, server: s}
	return s.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, userID, serverID string, in domain.InsertServer) (domain.Server, error) {
	in, err := prepare(in)
	if err != nil {
		return domain.Server{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.servers[serverID]
	if !ok || rec.userID != userID {
		return domain.Server{}, ErrNotFound
	}
	if in.Version > 0 && in.Version != rec.server.Version {
		return domain.Server{}, &domain.ConflictError{ID: serverID, Expected: in.Version, Actual: rec.server.Version}
	}

	s := rec.server
	assign(&s, in)
	s.UpdatedAt = docstore.NextUpdate(s.UpdatedAt, r.now())
	s.Version++
	r.servers[serverID] = ownedServer{userID: userID, server: s}
	return s.Clone(), nil
}

func (r *MemoryRepository) Delete(_ context.Context, userID, serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.servers[serverID]
	if !ok || rec.userID != userID {
		return ErrNotFound
	}
	delete(r.servers, serverID)
	return nil
}

// assign copies the mutable fields of in onto s.
func assign(s *domain.Server, in domain.InsertServer) {
	s.Name = in.Name
	s.IP = in.IP
	s.OS = in.OS
	s.Provider = in.Provider
	s.Location = in.Location
	s.Notes = in.Notes
	s.Services = make([]domain.Service, len(in.Services))
	copy(s.Services, in.Services)
}
