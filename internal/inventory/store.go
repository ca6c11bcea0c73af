package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
	"github.com/MrSnakeDoc/vpsinv/internal/domain"
	"github.com/MrSnakeDoc/vpsinv/internal/mapper"
)

// StoreRepository persists servers as documents of the servers collection.
type StoreRepository struct {
	store docstore.Store
}

var _ Repository = (*StoreRepository)(nil)

func NewStoreRepository(store docstore.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

func (r *StoreRepository) List(ctx context.Context, userID string) ([]domain.Server, error) {
	docs, err := r.store.List(ctx, docstore.CollectionServers, docstore.Equal(mapper.AttrUserID, userID))
	if err != nil {
		return []domain.Server{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	servers := make([]domain.Server, 0, len(docs))
	for _, doc := range docs {
		servers = append(servers, mapper.FromDocument(doc))
	}
	return servers, nil
}

func (r *StoreRepository) Create(ctx context.Context, userID string, in domain.InsertServer) (domain.Server, error) {
	in, err := prepare(in)
	if err != nil {
		return domain.Server{}, err
	}
	attrs, err := mapper.ToAttributes(userID, in)
	if err != nil {
		return domain.Server{}, fmt.Errorf("%w: %w", ErrStore, err)
	}

	doc, err := r.store.Create(ctx, docstore.CollectionServers, "", attrs)
	if err != nil {
		return domain.Server{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return mapper.FromDocument(doc), nil
}

func (r *StoreRepository) Update(ctx context.Context, userID, serverID string, in domain.InsertServer) (domain.Server, error) {
	in, err := prepare(in)
	if err != nil {
		return domain.Server{}, err
	}

	current, err := r.owned(ctx, userID, serverID)
	if err != nil {
		return domain.Server{}, err
	}
	if in.Version > 0 && in.Version != current.Version {
		return domain.Server{}, &domain.ConflictError{ID: serverID, Expected: in.Version, Actual: current.Version}
	}

	attrs, err := mapper.ToAttributes(userID, in)
	if err != nil {
		return domain.Server{}, fmt.Errorf("%w: %w", ErrStore, err)
	}

	doc, err := r.store.Update(ctx, docstore.CollectionServers, serverID, attrs, in.Version)
	switch {
	case errors.Is(err, docstore.ErrVersionMismatch) && in.Version > 0:
		return domain.Server{}, &domain.ConflictError{ID: serverID, Expected: in.Version}
	case errors.Is(err, docstore.ErrNotFound):
		return domain.Server{}, ErrNotFound
	case err != nil:
		return domain.Server{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return mapper.FromDocument(doc), nil
}

func (r *StoreRepository) Delete(ctx context.Context, userID, serverID string) error {
	if _, err := r.owned(ctx, userID, serverID); err != nil {
		return err
	}

	err := r.store.Delete(ctx, docstore.CollectionServers, serverID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

// owned fetches serverID and checks it belongs to userID.
func (r *StoreRepository) owned(ctx context.Context, userID, serverID string) (docstore.Document, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionServers, serverID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return docstore.Document{}, ErrNotFound
	case err != nil:
		return docstore.Document{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if mapper.OwnerOf(doc) != userID {
		return docstore.Document{}, ErrNotFound
	}
	return doc, nil
}
