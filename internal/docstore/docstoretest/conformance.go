// Package docstoretest holds the behavior every docstore.Store backend must
// share, as a test suite the backends run against themselves.
package docstoretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
)

// Run exercises store. newStore must return an empty store using
// docstore.DefaultSchema.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Helper()

	t.Run("create assigns id, timestamps and version", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		doc, err := s.Create(ctx, docstore.CollectionServers, "", map[string]string{
			"name":   "web1",
			"userId": "u1",
			"notes":  "",
		})
		require.NoError(t, err)

		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, int64(1), doc.Version)
		assert.False(t, doc.CreatedAt.IsZero())
		assert.True(t, doc.CreatedAt.Equal(doc.UpdatedAt))
		assert.Equal(t, "web1", doc.Attr("name"))

		got, err := s.Get(ctx, docstore.CollectionServers, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, got.ID)
		assert.Equal(t, "u1", got.Attr("userId"))
		assert.Equal(t, "", got.Attr("notes"))
		_, present := got.Attributes["notes"]
		assert.True(t, present, "empty attributes must be kept")
		assert.True(t, doc.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("create with explicit id rejects duplicates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, docstore.CollectionSessions, "sess-1", map[string]string{"userId": "u1"})
		require.NoError(t, err)

		_, err = s.Create(ctx, docstore.CollectionSessions, "sess-1", map[string]string{"userId": "u2"})
		assert.ErrorIs(t, err, docstore.ErrExists)
	})

	t.Run("list filters by indexed attribute", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, owner := range []string{"u1", "u2", "u1"} {
			_, err := s.Create(ctx, docstore.CollectionServers, "", map[string]string{"userId": owner, "name": "srv-" + owner})
			require.NoError(t, err)
		}

		mine, err := s.List(ctx, docstore.CollectionServers, docstore.Equal("userId", "u1"))
		require.NoError(t, err)
		assert.Len(t, mine, 2)
		for _, d := range mine {
			assert.Equal(t, "u1", d.Attr("userId"))
		}

		all, err := s.List(ctx, docstore.CollectionServers)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := s.List(ctx, docstore.CollectionServers, docstore.Equal("userId", "nobody"))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("list orders by creation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []string
		for i := 0; i < 5; i++ {
			d, err := s.Create(ctx, docstore.CollectionServers, "", map[string]string{"userId": "u1"})
			require.NoError(t, err)
			ids = append(ids, d.ID)
		}

		docs, err := s.List(ctx, docstore.CollectionServers, docstore.Equal("userId", "u1"))
		require.NoError(t, err)
		require.Len(t, docs, 5)
		for i := 1; i < len(docs); i++ {
			prev, cur := docs[i-1], docs[i]
			ordered := prev.CreatedAt.Before(cur.CreatedAt) ||
				(prev.CreatedAt.Equal(cur.CreatedAt) && prev.ID < cur.ID)
			assert.True(t, ordered, "documents %d and %d out of order", i-1, i)
		}
	})

	t.Run("list rejects unindexed filters", func(t *testing.T) {
		s := newStore(t)
		_, err := s.List(context.Background(), docstore.CollectionServers, docstore.Equal("name", "web1"))
		assert.ErrorIs(t, err, docstore.ErrUnindexed)
	})

	t.Run("unknown collection", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(context.Background(), "widgets", "", map[string]string{})
		assert.ErrorIs(t, err, docstore.ErrUnknownCollection)
	})

	t.Run("update replaces attributes and keeps identity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, docstore.CollectionServers, "", map[string]string{
			"userId": "u1", "name": "web1", "ip": "1.1.1.1",
		})
		require.NoError(t, err)

		updated, err := s.Update(ctx, docstore.CollectionServers, created.ID, map[string]string{
			"userId": "u1", "name": "web2",
		}, 0)
		require.NoError(t, err)

		assert.Equal(t, created.ID, updated.ID)
		assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
		assert.Equal(t, int64(2), updated.Version)
		assert.Equal(t, "web2", updated.Attr("name"))
		_, hasIP := updated.Attributes["ip"]
		assert.False(t, hasIP, "update is a full replace")

		got, err := s.Get(ctx, docstore.CollectionServers, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "web2", got.Attr("name"))
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("update moves index entries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, docstore.CollectionServers, "", map[string]string{"userId": "u1"})
		require.NoError(t, err)

		_, err = s.Update(ctx, docstore.CollectionServers, created.ID, map[string]string{"userId": "u2"}, 0)
		require.NoError(t, err)

		old, err := s.List(ctx, docstore.CollectionServers, docstore.Equal("userId", "u1"))
		require.NoError(t, err)
		assert.Empty(t, old)

		moved, err := s.List(ctx, docstore.CollectionServers, docstore.Equal("userId", "u2"))
		require.NoError(t, err)
		assert.Len(t, moved, 1)
	})

	t.Run("conditional update", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, docstore.CollectionServers, "", map[string]string{"userId": "u1"})
		require.NoError(t, err)

		_, err = s.Update(ctx, docstore.CollectionServers, created.ID, map[string]string{"userId": "u1", "name": "a"}, 1)
		require.NoError(t, err)

		_, err = s.Update(ctx, docstore.CollectionServers, created.ID, map[string]string{"userId": "u1", "name": "b"}, 1)
		assert.ErrorIs(t, err, docstore.ErrVersionMismatch)

		got, err := s.Get(ctx, docstore.CollectionServers, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "a", got.Attr("name"))
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("missing documents", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Get(ctx, docstore.CollectionServers, "missing")
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		_, err = s.Update(ctx, docstore.CollectionServers, "missing", map[string]string{}, 0)
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		err = s.Delete(ctx, docstore.CollectionServers, "missing")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("delete removes document and index entries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, docstore.CollectionServers, "", map[string]string{"userId": "u1"})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, docstore.CollectionServers, created.ID))

		_, err = s.Get(ctx, docstore.CollectionServers, created.ID)
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		docs, err := s.List(ctx, docstore.CollectionServers, docstore.Equal("userId", "u1"))
		require.NoError(t, err)
		assert.Empty(t, docs)

		assert.ErrorIs(t, s.Delete(ctx, docstore.CollectionServers, created.ID), docstore.ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
