// Package docstore defines the document-store collaborator the inventory and
// identity layers persist through.
//
// A document is a flat bag of string attributes plus store-assigned
// bookkeeping (id, timestamps, version). Nested data is the caller's business:
// it has to be encoded into a single attribute.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("document already exists")
	// ErrVersionMismatch is returned by a conditional Update whose expected
	// version differs from the stored one.
	ErrVersionMismatch = errors.New("document version mismatch")
	// ErrUnindexed is returned when a filter targets an attribute the
	// collection does not index.
	ErrUnindexed = errors.New("attribute is not indexed")
	// ErrUnknownCollection is returned for collections missing from the schema.
	ErrUnknownCollection = errors.New("unknown collection")
)

// Document is the store-native representation of one record.
type Document struct {
	ID         string
	Attributes map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int64
}

// Attr returns the named attribute, or "" when absent.
func (d Document) Attr(name string) string {
	if d.Attributes == nil {
		return ""
	}
	return d.Attributes[name]
}

// Filter is an equality predicate on one attribute.
type Filter struct {
	Attribute string
	Value     string
}

// Equal builds a Filter.
func Equal(attribute, value string) Filter {
	return Filter{Attribute: attribute, Value: value}
}

// Store is implemented by every backend.
//
// Implementations assign ids (uuid) when Create receives an empty id, stamp
// CreatedAt/UpdatedAt, start Version at 1 and bump it on every Update.
// List results are ordered by CreatedAt then ID.
type Store interface {
	List(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Create(ctx context.Context, collection, id string, attrs map[string]string) (Document, error)
	// Update replaces every attribute of the document. When ifVersion > 0 the
	// update only applies if the stored version equals ifVersion.
	Update(ctx context.Context, collection, id string, attrs map[string]string, ifVersion int64) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
	Close() error
}
