package repository

import (
	"context"
	"errors"

	"docregistry/internal/model"
)

// ErrDocumentNotFound is returned by lookups for a document id the store does not hold.
var ErrDocumentNotFound = errors.New("document not found")

// Store provides atomic access to the document store, the permission store and the document counter.
// No business logic here, strictly persistence operations.
type Store interface {
	// Atomic runs fn inside a single transaction. Writes made through tx become visible to other
	// callers only if fn returns nil; otherwise none of them are applied.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the stores available inside one Store.Atomic call.
type Tx interface {
	// Counter returns the current document counter value.
	Counter(ctx context.Context) (uint64, error)
	// SetCounter stores a new counter value.
	SetCounter(ctx context.Context, value uint64) error

	// FindDocument returns a document by its ID or ErrDocumentNotFound.
	FindDocument(ctx context.Context, id uint64) (*model.Document, error)
	// InsertDocument stores a new document record.
	InsertDocument(ctx context.Context, doc *model.Document) error
	// UpdateDocument replaces an existing document record.
	UpdateDocument(ctx context.Context, doc *model.Document) error
	// DeleteDocument removes a document record. Missing rows are not an error.
	DeleteDocument(ctx context.Context, id uint64) error

	// FindPermission returns the permission entry for (id, viewer). found is false when no entry exists.
	FindPermission(ctx context.Context, id uint64, viewer model.Principal) (perm model.Permission, found bool, err error)
	// PutPermission inserts or overwrites a permission entry.
	PutPermission(ctx context.Context, perm model.Permission) error
	// DeletePermission removes the (id, viewer) entry. Missing entries are not an error.
	DeletePermission(ctx context.Context, id uint64, viewer model.Principal) error
	// DeletePermissions removes every entry recorded for a document.
	DeletePermissions(ctx context.Context, id uint64) error
}
