// Package memory implements repository.Store with in-process maps.
// It is used for local runs and tests; state is lost on restart.
package memory

import (
	"context"
	"sync"

	"docregistry/internal/model"
	"docregistry/internal/repository"
)

type permKey struct {
	id     uint64
	viewer model.Principal
}

// Store is a repository.Store backed by maps. Transactions are serialized by a single mutex,
// which makes every Atomic call fully serializable.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	mu      sync.Mutex
	counter uint64
	docs    map[uint64]*model.Document
	perms   map[permKey]model.Permission
}

// NewStore creates an empty store with the counter at zero.
func NewStore() *Store {
	return &Store{
		docs:  make(map[uint64]*model.Document),
		perms: make(map[permKey]model.Permission),
	}
}

var _ repository.Store = (*Store)(nil)

// Atomic stages every write made by fn and applies them only when fn returns nil.
func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:  s,
		docs:   make(map[uint64]*model.Document),
		perms:  make(map[permKey]*model.Permission),
		purged: make(map[uint64]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx overlays staged writes on top of the committed maps.
// A nil entry in docs or perms marks a staged delete.
type memTx struct {
	store   *Store
	counter *uint64
	docs    map[uint64]*model.Document
	perms   map[permKey]*model.Permission
	purged  map[uint64]bool
}

func (t *memTx) Counter(ctx context.Context) (uint64, error) {
	if t.counter != nil {
		return *t.counter, nil
	}
	return t.store.counter, nil
}

func (t *memTx) SetCounter(ctx context.Context, value uint64) error {
	t.counter = &value
	return nil
}

func (t *memTx) FindDocument(ctx context.Context, id uint64) (*model.Document, error) {
	if doc, ok := t.docs[id]; ok {
		if doc == nil {
			return nil, repository.ErrDocumentNotFound
		}
		return doc.Clone(), nil
	}
	doc, ok := t.store.docs[id]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	return doc.Clone(), nil
}

func (t *memTx) InsertDocument(ctx context.Context, doc *model.Document) error {
	if _, err := t.FindDocument(ctx, doc.ID); err == nil {
		return repository.ErrDuplicate
	}
	t.docs[doc.ID] = doc.Clone()
	return nil
}

func (t *memTx) UpdateDocument(ctx context.Context, doc *model.Document) error {
	if _, err := t.FindDocument(ctx, doc.ID); err != nil {
		return err
	}
	t.docs[doc.ID] = doc.Clone()
	return nil
}

func (t *memTx) DeleteDocument(ctx context.Context, id uint64) error {
	t.docs[id] = nil
	return nil
}

func (t *memTx) FindPermission(ctx context.Context, id uint64, viewer model.Principal) (model.Permission, bool, error) {
	key := permKey{id: id, viewer: viewer}
	if p, ok := t.perms[key]; ok {
		if p == nil {
			return model.Permission{}, false, nil
		}
		return *p, true, nil
	}
	if t.purged[id] {
		return model.Permission{}, false, nil
	}
	p, ok := t.store.perms[key]
	return p, ok, nil
}

func (t *memTx) PutPermission(ctx context.Context, perm model.Permission) error {
	p := perm
	t.perms[permKey{id: perm.DocumentID, viewer: perm.Viewer}] = &p
	return nil
}

func (t *memTx) DeletePermission(ctx context.Context, id uint64, viewer model.Principal) error {
	t.perms[permKey{id: id, viewer: viewer}] = nil
	return nil
}

func (t *memTx) DeletePermissions(ctx context.Context, id uint64) error {
	t.purged[id] = true
	for k := range t.perms {
		if k.id == id {
			delete(t.perms, k)
		}
	}
	return nil
}

func (t *memTx) commit() {
	s := t.store
	if t.counter != nil {
		s.counter = *t.counter
	}
	for id, doc := range t.docs {
		if doc == nil {
			delete(s.docs, id)
			continue
		}
		s.docs[id] = doc
	}
	for id := range t.purged {
		for k := range s.perms {
			if k.id == id {
				delete(s.perms, k)
			}
		}
	}
	for k, p := range t.perms {
		if p == nil {
			delete(s.perms, k)
			continue
		}
		s.perms[k] = *p
	}
}

// PermissionCount reports how many permission entries are stored for a document.
func (s *Store) PermissionCount(id uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.perms {
		if k.id == id {
			n++
		}
	}
	return n
}
