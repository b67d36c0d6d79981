package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"docregistry/internal/model"
	"docregistry/internal/repository"
)

// RegistryPostgres is a PostgreSQL implementation of repository.Store.
// It uses database/sql with parameterized queries and contains no business logic.
// Rows read inside a transaction are locked with FOR UPDATE so an authorization check and the
// write it guards always see the same row.
type RegistryPostgres struct {
	db *sql.DB
}

// NewRegistryPostgres creates a new RegistryPostgres store.
func NewRegistryPostgres(db *sql.DB) *RegistryPostgres {
	return &RegistryPostgres{db: db}
}

var _ repository.Store = (*RegistryPostgres)(nil)

// Atomic runs fn inside one database transaction.
func (r *RegistryPostgres) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	return repository.WithTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx *sql.Tx
}

// Counter reads and locks the single counter row.
func (t *pgTx) Counter(ctx context.Context) (uint64, error) {
	const q = `SELECT value FROM registry_counter WHERE id = 1 FOR UPDATE`
	var v uint64
	if err := t.tx.QueryRowContext(ctx, q).Scan(&v); err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return v, nil
}

func (t *pgTx) SetCounter(ctx context.Context, value uint64) error {
	const q = `UPDATE registry_counter SET value = $1 WHERE id = 1`
	if _, err := t.tx.ExecContext(ctx, q, value); err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	return nil
}

// FindDocument fetches and locks a single document by its ID.
func (t *pgTx) FindDocument(ctx context.Context, id uint64) (*model.Document, error) {
	const q = `
		SELECT id, title, owner, file_size, registration_block, description, tags
		FROM documents
		WHERE id = $1
		FOR UPDATE
	`
	var (
		d     model.Document
		owner string
		tags  []byte
	)
	if err := t.tx.QueryRowContext(ctx, q, id).Scan(
		&d.ID,
		&d.Title,
		&owner,
		&d.FileSize,
		&d.RegistrationBlock,
		&d.Description,
		&tags,
	); err != nil {
		return nil, repository.MapError(err)
	}
	d.Owner = model.Principal(owner)
	if err := json.Unmarshal(tags, &d.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of document %d: %w", id, err)
	}
	return &d, nil
}

// InsertDocument inserts a new document row.
func (t *pgTx) InsertDocument(ctx context.Context, doc *model.Document) error {
	const q = `
		INSERT INTO documents (id, title, owner, file_size, registration_block, description, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, q,
		doc.ID,
		doc.Title,
		string(doc.Owner),
		doc.FileSize,
		doc.RegistrationBlock,
		doc.Description,
		tags,
	)
	return repository.MapError(err)
}

// UpdateDocument rewrites the mutable columns. registration_block is never updated.
func (t *pgTx) UpdateDocument(ctx context.Context, doc *model.Document) error {
	const q = `
		UPDATE documents
		SET title = $2, owner = $3, file_size = $4, description = $5, tags = $6
		WHERE id = $1
	`
	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, q,
		doc.ID,
		doc.Title,
		string(doc.Owner),
		doc.FileSize,
		doc.Description,
		tags,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrDocumentNotFound
	}
	return nil
}

// DeleteDocument removes a document row. It does not return an error if the row does not exist.
func (t *pgTx) DeleteDocument(ctx context.Context, id uint64) error {
	const q = `DELETE FROM documents WHERE id = $1`
	_, err := t.tx.ExecContext(ctx, q, id)
	return err
}

func (t *pgTx) FindPermission(ctx context.Context, id uint64, viewer model.Principal) (model.Permission, bool, error) {
	const q = `SELECT allowed FROM document_permissions WHERE doc_id = $1 AND viewer = $2`
	perm := model.Permission{DocumentID: id, Viewer: viewer}
	err := t.tx.QueryRowContext(ctx, q, id, string(viewer)).Scan(&perm.Allowed)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Permission{}, false, nil
		}
		return model.Permission{}, false, err
	}
	return perm, true, nil
}

func (t *pgTx) PutPermission(ctx context.Context, perm model.Permission) error {
	const q = `
		INSERT INTO document_permissions (doc_id, viewer, allowed)
		VALUES ($1, $2, $3)
		ON CONFLICT (doc_id, viewer) DO UPDATE SET allowed = EXCLUDED.allowed
	`
	_, err := t.tx.ExecContext(ctx, q, perm.DocumentID, string(perm.Viewer), perm.Allowed)
	return err
}

func (t *pgTx) DeletePermission(ctx context.Context, id uint64, viewer model.Principal) error {
	const q = `DELETE FROM document_permissions WHERE doc_id = $1 AND viewer = $2`
	_, err := t.tx.ExecContext(ctx, q, id, string(viewer))
	return err
}

func (t *pgTx) DeletePermissions(ctx context.Context, id uint64) error {
	const q = `DELETE FROM document_permissions WHERE doc_id = $1`
	_, err := t.tx.ExecContext(ctx, q, id)
	return err
}
