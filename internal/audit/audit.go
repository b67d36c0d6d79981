// Package audit records committed registry mutations so every change stays attributable to its caller.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docregistry/internal/model"
	"docregistry/internal/storage"
)

// Event describes one committed mutation.
type Event struct {
	Operation  string          `json:"operation"`
	DocumentID uint64          `json:"document_id"`
	Caller     model.Principal `json:"caller"`
	Target     model.Principal `json:"target,omitempty"`
	Height     uint64          `json:"height"`
	At         time.Time       `json:"at"`
}

// Journal persists audit events.
type Journal interface {
	Record(ctx context.Context, ev Event) error
}

// ObjectJournal writes each event as a JSON object to S3-compatible storage.
type ObjectJournal struct {
	store     storage.Storage
	prefix    string
	retention time.Duration
	newID     func() string
}

// NewObjectJournal creates a journal writing under prefix ("audit" when empty).
func NewObjectJournal(store storage.Storage, prefix string) *ObjectJournal {
	if prefix == "" {
		prefix = "audit"
	}
	return &ObjectJournal{store: store, prefix: prefix, newID: uuid.NewString}
}

// WithRetention keeps every written event locked for d after the event time.
func (j *ObjectJournal) WithRetention(d time.Duration) *ObjectJournal {
	j.retention = d
	return j
}

// Key returns the object key an event is stored under.
// Keys group events per document and sort by height inside a document.
func (j *ObjectJournal) Key(ev Event, id string) string {
	return fmt.Sprintf("%s/%d/%020d-%s-%s.json", j.prefix, ev.DocumentID, ev.Height, ev.Operation, id)
}

func (j *ObjectJournal) Record(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	key := j.Key(ev, j.newID())
	opt := storage.PutObjectOptions{
		Size:        int64(len(body)),
		ContentType: "application/json",
		Metadata: map[string]string{
			"operation": ev.Operation,
			"caller":    string(ev.Caller),
		},
	}
	if j.retention > 0 {
		opt.RetainUntil = ev.At.Add(j.retention)
	}
	_, err = j.store.Put(ctx, key, bytes.NewReader(body), opt)
	if err != nil {
		return fmt.Errorf("write audit event %s: %w", key, err)
	}
	return nil
}
