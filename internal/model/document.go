package model

// Principal identifies an authenticated caller. It is opaque to the registry and only compared for equality.
type Principal string

// Document is a registered record.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
type Document struct {
	ID                uint64    `json:"id"`
	Title             string    `json:"title"`
	Owner             Principal `json:"owner"`
	FileSize          int64     `json:"file_size"`
	RegistrationBlock uint64    `json:"registration_block"`
	Description       string    `json:"description"`
	Tags              []string  `json:"tags"`
}

// Clone returns a deep copy so callers never share the tag slice with a store.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Tags = append([]string(nil), d.Tags...)
	return &out
}

// DocumentInput carries the mutable fields accepted by register and update.
type DocumentInput struct {
	Title       string   `json:"title"`
	FileSize    int64    `json:"file_size"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Permission is the access flag stored per (document, viewer).
type Permission struct {
	DocumentID uint64    `json:"document_id"`
	Viewer     Principal `json:"viewer"`
	Allowed    bool      `json:"allowed"`
}
