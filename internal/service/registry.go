package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"docregistry/internal/audit"
	"docregistry/internal/height"
	"docregistry/internal/model"
	"docregistry/internal/repository"
)

// Operation names used in metrics, spans and audit events.
const (
	OpRegister          = "register"
	OpUpdate            = "update"
	OpDeregister        = "deregister"
	OpReassignOwnership = "reassign_ownership"
	OpGrantAccess       = "grant_access"
	OpRevokeAccess      = "revoke_access"
	OpExtendTags        = "extend_tags"
	OpFreeze            = "freeze"
	OpAuthenticate      = "authenticate"
	OpStatistics        = "get_statistics"
	OpGet               = "get_document"
)

// GrantMode selects what GrantAccess does after its authorization check.
type GrantMode string

const (
	// GrantPersist stores an allowed permission entry for the viewer.
	GrantPersist GrantMode = "persist"
	// GrantCheckOnly performs the existence and ownership checks and writes nothing.
	GrantCheckOnly GrantMode = "check-only"
)

// ParseGrantMode validates a configured grant mode. An empty string selects GrantPersist.
func ParseGrantMode(s string) (GrantMode, error) {
	switch GrantMode(s) {
	case "", GrantPersist:
		return GrantPersist, nil
	case GrantCheckOnly:
		return GrantCheckOnly, nil
	default:
		return "", fmt.Errorf("unknown grant mode %q", s)
	}
}

// RegistryService defines the document registry operations.
// Every method runs as one atomic store transaction: a failed call leaves all state unchanged.
type RegistryService interface {
	// Register validates in and stores a new document owned by caller. It returns the new document id.
	Register(ctx context.Context, caller model.Principal, in model.DocumentInput) (uint64, error)

	// Update replaces title, file size, description and tags of a document owned by caller.
	Update(ctx context.Context, caller model.Principal, id uint64, in model.DocumentInput) error

	// Deregister removes a document owned by caller along with its permission entries.
	Deregister(ctx context.Context, caller model.Principal, id uint64) error

	// ReassignOwnership transfers a document owned by caller to newOwner.
	ReassignOwnership(ctx context.Context, caller model.Principal, id uint64, newOwner model.Principal) error

	// GrantAccess allows viewer to read a document owned by caller.
	GrantAccess(ctx context.Context, caller model.Principal, id uint64, viewer model.Principal) error

	// RevokeAccess removes the permission entry of viewer. Owners cannot revoke themselves.
	RevokeAccess(ctx context.Context, caller model.Principal, id uint64, viewer model.Principal) error

	// ExtendTags appends tags to a document owned by caller and returns the combined list.
	ExtendTags(ctx context.Context, caller model.Principal, id uint64, tags []string) ([]string, error)

	// Freeze checks that caller is the owner or the administrator. It has no persisted effect.
	Freeze(ctx context.Context, caller model.Principal, id uint64) error

	// Authenticate compares presumedOwner with the stored owner.
	Authenticate(ctx context.Context, caller model.Principal, id uint64, presumedOwner model.Principal) (*model.Authentication, error)

	// Statistics reports the counter value and current height to the administrator.
	Statistics(ctx context.Context, caller model.Principal) (*model.Statistics, error)

	// Get returns a document to its owner, a permitted viewer or the administrator.
	Get(ctx context.Context, caller model.Principal, id uint64) (*model.Document, error)
}

// Options configure a RegistryService. Zero values disable the optional collaborators.
type Options struct {
	// Administrator is the fixed principal with statistics and cross-document freeze authority.
	// An empty value means no caller is the administrator.
	Administrator model.Principal
	GrantMode     GrantMode
	Journal       audit.Journal
	Logger        *zap.Logger
	Metrics       *OperationMetrics
}

// registryService is a concrete implementation of RegistryService.
type registryService struct {
	store   repository.Store
	heights height.Provider
	admin   model.Principal
	grant   GrantMode
	journal audit.Journal
	log     *zap.Logger
	metrics *OperationMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewRegistryService constructs a new RegistryService.
func NewRegistryService(store repository.Store, heights height.Provider, opts Options) RegistryService {
	s := &registryService{
		store:   store,
		heights: heights,
		admin:   opts.Administrator,
		grant:   opts.GrantMode,
		journal: opts.Journal,
		log:     opts.Logger,
		metrics: opts.Metrics,
		tracer:  otel.Tracer("docregistry/service"),
		now:     time.Now,
	}
	if s.grant == "" {
		s.grant = GrantPersist
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

func (s *registryService) Register(ctx context.Context, caller model.Principal, in model.DocumentInput) (id uint64, err error) {
	ctx, done := s.observe(ctx, OpRegister, 0)
	defer func() { done(err) }()

	if err := validateInput(in); err != nil {
		return 0, err
	}
	h, err := s.currentHeight(ctx)
	if err != nil {
		return 0, err
	}

	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		counter, err := tx.Counter(ctx)
		if err != nil {
			return err
		}
		next := counter + 1
		doc := &model.Document{
			ID:                next,
			Title:             in.Title,
			Owner:             caller,
			FileSize:          in.FileSize,
			RegistrationBlock: h,
			Description:       in.Description,
			Tags:              append([]string(nil), in.Tags...),
		}
		if err := tx.InsertDocument(ctx, doc); err != nil {
			return fmt.Errorf("insert document %d: %w", next, err)
		}
		if err := tx.PutPermission(ctx, model.Permission{DocumentID: next, Viewer: caller, Allowed: true}); err != nil {
			return fmt.Errorf("insert creator permission: %w", err)
		}
		if err := tx.SetCounter(ctx, next); err != nil {
			return err
		}
		id = next
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.record(ctx, audit.Event{Operation: OpRegister, DocumentID: id, Caller: caller, Height: h})
	return id, nil
}

func (s *registryService) Update(ctx context.Context, caller model.Principal, id uint64, in model.DocumentInput) (err error) {
	ctx, done := s.observe(ctx, OpUpdate, id)
	defer func() { done(err) }()

	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		doc, err := s.ownedDocument(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if err := validateInput(in); err != nil {
			return err
		}
		doc.Title = in.Title
		doc.FileSize = in.FileSize
		doc.Description = in.Description
		doc.Tags = append([]string(nil), in.Tags...)
		return tx.UpdateDocument(ctx, doc)
	})
	if err != nil {
		return err
	}

	s.record(ctx, audit.Event{Operation: OpUpdate, DocumentID: id, Caller: caller})
	return nil
}

// Deregister removes the document and purges its permission entries in the same transaction,
// so no entry outlives the record it refers to.
func (s *registryService) Deregister(ctx context.Context, caller model.Principal, id uint64) (err error) {
	ctx, done := s.observe(ctx, OpDeregister, id)
	defer func() { done(err) }()

	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		if _, err := s.ownedDocument(ctx, tx, caller, id); err != nil {
			return err
		}
		if err := tx.DeleteDocument(ctx, id); err != nil {
			return err
		}
		return tx.DeletePermissions(ctx, id)
	})
	if err != nil {
		return err
	}

	s.record(ctx, audit.Event{Operation: OpDeregister, DocumentID: id, Caller: caller})
	return nil
}

func (s *registryService) ReassignOwnership(ctx context.Context, caller model.Principal, id uint64, newOwner model.Principal) (err error) {
	ctx, done := s.observe(ctx, OpReassignOwnership, id)
	defer func() { done(err) }()

	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		doc, err := s.ownedDocument(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		doc.Owner = newOwner
		return tx.UpdateDocument(ctx, doc)
	})
	if err != nil {
		return err
	}

	s.record(ctx, audit.Event{Operation: OpReassignOwnership, DocumentID: id, Caller: caller, Target: newOwner})
	return nil
}

func (s *registryService) GrantAccess(ctx context.Context, caller model.Principal, id uint64, viewer model.Principal) (err error) {
	ctx, done := s.observe(ctx, OpGrantAccess, id)
	defer func() { done(err) }()

	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		if _, err := s.ownedDocument(ctx, tx, caller, id); err != nil {
			return err
		}
		if s.grant == GrantCheckOnly {
			return nil
		}
		return tx.PutPermission(ctx, model.Permission{DocumentID: id, Viewer: viewer, Allowed: true})
	})
	if err != nil {
		return err
	}

	if s.grant == GrantPersist {
		s.record(ctx, audit.Event{Operation: OpGrantAccess, DocumentID: id, Caller: caller, Target: viewer})
	}
	return nil
}

func (s *registryService) RevokeAccess(ctx context.Context, caller model.Principal, id uint64, viewer model.Principal) (err error) {
	ctx, done := s.observe(ctx, OpRevokeAccess, id)
	defer func() { done(err) }()

	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		if _, err := s.ownedDocument(ctx, tx, caller, id); err != nil {
			return err
		}
		if viewer == caller {
			return fmt.Errorf("%w: owners cannot revoke their own entry", ErrAdminOnly)
		}
		return tx.DeletePermission(ctx, id, viewer)
	})
	if err != nil {
		return err
	}

	s.record(ctx, audit.Event{Operation: OpRevokeAccess, DocumentID: id, Caller: caller, Target: viewer})
	return nil
}

func (s *registryService) ExtendTags(ctx context.Context, caller model.Principal, id uint64, tags []string) (combined []string, err error) {
	ctx, done := s.observe(ctx, OpExtendTags, id)
	defer func() { done(err) }()

	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		doc, err := s.ownedDocument(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if err := validateTags(tags); err != nil {
			return err
		}
		if n := len(doc.Tags) + len(tags); n > maxTags {
			return fmt.Errorf("%w: %d tags after extension, max %d", ErrTagValidationFailed, n, maxTags)
		}
		doc.Tags = append(doc.Tags, tags...)
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return err
		}
		combined = doc.Tags
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Event{Operation: OpExtendTags, DocumentID: id, Caller: caller})
	return combined, nil
}

func (s *registryService) Freeze(ctx context.Context, caller model.Principal, id uint64) (err error) {
	ctx, done := s.observe(ctx, OpFreeze, id)
	defer func() { done(err) }()

	return s.store.Atomic(ctx, func(tx repository.Tx) error {
		doc, err := s.document(ctx, tx, id)
		if err != nil {
			return err
		}
		if doc.Owner != caller && !s.isAdmin(caller) {
			return ErrAdminOnly
		}
		return nil
	})
}

func (s *registryService) Authenticate(ctx context.Context, caller model.Principal, id uint64, presumedOwner model.Principal) (res *model.Authentication, err error) {
	ctx, done := s.observe(ctx, OpAuthenticate, id)
	defer func() { done(err) }()

	var doc *model.Document
	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		doc, err = s.viewableDocument(ctx, tx, caller, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	h, err := s.currentHeight(ctx)
	if err != nil {
		return nil, err
	}
	var age uint64
	if h > doc.RegistrationBlock {
		age = h - doc.RegistrationBlock
	}
	match := presumedOwner == doc.Owner
	return &model.Authentication{
		Match:    match,
		Height:   h,
		Age:      age,
		Verified: match,
	}, nil
}

func (s *registryService) Statistics(ctx context.Context, caller model.Principal) (st *model.Statistics, err error) {
	ctx, done := s.observe(ctx, OpStatistics, 0)
	defer func() { done(err) }()

	if !s.isAdmin(caller) {
		return nil, ErrAdminOnly
	}

	var total uint64
	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		total, err = tx.Counter(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	h, err := s.currentHeight(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Statistics{Total: total, Height: h, Status: model.StatusActive}, nil
}

func (s *registryService) Get(ctx context.Context, caller model.Principal, id uint64) (doc *model.Document, err error) {
	ctx, done := s.observe(ctx, OpGet, id)
	defer func() { done(err) }()

	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		doc, err = s.viewableDocument(ctx, tx, caller, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *registryService) isAdmin(caller model.Principal) bool {
	return s.admin != "" && caller == s.admin
}

// document loads id, translating a missing row into ErrNotFound.
func (s *registryService) document(ctx context.Context, tx repository.Tx, id uint64) (*model.Document, error) {
	doc, err := tx.FindDocument(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// ownedDocument loads id and requires caller to be its owner.
func (s *registryService) ownedDocument(ctx context.Context, tx repository.Tx, caller model.Principal, id uint64) (*model.Document, error) {
	doc, err := s.document(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if doc.Owner != caller {
		return nil, ErrOwnershipRequired
	}
	return doc, nil
}

// viewableDocument loads id and requires caller to be the owner, the administrator,
// or to hold an allowed permission entry.
func (s *registryService) viewableDocument(ctx context.Context, tx repository.Tx, caller model.Principal, id uint64) (*model.Document, error) {
	doc, err := s.document(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if doc.Owner == caller || s.isAdmin(caller) {
		return doc, nil
	}
	perm, found, err := tx.FindPermission(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if !found || !perm.Allowed {
		return nil, ErrUnauthorized
	}
	return doc, nil
}

func (s *registryService) currentHeight(ctx context.Context) (uint64, error) {
	h, err := s.heights.Current(ctx)
	if err != nil {
		return 0, fmt.Errorf("current height: %w", err)
	}
	return h, nil
}

// record writes an audit event for a committed mutation. Failures are logged only:
// the mutation is already durable and must not be reported as failed.
func (s *registryService) record(ctx context.Context, ev audit.Event) {
	if s.journal == nil {
		return
	}
	if ev.Height == 0 {
		if h, err := s.heights.Current(ctx); err == nil {
			ev.Height = h
		}
	}
	ev.At = s.now().UTC()
	if err := s.journal.Record(ctx, ev); err != nil {
		s.log.Warn("audit_record_failed",
			zap.String("operation", ev.Operation),
			zap.Uint64("doc_id", ev.DocumentID),
			zap.Error(err),
		)
	}
}

// observe starts a span for op and returns the function that closes it, records metrics
// and logs unexpected failures.
func (s *registryService) observe(ctx context.Context, op string, id uint64) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(
		attribute.String("registry.operation", op),
	))
	if id != 0 {
		span.SetAttributes(attribute.Int64("registry.doc_id", int64(id)))
	}
	start := time.Now()

	return ctx, func(err error) {
		result := resultLabel(err)
		span.SetAttributes(attribute.String("registry.result", result))
		if err != nil && Code(err) == CodeInternal {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			s.log.Error("registry_operation_failed",
				zap.String("operation", op),
				zap.Uint64("doc_id", id),
				zap.Error(err),
			)
		}
		span.End()
		s.metrics.observe(op, result, time.Since(start))
	}
}
