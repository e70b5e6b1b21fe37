package clinical

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/synaptica-ai/medsplit/pkg/common/errs"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
	"github.com/synaptica-ai/medsplit/pkg/dlp"
	"github.com/synaptica-ai/medsplit/pkg/identifier"
	"github.com/synaptica-ai/medsplit/pkg/observability/metrics"
)

var (
	ErrNotFound      = errors.New("clinical record not found")
	ErrAlreadyExists = errors.New("clinical record already exists")
)

// Backend is the raw document storage behind the adapter. Implementations
// return ErrNotFound and ErrAlreadyExists as-is; every other error is treated
// as the store being unavailable.
type Backend interface {
	Name() string
	Insert(ctx context.Context, linkingID string, doc map[string]interface{}) error
	Fetch(ctx context.Context, linkingID string) (map[string]interface{}, error)
	// Patch applies dotted-path changes and reports false if the record is absent.
	Patch(ctx context.Context, linkingID string, patch map[string]interface{}) (bool, error)
	Remove(ctx context.Context, linkingID string) (bool, error)
	// Scan yields every document once, in an order that is stable for one call.
	Scan(ctx context.Context) iter.Seq2[Document, error]
}

// Store is the clinical store adapter. It keys records on an identifier
// minted elsewhere and never generates its own.
type Store struct {
	backend Backend
	guard   *dlp.Guard
	timeout time.Duration
	now     func() time.Time
}

func NewStore(backend Backend, guard *dlp.Guard, timeout time.Duration) *Store {
	if guard == nil {
		guard = dlp.DefaultGuard()
	}
	return &Store{
		backend: backend,
		guard:   guard,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Backend() string {
	return s.backend.Name()
}

// Create builds the full record with placeholder sub-objects and stores it.
func (s *Store) Create(ctx context.Context, linkingID string, age *int, height *float64) (*Record, error) {
	if linkingID == "" {
		return nil, errs.Validation(KeyLinkingID, "required")
	}
	if !identifier.Valid(linkingID) {
		return nil, errs.Validation(KeyLinkingID, "malformed identifier")
	}

	record := newRecord(linkingID, age, height, s.now())
	doc := toDocument(record)
	if err := s.guard.Check(linkingID, doc); err != nil {
		metrics.ObserveSecurityViolation(metrics.SourceGuard)
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.backend.Insert(ctx, linkingID, doc); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		return nil, s.unavailable("create", err)
	}
	return record, nil
}

func (s *Store) Get(ctx context.Context, linkingID string) (*Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc, err := s.backend.Fetch(ctx, linkingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.unavailable("get", err)
	}
	return s.decode(Document{ID: linkingID, Fields: doc}), nil
}

// Update applies u to an existing record. It returns false when there is no
// record for linkingID.
func (s *Store) Update(ctx context.Context, linkingID string, u Update) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	updated, err := s.backend.Patch(ctx, linkingID, u.patch(s.now()))
	if err != nil {
		return false, s.unavailable("update", err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, linkingID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	deleted, err := s.backend.Remove(ctx, linkingID)
	if err != nil {
		return false, s.unavailable("delete", err)
	}
	return deleted, nil
}

// List yields every record with personal keys filtered out. Each call starts
// a fresh scan.
func (s *Store) List(ctx context.Context) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for doc, err := range s.Documents(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(s.decode(doc), nil) {
				return
			}
		}
	}
}

// Documents yields the raw stored documents, unfiltered. It is for the
// separation verifier only and must not feed any outward-facing response.
func (s *Store) Documents(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		ctx, cancel := s.withTimeout(ctx)
		defer cancel()

		for doc, err := range s.backend.Scan(ctx) {
			if err != nil {
				yield(Document{}, s.unavailable("list", err))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// RemovePIIIfPresent strips personal keys from a document read back from the
// store and logs each one as a security event. The guard on the write path
// should make this a no-op.
func (s *Store) RemovePIIIfPresent(doc Document) (Document, []string) {
	stripped := s.guard.PersonalKeys(doc.Fields)
	if len(stripped) == 0 {
		return doc, nil
	}

	clean := make(map[string]interface{}, len(doc.Fields))
	for k, v := range doc.Fields {
		clean[k] = v
	}
	for _, key := range stripped {
		delete(clean, key)
		metrics.ObserveSecurityViolation(metrics.SourceReadFilter)
		logger.Security(doc.ID, key).
			WithField("backend", s.backend.Name()).
			Error("SECURITY BREACH: personal field found in clinical store, removed before use")
	}
	return Document{ID: doc.ID, Fields: clean}, stripped
}

func (s *Store) decode(doc Document) *Record {
	clean, stripped := s.RemovePIIIfPresent(doc)
	record := fromDocument(clean.Fields)
	if record.LinkingID == "" {
		record.LinkingID = doc.ID
	}
	if len(stripped) > 0 {
		record.SecurityWarning = "personal data detected in medical record"
	}
	return record
}

func (s *Store) unavailable(op string, err error) error {
	return errs.Unavailable(errs.StoreClinical, op, err)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
