package clinical

import (
	"context"
	"errors"
	"iter"
)

// ErrBackendDisabled is returned by the disabled backend for every call.
var ErrBackendDisabled = errors.New("clinical store not configured")

// DisabledBackend stands in when no clinical store could be configured. The
// service still accepts registrations, which end in the pii_only state.
type DisabledBackend struct {
	Reason error
}

func (b DisabledBackend) Name() string {
	return "disabled"
}

func (b DisabledBackend) err() error {
	if b.Reason != nil {
		return errors.Join(ErrBackendDisabled, b.Reason)
	}
	return ErrBackendDisabled
}

func (b DisabledBackend) Insert(context.Context, string, map[string]interface{}) error {
	return b.err()
}

func (b DisabledBackend) Fetch(context.Context, string) (map[string]interface{}, error) {
	return nil, b.err()
}

func (b DisabledBackend) Patch(context.Context, string, map[string]interface{}) (bool, error) {
	return false, b.err()
}

func (b DisabledBackend) Remove(context.Context, string) (bool, error) {
	return false, b.err()
}

func (b DisabledBackend) Scan(context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		yield(Document{}, b.err())
	}
}
