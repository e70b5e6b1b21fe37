package clinical

import (
	"context"
	"iter"
	"sync"
)

// MemoryBackend keeps documents in process. It backs local-only mode and tests.
type MemoryBackend struct {
	mu    sync.RWMutex
	docs  map[string]map[string]interface{}
	order []string
}

// NewMemoryBackend returns a backend holding the given documents as-is.
func NewMemoryBackend(seed ...Document) *MemoryBackend {
	b := &MemoryBackend{docs: make(map[string]map[string]interface{}, len(seed))}
	for _, doc := range seed {
		if _, exists := b.docs[doc.ID]; !exists {
			b.order = append(b.order, doc.ID)
		}
		b.docs[doc.ID] = deepCopy(doc.Fields)
	}
	return b
}

func (b *MemoryBackend) Name() string {
	return "memory"
}

func (b *MemoryBackend) Insert(ctx context.Context, linkingID string, doc map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.docs[linkingID]; exists {
		return ErrAlreadyExists
	}
	b.docs[linkingID] = deepCopy(doc)
	b.order = append(b.order, linkingID)
	return nil
}

func (b *MemoryBackend) Fetch(ctx context.Context, linkingID string) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc, ok := b.docs[linkingID]
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopy(doc), nil
}

func (b *MemoryBackend) Patch(ctx context.Context, linkingID string, patch map[string]interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[linkingID]
	if !ok {
		return false, nil
	}
	applyPatch(doc, deepCopy(patch))
	return true, nil
}

func (b *MemoryBackend) Remove(ctx context.Context, linkingID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.docs[linkingID]; !ok {
		return false, nil
	}
	delete(b.docs, linkingID)
	for i, id := range b.order {
		if id == linkingID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Scan snapshots the collection in insertion order, then yields from the snapshot.
func (b *MemoryBackend) Scan(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		b.mu.RLock()
		snapshot := make([]Document, 0, len(b.order))
		for _, id := range b.order {
			snapshot = append(snapshot, Document{ID: id, Fields: deepCopy(b.docs[id])})
		}
		b.mu.RUnlock()

		for _, doc := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(Document{}, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func deepCopy(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopy(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string{}, val...)
	default:
		return val
	}
}
