package clinical

import (
	"context"
	"iter"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreBackend keeps one document per linking identifier in a single
// collection.
type FirestoreBackend struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreBackend(client *firestore.Client, collection string) *FirestoreBackend {
	return &FirestoreBackend{client: client, collection: collection}
}

func (b *FirestoreBackend) Name() string {
	return "firestore"
}

func (b *FirestoreBackend) doc(linkingID string) *firestore.DocumentRef {
	return b.client.Collection(b.collection).Doc(linkingID)
}

func (b *FirestoreBackend) Insert(ctx context.Context, linkingID string, doc map[string]interface{}) error {
	_, err := b.doc(linkingID).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	return err
}

func (b *FirestoreBackend) Fetch(ctx context.Context, linkingID string) (map[string]interface{}, error) {
	snap, err := b.doc(linkingID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snap.Data(), nil
}

// Patch uses a field-path update, which Firestore rejects for missing documents.
func (b *FirestoreBackend) Patch(ctx context.Context, linkingID string, patch map[string]interface{}) (bool, error) {
	updates := make([]firestore.Update, 0, len(patch))
	for _, path := range sortedKeys(patch) {
		updates = append(updates, firestore.Update{Path: path, Value: patch[path]})
	}
	_, err := b.doc(linkingID).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *FirestoreBackend) Remove(ctx context.Context, linkingID string) (bool, error) {
	_, err := b.doc(linkingID).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Scan streams the collection in document-ID order.
func (b *FirestoreBackend) Scan(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		it := b.client.Collection(b.collection).Documents(ctx)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				yield(Document{}, err)
				return
			}
			if !yield(Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil) {
				return
			}
		}
	}
}
