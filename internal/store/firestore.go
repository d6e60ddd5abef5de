package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is a Gateway backed by Cloud Firestore. Subscriptions use native
// snapshot listeners.
type Firestore struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestore connects to the given project. When FIRESTORE_EMULATOR_HOST is
// set the client talks to the emulator.
func NewFirestore(ctx context.Context, projectID string, logger *zap.Logger, opts ...option.ClientOption) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Firestore{client: client, logger: logger}, nil
}

// Close closes the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) GetDocument(ctx context.Context, docPath string) (Document, error) {
	snap, err := f.client.Doc(docPath).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("get", docPath, err)
	}
	return Document(snap.Data()), nil
}

func (f *Firestore) SetDocument(ctx context.Context, docPath string, doc Document) error {
	if _, err := f.client.Doc(docPath).Set(ctx, map[string]any(doc)); err != nil {
		return persistenceError("set", docPath, err)
	}
	return nil
}

func (f *Firestore) UpdateDocument(ctx context.Context, docPath string, fields Document) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	_, err := f.client.Doc(docPath).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return persistenceError("update", docPath, err)
	}
	return nil
}

func (f *Firestore) DeleteDocument(ctx context.Context, docPath string) error {
	if _, err := f.client.Doc(docPath).Delete(ctx); err != nil {
		return persistenceError("delete", docPath, err)
	}
	return nil
}

func (f *Firestore) SubscribeDocument(ctx context.Context, docPath string) (<-chan DocumentEvent, error) {
	it := f.client.Doc(docPath).Snapshots(ctx)
	out := make(chan DocumentEvent)
	go func() {
		defer close(out)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				f.logger.Warn("document listener failed", zap.String("path", docPath), zap.Error(err))
				send(ctx, out, DocumentEvent{Err: persistenceError("subscribe", docPath, err)})
				return
			}
			ev := DocumentEvent{Exists: snap.Exists()}
			if ev.Exists {
				ev.Doc = Document(snap.Data())
			}
			if !send(ctx, out, ev) {
				return
			}
		}
	}()
	return out, nil
}

func (f *Firestore) AddToCollection(ctx context.Context, collectionPath string, doc Document) (string, error) {
	data := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		data[k] = v
	}
	data[SavedAtField] = firestore.ServerTimestamp

	ref, _, err := f.client.Collection(collectionPath).Add(ctx, data)
	if err != nil {
		return "", persistenceError("add", collectionPath, err)
	}
	return ref.ID, nil
}

func (f *Firestore) ListCollection(ctx context.Context, collectionPath string) ([]Entry, error) {
	iter := f.client.Collection(collectionPath).OrderBy(SavedAtField, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var entries []Entry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, persistenceError("list", collectionPath, err)
		}
		entries = append(entries, Entry{ID: snap.Ref.ID, Doc: Document(snap.Data())})
	}
	return entries, nil
}

func (f *Firestore) SubscribeCollection(ctx context.Context, collectionPath string) (<-chan CollectionEvent, error) {
	it := f.client.Collection(collectionPath).OrderBy(SavedAtField, firestore.Asc).Snapshots(ctx)
	out := make(chan CollectionEvent)
	go func() {
		defer close(out)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				f.logger.Warn("collection listener failed", zap.String("path", collectionPath), zap.Error(err))
				send(ctx, out, CollectionEvent{Err: persistenceError("subscribe", collectionPath, err)})
				return
			}
			snaps, err := qs.Documents.GetAll()
			ev := CollectionEvent{}
			if err != nil {
				ev.Err = persistenceError("subscribe", collectionPath, err)
			}
			for _, snap := range snaps {
				ev.Entries = append(ev.Entries, Entry{ID: snap.Ref.ID, Doc: Document(snap.Data())})
			}
			if !send(ctx, out, ev) {
				return
			}
		}
	}()
	return out, nil
}

func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- v:
		return true
	}
}
