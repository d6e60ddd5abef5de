package store

import (
	"context"
	"errors"
	"sync"
)

// Broker fans out change notifications to subscribers keyed by path.
// Notifications coalesce: a subscriber that has not consumed the previous
// signal gets a single pending signal.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

// Watch registers for notifications on key. The returned channel already holds
// one signal so the first read happens immediately. The registration is
// removed when ctx is done.
func (b *Broker) Watch(ctx context.Context, key string) <-chan struct{} {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}

	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[chan struct{}]struct{})
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[key], ch)
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
		b.mu.Unlock()
	}()
	return ch
}

// Notify signals every subscriber of key.
func (b *Broker) Notify(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// NotifyDocument signals watchers of a document and of its parent collection.
func (b *Broker) NotifyDocument(docPath string) {
	b.Notify(docPath)
	collection, _ := Split(docPath)
	b.Notify(collection)
}

// relay reads the latest state on every signal and forwards it to the returned
// channel until ctx is done.
func relay[T any](ctx context.Context, signals <-chan struct{}, read func(context.Context) T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
			}
			state := read(ctx)
			select {
			case <-ctx.Done():
				return
			case out <- state:
			}
		}
	}()
	return out
}

// SubscribeDocumentVia builds a document subscription from a broker and a reader.
func SubscribeDocumentVia(ctx context.Context, b *Broker, docPath string, get func(context.Context, string) (Document, error)) <-chan DocumentEvent {
	return relay(ctx, b.Watch(ctx, docPath), func(ctx context.Context) DocumentEvent {
		doc, err := get(ctx, docPath)
		switch {
		case err == nil:
			return DocumentEvent{Doc: doc, Exists: true}
		case errors.Is(err, ErrNotFound):
			return DocumentEvent{}
		default:
			return DocumentEvent{Err: err}
		}
	})
}

// SubscribeCollectionVia builds a collection subscription from a broker and a lister.
func SubscribeCollectionVia(ctx context.Context, b *Broker, collectionPath string, list func(context.Context, string) ([]Entry, error)) <-chan CollectionEvent {
	return relay(ctx, b.Watch(ctx, collectionPath), func(ctx context.Context) CollectionEvent {
		entries, err := list(ctx, collectionPath)
		return CollectionEvent{Entries: entries, Err: err}
	})
}
