// Package store is the persistence gateway: a small document-store contract
// with SQLite, Firestore and in-memory implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrPersistence wraps every backend read or write failure.
	ErrPersistence = errors.New("persistence error")
)

// SavedAtField is stamped by AddToCollection with the server time.
const SavedAtField = "savedAt"

// Document is a JSON-like document body.
type Document map[string]any

// Entry is a document inside a collection.
type Entry struct {
	ID  string
	Doc Document
}

// DocumentEvent is one state of a watched document. Exists is false when the
// document has been deleted or was never written.
type DocumentEvent struct {
	Doc    Document
	Exists bool
	Err    error
}

// CollectionEvent is one full state of a watched collection, oldest entry first.
type CollectionEvent struct {
	Entries []Entry
	Err     error
}

// Gateway is the document store used by the application.
//
// Subscriptions emit the current state immediately and again after every
// write. Slow consumers may miss intermediate states but always receive the
// latest. Channels are closed when ctx is done.
type Gateway interface {
	GetDocument(ctx context.Context, docPath string) (Document, error)
	SetDocument(ctx context.Context, docPath string, doc Document) error
	UpdateDocument(ctx context.Context, docPath string, fields Document) error
	DeleteDocument(ctx context.Context, docPath string) error
	SubscribeDocument(ctx context.Context, docPath string) (<-chan DocumentEvent, error)

	AddToCollection(ctx context.Context, collectionPath string, doc Document) (string, error)
	ListCollection(ctx context.Context, collectionPath string) ([]Entry, error)
	SubscribeCollection(ctx context.Context, collectionPath string) (<-chan CollectionEvent, error)
}

// Paths builds the key layout for one application and user.
type Paths struct {
	AppID  string
	UserID string
}

func (p Paths) userRoot() string {
	return fmt.Sprintf("artifacts/%s/users/%s", p.AppID, p.UserID)
}

// CurrentPlan is the user's current weekly plan document.
func (p Paths) CurrentPlan() string { return p.userRoot() + "/mealPlan/current" }

// CurrentRecipe is the recipe detail the user last opened.
func (p Paths) CurrentRecipe() string { return p.userRoot() + "/mealPlan/recipe" }

// Favorites is the user's favorite recipes collection.
func (p Paths) Favorites() string { return p.userRoot() + "/favorites" }

// Archive is the user's archived plans collection.
func (p Paths) Archive() string { return p.userRoot() + "/archivedPlans" }

// SharedPlans is the app-wide shared plans collection.
func (p Paths) SharedPlans() string { return fmt.Sprintf("artifacts/%s/sharedPlans", p.AppID) }

// DocPath joins a collection path and a document id.
func DocPath(collectionPath, id string) string {
	return collectionPath + "/" + id
}

// Split returns the parent collection and id of a document path.
func Split(docPath string) (collection, id string) {
	docPath = strings.Trim(docPath, "/")
	return path.Dir(docPath), path.Base(docPath)
}

// Encode converts a JSON-tagged struct into a Document.
func Encode(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return doc, nil
}

// Decode fills a JSON-tagged struct from a Document.
func Decode(doc Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

func persistenceError(op, docPath string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrPersistence, op, docPath, err)
}
