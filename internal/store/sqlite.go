package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLite is a Gateway backed by the documents table.
type SQLite struct {
	db     *sql.DB
	broker *Broker
	now    func() time.Time
}

// NewSQLite creates a gateway over an already migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{
		db:     db,
		broker: NewBroker(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLite) GetDocument(ctx context.Context, docPath string) (Document, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, docPath).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("get", docPath, err)
	}
	return unmarshalDoc(docPath, data)
}

func (s *SQLite) SetDocument(ctx context.Context, docPath string, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return persistenceError("set", docPath, err)
	}
	now := s.now()
	collection, _ := Split(docPath)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		docPath, collection, string(data), now, now)
	if err != nil {
		return persistenceError("set", docPath, err)
	}
	s.broker.NotifyDocument(docPath)
	return nil
}

func (s *SQLite) UpdateDocument(ctx context.Context, docPath string, fields Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("update", docPath, err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, docPath).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return persistenceError("update", docPath, err)
	}

	doc, err := unmarshalDoc(docPath, data)
	if err != nil {
		return err
	}
	for k, v := range fields {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return persistenceError("update", docPath, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE documents SET data = ?, updated_at = ? WHERE path = ?`,
		string(merged), s.now(), docPath); err != nil {
		return persistenceError("update", docPath, err)
	}
	if err := tx.Commit(); err != nil {
		return persistenceError("update", docPath, err)
	}
	s.broker.NotifyDocument(docPath)
	return nil
}

func (s *SQLite) DeleteDocument(ctx context.Context, docPath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, docPath); err != nil {
		return persistenceError("delete", docPath, err)
	}
	s.broker.NotifyDocument(docPath)
	return nil
}

func (s *SQLite) SubscribeDocument(ctx context.Context, docPath string) (<-chan DocumentEvent, error) {
	return SubscribeDocumentVia(ctx, s.broker, docPath, s.GetDocument), nil
}

func (s *SQLite) AddToCollection(ctx context.Context, collectionPath string, doc Document) (string, error) {
	id := uuid.NewString()
	stamped := make(Document, len(doc)+1)
	for k, v := range doc {
		stamped[k] = v
	}
	now := s.now()
	stamped[SavedAtField] = now.Format(time.RFC3339Nano)

	data, err := json.Marshal(stamped)
	if err != nil {
		return "", persistenceError("add", collectionPath, err)
	}
	docPath := DocPath(collectionPath, id)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (path, collection, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		docPath, collectionPath, string(data), now, now); err != nil {
		return "", persistenceError("add", collectionPath, err)
	}
	s.broker.NotifyDocument(docPath)
	return id, nil
}

func (s *SQLite) ListCollection(ctx context.Context, collectionPath string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, data FROM documents WHERE collection = ? ORDER BY created_at, rowid`, collectionPath)
	if err != nil {
		return nil, persistenceError("list", collectionPath, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var p, data string
		if err := rows.Scan(&p, &data); err != nil {
			return nil, persistenceError("list", collectionPath, err)
		}
		doc, err := unmarshalDoc(p, data)
		if err != nil {
			return nil, err
		}
		_, id := Split(p)
		entries = append(entries, Entry{ID: id, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list", collectionPath, err)
	}
	return entries, nil
}

func (s *SQLite) SubscribeCollection(ctx context.Context, collectionPath string) (<-chan CollectionEvent, error) {
	return SubscribeCollectionVia(ctx, s.broker, collectionPath, s.ListCollection), nil
}

func unmarshalDoc(docPath, data string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("%w: corrupt document %s: %v", ErrPersistence, docPath, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}
