// Package storetest provides an in-memory store.Gateway for tests.
package storetest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"dinnerplan/internal/store"

	"github.com/google/uuid"
)

// Memory is a goroutine-safe in-memory gateway. Documents are deep-copied
// through JSON on the way in and out, matching the SQLite backend.
type Memory struct {
	mu     sync.Mutex
	docs   map[string]stored
	seq    int
	broker *store.Broker

	// Fail, when set, is consulted before every operation. A non-nil return
	// fails the operation with a wrapped store.ErrPersistence.
	Fail func(op, path string) error

	writes int
}

type stored struct {
	data []byte
	seq  int
}

// NewMemory creates an empty gateway.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]stored), broker: store.NewBroker()}
}

// Writes returns the number of successful mutating calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FailOn makes every op (e.g. "set") on any path fail with err.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = func(o, _ string) error {
		if o == op {
			return err
		}
		return nil
	}
}

func (m *Memory) check(op, path string) error {
	if m.Fail == nil {
		return nil
	}
	if err := m.Fail(op, path); err != nil {
		return &failure{op: op, path: path, err: err}
	}
	return nil
}

func (m *Memory) GetDocument(ctx context.Context, docPath string) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("get", docPath); err != nil {
		return nil, err
	}
	s, ok := m.docs[docPath]
	if !ok {
		return nil, store.ErrNotFound
	}
	return decode(s.data), nil
}

func (m *Memory) SetDocument(ctx context.Context, docPath string, doc store.Document) error {
	m.mu.Lock()
	if err := m.check("set", docPath); err != nil {
		m.mu.Unlock()
		return err
	}
	m.put(docPath, doc)
	m.mu.Unlock()
	m.broker.NotifyDocument(docPath)
	return nil
}

func (m *Memory) UpdateDocument(ctx context.Context, docPath string, fields store.Document) error {
	m.mu.Lock()
	if err := m.check("update", docPath); err != nil {
		m.mu.Unlock()
		return err
	}
	s, ok := m.docs[docPath]
	if !ok {
		m.mu.Unlock()
		return store.ErrNotFound
	}
	doc := decode(s.data)
	for k, v := range fields {
		doc[k] = v
	}
	m.docs[docPath] = stored{data: encode(doc), seq: s.seq}
	m.writes++
	m.mu.Unlock()
	m.broker.NotifyDocument(docPath)
	return nil
}

func (m *Memory) DeleteDocument(ctx context.Context, docPath string) error {
	m.mu.Lock()
	if err := m.check("delete", docPath); err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.docs, docPath)
	m.writes++
	m.mu.Unlock()
	m.broker.NotifyDocument(docPath)
	return nil
}

func (m *Memory) SubscribeDocument(ctx context.Context, docPath string) (<-chan store.DocumentEvent, error) {
	return store.SubscribeDocumentVia(ctx, m.broker, docPath, m.GetDocument), nil
}

func (m *Memory) AddToCollection(ctx context.Context, collectionPath string, doc store.Document) (string, error) {
	m.mu.Lock()
	if err := m.check("add", collectionPath); err != nil {
		m.mu.Unlock()
		return "", err
	}
	id := uuid.NewString()
	stamped := store.Document{}
	for k, v := range doc {
		stamped[k] = v
	}
	stamped[store.SavedAtField] = time.Now().UTC().Format(time.RFC3339Nano)
	docPath := store.DocPath(collectionPath, id)
	m.put(docPath, stamped)
	m.mu.Unlock()
	m.broker.NotifyDocument(docPath)
	return id, nil
}

func (m *Memory) ListCollection(ctx context.Context, collectionPath string) ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("list", collectionPath); err != nil {
		return nil, err
	}

	type row struct {
		id string
		s  stored
	}
	var rows []row
	prefix := collectionPath + "/"
	for p, s := range m.docs {
		if !strings.HasPrefix(p, prefix) || strings.Contains(p[len(prefix):], "/") {
			continue
		}
		rows = append(rows, row{id: p[len(prefix):], s: s})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].s.seq < rows[j].s.seq })

	entries := make([]store.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, store.Entry{ID: r.id, Doc: decode(r.s.data)})
	}
	return entries, nil
}

func (m *Memory) SubscribeCollection(ctx context.Context, collectionPath string) (<-chan store.CollectionEvent, error) {
	return store.SubscribeCollectionVia(ctx, m.broker, collectionPath, m.ListCollection), nil
}

// put stores doc keeping the original insertion sequence on overwrite.
func (m *Memory) put(docPath string, doc store.Document) {
	seq := m.seq
	if s, ok := m.docs[docPath]; ok {
		seq = s.seq
	} else {
		m.seq++
	}
	m.docs[docPath] = stored{data: encode(doc), seq: seq}
	m.writes++
}

type failure struct {
	op, path string
	err      error
}

func (f *failure) Error() string {
	return store.ErrPersistence.Error() + ": " + f.op + " " + f.path + ": " + f.err.Error()
}

func (f *failure) Unwrap() []error { return []error{store.ErrPersistence, f.err} }

func encode(doc store.Document) []byte {
	data, err := json.Marshal(doc)
	if err != nil {
		panic("storetest: document is not JSON encodable: " + err.Error())
	}
	return data
}

func decode(data []byte) store.Document {
	doc := store.Document{}
	_ = json.Unmarshal(data, &doc)
	return doc
}
