package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"khanevadati/internal/core"
	"khanevadati/internal/storage"
)

// Store keeps namespaces in process memory. Units of work run one at a time
// and their writes become visible only when the closure succeeds.
type Store struct {
	mu   sync.Mutex
	docs map[string]map[storage.Collection]map[string][]byte
}

func New() *Store {
	return &Store{docs: make(map[string]map[storage.Collection]map[string][]byte)}
}

func (s *Store) Update(ctx context.Context, ns string, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{base: s.docs[ns], staged: make(map[storage.Collection]map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(ns, tx.staged)
	return nil
}

func (s *Store) View(ctx context.Context, ns string, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{base: s.docs[ns], readOnly: true})
}

func (s *Store) Close() error { return nil }

func (s *Store) commit(ns string, staged map[storage.Collection]map[string][]byte) {
	colls := s.docs[ns]
	if colls == nil {
		colls = make(map[storage.Collection]map[string][]byte)
		s.docs[ns] = colls
	}
	for coll, writes := range staged {
		docs := colls[coll]
		if docs == nil {
			docs = make(map[string][]byte)
			colls[coll] = docs
		}
		for id, body := range writes {
			if body == nil {
				delete(docs, id)
				continue
			}
			docs[id] = body
		}
	}
}

type memTx struct {
	base     map[storage.Collection]map[string][]byte
	staged   map[storage.Collection]map[string][]byte // nil body marks a delete
	readOnly bool
}

func (t *memTx) lookup(coll storage.Collection, id string) ([]byte, bool) {
	if body, ok := t.staged[coll][id]; ok {
		return body, body != nil
	}
	body, ok := t.base[coll][id]
	return body, ok
}

func (t *memTx) stage(coll storage.Collection, id string, body []byte) error {
	if t.readOnly {
		return core.Errorf(core.KindAccessDenied, "write in read-only transaction")
	}
	if t.staged[coll] == nil {
		t.staged[coll] = make(map[string][]byte)
	}
	t.staged[coll][id] = body
	return nil
}

func (t *memTx) Get(coll storage.Collection, id string, dst any) error {
	body, ok := t.lookup(coll, id)
	if !ok {
		return core.Errorf(core.KindNotFound, "%s %q not found", coll, id)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s %q: %w", coll, id, err)
	}
	return nil
}

func (t *memTx) Put(coll storage.Collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", coll, id, err)
	}
	return t.stage(coll, id, body)
}

func (t *memTx) Delete(coll storage.Collection, id string) error {
	if _, ok := t.lookup(coll, id); !ok {
		return core.Errorf(core.KindNotFound, "%s %q not found", coll, id)
	}
	return t.stage(coll, id, nil)
}

func (t *memTx) List(coll storage.Collection) ([]json.RawMessage, error) {
	ids := make(map[string]struct{})
	for id := range t.base[coll] {
		ids[id] = struct{}{}
	}
	for id := range t.staged[coll] {
		ids[id] = struct{}{}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var docs []json.RawMessage
	for _, id := range sorted {
		if body, ok := t.lookup(coll, id); ok {
			docs = append(docs, json.RawMessage(body))
		}
	}
	return docs, nil
}

func (t *memTx) Where(coll storage.Collection, field, value string) ([]json.RawMessage, error) {
	all, err := t.List(coll)
	if err != nil {
		return nil, err
	}
	var docs []json.RawMessage
	for _, body := range all {
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("decode %s: %w", coll, err)
		}
		if s, ok := fields[field].(string); ok && s == value {
			docs = append(docs, body)
		}
	}
	return docs, nil
}

func (t *memTx) Count(coll storage.Collection, field, value string) (int, error) {
	docs, err := t.Where(coll, field, value)
	return len(docs), err
}
