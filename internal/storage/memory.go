package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrDuplicateID is returned when an inserted document reuses an existing _id.
var ErrDuplicateID = errors.New("duplicate _id")

// Memory is an in-process store used for development and tests. All
// connections it hands out share the same data.
type Memory struct {
	mu   sync.RWMutex
	seq  int64
	data map[string]map[string][]Document
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]Document)}
}

func (m *Memory) Create(context.Context) (Conn, error) {
	return &memoryConn{store: m}, nil
}

func (m *Memory) Destroy(Conn) error { return nil }

type memoryConn struct {
	store *Memory
}

func (c *memoryConn) Find(ctx context.Context, tenant, coll string, filter Document, skip, limit int64) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := c.store
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.data[tenant][coll]
	out := []Document{}
	var matched int64
	for i := len(docs) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if !matches(docs[i], filter) {
			continue
		}
		matched++
		if matched <= skip {
			continue
		}
		out = append(out, clone(docs[i]))
	}
	return out, nil
}

func (c *memoryConn) Insert(ctx context.Context, tenant, coll string, doc Document) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := c.store
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := clone(doc)
	id, ok := stored["_id"]
	if ok {
		for _, d := range m.data[tenant][coll] {
			if reflect.DeepEqual(d["_id"], id) {
				return nil, fmt.Errorf("%w: %v", ErrDuplicateID, id)
			}
		}
	} else {
		m.seq++
		id = m.seq
		stored["_id"] = id
	}

	if m.data[tenant] == nil {
		m.data[tenant] = make(map[string][]Document)
	}
	m.data[tenant][coll] = append(m.data[tenant][coll], stored)
	return id, nil
}

func (c *memoryConn) Close(context.Context) error { return nil }

// matches applies top-level equality on every filter key.
func matches(doc, filter Document) bool {
	for k, v := range filter {
		if !reflect.DeepEqual(doc[k], v) {
			return false
		}
	}
	return true
}

func clone(d Document) Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}
