// Package store persists ticket registry snapshots and coalesces the
// writes that keep them current.
package store

import (
	"context"
	"fmt"
	"sync"

	"modmail-bot/internal/ticket"
)

// Snapshotter loads and saves a whole registry snapshot.
type Snapshotter interface {
	Load(ctx context.Context) (ticket.Snapshot, error)
	Save(ctx context.Context, snap ticket.Snapshot) error
}

// Kind names a snapshot backend.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
	KindMemory Kind = "memory"
)

// Open returns the backend for kind rooted at path.
func Open(kind Kind, path string) (Snapshotter, error) {
	switch kind {
	case KindFile, "":
		return NewFile(path), nil
	case KindSQLite:
		return OpenSQL(path)
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// Memory keeps the last saved snapshot in memory.
type Memory struct {
	mu    sync.Mutex
	snap  ticket.Snapshot
	saves int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{snap: ticket.EmptySnapshot()}
}

func (m *Memory) Load(context.Context) (ticket.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySnapshot(m.snap), nil
}

func (m *Memory) Save(_ context.Context, snap ticket.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = copySnapshot(snap)
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func copySnapshot(snap ticket.Snapshot) ticket.Snapshot {
	r := ticket.NewRegistry(nil)
	r.Restore(snap)
	return r.Snapshot()
}
