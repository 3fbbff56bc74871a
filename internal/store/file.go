package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"modmail-bot/internal/ticket"
)

// File stores the snapshot as one JSON document. Writes go to a temp
// file in the same directory and are renamed into place.
type File struct {
	path string
}

// NewFile returns a file store at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the document location.
func (f *File) Path() string { return f.path }

// Load reads the snapshot. A missing or empty file is an empty snapshot.
func (f *File) Load(_ context.Context) (ticket.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return ticket.EmptySnapshot(), nil
	}
	if err != nil {
		return ticket.Snapshot{}, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ticket.EmptySnapshot(), nil
	}

	var snap ticket.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return ticket.Snapshot{}, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if snap.UserTickets == nil {
		snap.UserTickets = map[string][]ticket.Ticket{}
	}
	if snap.ChannelToUser == nil {
		snap.ChannelToUser = map[string]string{}
	}
	return snap, nil
}

// Save writes the snapshot atomically.
func (f *File) Save(_ context.Context, snap ticket.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}
