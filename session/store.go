package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrRecordNotFound indicates no ownership record exists for the session.
var ErrRecordNotFound = errors.New("session: record not found")

// RecordStore persists ownership records, one per session. The record is
// the only piece of state shared across processes, so implementations keep
// writes atomic per session but provide no cross-record transactions.
type RecordStore interface {
	Load(ctx context.Context, sessionID string) (*OwnershipRecord, error)
	Save(ctx context.Context, sessionID string, record *OwnershipRecord) error
	Delete(ctx context.Context, sessionID string) error
}

// FileRecordStore keeps one JSON file per session under a directory. The
// write goes through a temp file and rename, so a concurrent reader sees
// either the old record or the new one, never a torn write.
type FileRecordStore struct {
	dir string
}

// Compile-time interface check
var _ RecordStore = (*FileRecordStore)(nil)

// NewFileRecordStore creates a store rooted at dir, creating it if needed
func NewFileRecordStore(dir string) (*FileRecordStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("record store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create record store directory: %w", err)
	}
	return &FileRecordStore{dir: dir}, nil
}

// Load reads the ownership record for sessionID
func (s *FileRecordStore) Load(ctx context.Context, sessionID string) (*OwnershipRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.recordPath(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to read ownership record: %w", err)
	}

	var record OwnershipRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse ownership record: %w", err)
	}
	return &record, nil
}

// Save writes the ownership record for sessionID
func (s *FileRecordStore) Save(ctx context.Context, sessionID string, record *OwnershipRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	path, err := s.recordPath(sessionID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ownership record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ownership record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit ownership record: %w", err)
	}
	return nil
}

// Delete removes the ownership record for sessionID. Deleting a missing
// record is not an error.
func (s *FileRecordStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.recordPath(sessionID)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete ownership record: %w", err)
	}
	return nil
}

// recordPath validates the session id and maps it to a file path. Session
// ids are opaque but must not carry path structure into the store.
func (s *FileRecordStore) recordPath(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id cannot be empty")
	}
	if strings.ContainsAny(sessionID, `/\`) || strings.Contains(sessionID, "..") {
		return "", fmt.Errorf("session id %q contains path characters", sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}
