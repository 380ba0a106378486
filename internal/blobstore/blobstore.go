// Package blobstore implements the binary object store for file
// payloads, keyed by entity ID.
//
// The store is a plain directory with 256-way fan-out by the first two
// characters of the encoded ID: <dir>/<id[:2]>/<id>. Writes stream
// through a temp file and rename into place. The store knows nothing
// about the document store; keeping the two consistent is the caller's
// job, and is best-effort only.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maruel/ksid"
)

const tmpDirName = "tmp"

// Store manages payload files in a directory.
type Store struct {
	dir string
}

// Open prepares the directory schema. It is idempotent: opening an
// already-initialized store is a no-op.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, tmpDirName), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put stores the payload for id, overwriting any previous content.
func (s *Store) Put(ctx context.Context, id ksid.ID, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if id.IsZero() {
		return 0, errZeroID
	}
	f, err := os.CreateTemp(filepath.Join(s.dir, tmpDirName), "*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("failed to write blob %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	target := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("failed to create blob subdirectory: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("failed to rename blob into place: %w", err)
	}
	return n, nil
}

// PutBytes stores a payload held in memory.
func (s *Store) PutBytes(ctx context.Context, id ksid.ID, data []byte) error {
	_, err := s.Put(ctx, id, bytes.NewReader(data))
	return err
}

// Open returns a reader for the payload of id, or nil if no blob is
// stored under that id.
func (s *Store) Open(ctx context.Context, id ksid.ID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id.IsZero() {
		return nil, errZeroID
	}
	f, err := os.Open(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", id, err)
	}
	return f, nil
}

// Get returns the full payload of id, or nil if no blob is stored
// under that id.
func (s *Store) Get(ctx context.Context, id ksid.ID) ([]byte, error) {
	r, err := s.Open(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the payload of id. Deleting a missing blob is not an
// error.
func (s *Store) Delete(ctx context.Context, id ksid.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id.IsZero() {
		return errZeroID
	}
	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	return nil
}

// List returns the IDs of all stored blobs. Entries that do not parse
// as IDs are skipped.
func (s *Store) List(ctx context.Context) ([]ksid.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read blob directory: %w", err)
	}
	var ids []ksid.ID
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == tmpDirName {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read blob subdir %s: %w", entry.Name(), err)
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			id, err := ksid.Parse(file.Name())
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CleanupTmp removes stranded temp files from interrupted writes.
func (s *Store) CleanupTmp(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.dir, tmpDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read tmp directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove temp file %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// pathFor returns the payload path for an ID, fanned out by the first
// two characters of its string form. Encodings shorter than two
// characters (only possible for hand-built IDs) fall back to a single
// shared bucket.
func (s *Store) pathFor(id ksid.ID) string {
	encoded := id.String()
	prefix := "00"
	if len(encoded) >= 2 {
		prefix = encoded[:2]
	}
	return filepath.Join(s.dir, prefix, encoded)
}

var errZeroID = fmt.Errorf("blob id must not be zero")
