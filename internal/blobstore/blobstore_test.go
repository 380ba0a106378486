package blobstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/maruel/ksid"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Open is idempotent", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "blobs")
		if _, err := Open(ctx, dir); err != nil {
			t.Fatalf("first Open failed: %v", err)
		}
		if _, err := Open(ctx, dir); err != nil {
			t.Fatalf("second Open failed: %v", err)
		}
	})

	t.Run("Put then Get round-trips", func(t *testing.T) {
		s := setupStore(t)
		id := ksid.NewID()
		payload := []byte("hello blob")
		n, err := s.Put(ctx, id, bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if n != int64(len(payload)) {
			t.Errorf("Put wrote %d bytes, want %d", n, len(payload))
		}
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("Get() = %q, want %q", got, payload)
		}
	})

	t.Run("Get on missing id returns nil, no error", func(t *testing.T) {
		s := setupStore(t)
		got, err := s.Get(ctx, ksid.NewID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("Get() = %q, want nil", got)
		}
	})

	t.Run("Put overwrites", func(t *testing.T) {
		s := setupStore(t)
		id := ksid.NewID()
		if err := s.PutBytes(ctx, id, []byte("first")); err != nil {
			t.Fatal(err)
		}
		if err := s.PutBytes(ctx, id, []byte("second")); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "second" {
			t.Errorf("Get() = %q, want %q", got, "second")
		}
	})

	t.Run("Delete removes the payload", func(t *testing.T) {
		s := setupStore(t)
		id := ksid.NewID()
		if err := s.PutBytes(ctx, id, []byte("data")); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, id); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Error("payload still readable after Delete")
		}
	})

	t.Run("Delete on missing id is not an error", func(t *testing.T) {
		s := setupStore(t)
		if err := s.Delete(ctx, ksid.NewID()); err != nil {
			t.Errorf("Delete failed: %v", err)
		}
	})

	t.Run("zero id is rejected", func(t *testing.T) {
		s := setupStore(t)
		if err := s.PutBytes(ctx, 0, []byte("data")); err == nil {
			t.Error("Put accepted a zero id")
		}
		if _, err := s.Get(ctx, 0); err == nil {
			t.Error("Get accepted a zero id")
		}
		if err := s.Delete(ctx, 0); err == nil {
			t.Error("Delete accepted a zero id")
		}
	})

	t.Run("List returns stored ids", func(t *testing.T) {
		s := setupStore(t)
		ids := []ksid.ID{ksid.NewID(), ksid.NewID(), ksid.NewID()}
		for _, id := range ids {
			if err := s.PutBytes(ctx, id, []byte("x")); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != len(ids) {
			t.Fatalf("List returned %d ids, want %d", len(got), len(ids))
		}
		for _, id := range ids {
			if !slices.Contains(got, id) {
				t.Errorf("List missing %s", id)
			}
		}
	})

	t.Run("cancelled context aborts operations", func(t *testing.T) {
		s := setupStore(t)
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		if err := s.PutBytes(cancelled, ksid.NewID(), []byte("x")); err == nil {
			t.Error("Put ignored a cancelled context")
		}
		if _, err := s.Get(cancelled, ksid.NewID()); err == nil {
			t.Error("Get ignored a cancelled context")
		}
	})

	t.Run("CleanupTmp removes stranded temp files", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "blobs")
		s, err := Open(ctx, dir)
		if err != nil {
			t.Fatal(err)
		}
		stranded := filepath.Join(dir, tmpDirName, "stranded.tmp")
		if err := os.WriteFile(stranded, []byte("partial"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := s.CleanupTmp(ctx); err != nil {
			t.Fatalf("CleanupTmp failed: %v", err)
		}
		if _, err := os.Stat(stranded); !os.IsNotExist(err) {
			t.Error("stranded temp file survived cleanup")
		}
	})
}
