package service

import (
	"context"
	"strings"
	"testing"

	"github.com/maruel/ksid"
)

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("clean stores report nothing", func(t *testing.T) {
		s := newTestService(t, 0)
		sess := signup(t, s, "alice", "Alice", "pw1")
		if _, err := s.AddFile(ctx, sess, "a.txt", "text/plain", strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
		report, err := s.Reconcile(ctx)
		if err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		if report.OrphanBlobsRemoved != 0 || report.DanglingFiles != 0 {
			t.Errorf("report = %+v, want zeroes", report)
		}
	})

	t.Run("orphan blobs are deleted", func(t *testing.T) {
		s := newTestService(t, 0)
		sess := signup(t, s, "alice", "Alice", "pw1")
		kept, err := s.AddFile(ctx, sess, "kept.txt", "text/plain", strings.NewReader("kept"))
		if err != nil {
			t.Fatal(err)
		}
		// A blob no metadata references, as left behind by a crash
		// between the blob write and the metadata save.
		orphan := ksid.NewID()
		if err := s.blobs.PutBytes(ctx, orphan, []byte("orphan")); err != nil {
			t.Fatal(err)
		}

		report, err := s.Reconcile(ctx)
		if err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		if report.OrphanBlobsRemoved != 1 {
			t.Errorf("OrphanBlobsRemoved = %d, want 1", report.OrphanBlobsRemoved)
		}
		data, err := s.blobs.Get(ctx, orphan)
		if err != nil {
			t.Fatal(err)
		}
		if data != nil {
			t.Error("orphan blob survived the sweep")
		}
		// The referenced blob is untouched.
		if _, data, err := s.FileContent(ctx, sess, kept.ID); err != nil || string(data) != "kept" {
			t.Errorf("referenced blob damaged: %q, %v", data, err)
		}
	})

	t.Run("dangling metadata is reported and kept", func(t *testing.T) {
		s := newTestService(t, 0)
		sess := signup(t, s, "alice", "Alice", "pw1")
		meta, err := s.AddFile(ctx, sess, "a.txt", "text/plain", strings.NewReader("x"))
		if err != nil {
			t.Fatal(err)
		}
		if err := s.blobs.Delete(ctx, meta.ID); err != nil {
			t.Fatal(err)
		}

		report, err := s.Reconcile(ctx)
		if err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		if report.DanglingFiles != 1 {
			t.Errorf("DanglingFiles = %d, want 1", report.DanglingFiles)
		}
		// The metadata is not repaired; it still lists and renders
		// as missing.
		if _, err := s.GetFile(sess, meta.ID); err != nil {
			t.Errorf("dangling metadata was removed: %v", err)
		}
	})
}
