package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ermchat/ermchat/internal/blobstore"
	"github.com/ermchat/ermchat/internal/docstore"
)

// newTestService builds a service over fresh stores in the test's
// temp directory. loginPerMin 0 disables throttling.
func newTestService(t *testing.T, loginPerMin int) *Service {
	t.Helper()
	dir := t.TempDir()
	docs, err := docstore.Open(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("docstore.Open failed: %v", err)
	}
	blobs, err := blobstore.Open(context.Background(), filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("blobstore.Open failed: %v", err)
	}
	pointer := docstore.NewSessionPointer(filepath.Join(dir, "db"), []byte("test-secret"), 0)
	return New(docs, blobs, pointer, loginPerMin)
}

// signup creates a user and fails the test on error.
func signup(t *testing.T, s *Service, username, displayName, password string) *Session {
	t.Helper()
	sess, err := s.Signup(context.Background(), username, displayName, password)
	if err != nil {
		t.Fatalf("Signup(%q) failed: %v", username, err)
	}
	return sess
}
