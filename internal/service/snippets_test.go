package service

import (
	"errors"
	"testing"
	"time"

	"github.com/maruel/ksid"

	"github.com/ermchat/ermchat/internal/models"
)

func TestSnippets(t *testing.T) {
	t.Run("edit bumps updatedAt, createdAt unchanged", func(t *testing.T) {
		s := newTestService(t, 0)
		sess := signup(t, s, "alice", "Alice", "pw1")

		t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return t0 }
		snip, err := s.CreateSnippet(sess, "hi", "js", "console.log(1)")
		if err != nil {
			t.Fatalf("CreateSnippet failed: %v", err)
		}
		if !snip.CreatedAt.Equal(t0) || !snip.UpdatedAt.Equal(t0) {
			t.Errorf("unexpected timestamps: %+v", snip)
		}

		t1 := t0.Add(time.Hour)
		s.now = func() time.Time { return t1 }
		updated, err := s.UpdateSnippet(sess, snip.ID, "hi", "js", "console.log(2)")
		if err != nil {
			t.Fatalf("UpdateSnippet failed: %v", err)
		}
		if !updated.CreatedAt.Equal(t0) {
			t.Errorf("CreatedAt changed on edit: %v", updated.CreatedAt)
		}
		if !updated.UpdatedAt.Equal(t1) {
			t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, t1)
		}
		if updated.Code != "console.log(2)" {
			t.Errorf("Code = %q", updated.Code)
		}
	})

	t.Run("update of a missing snippet", func(t *testing.T) {
		s := newTestService(t, 0)
		sess := signup(t, s, "alice", "Alice", "pw1")
		if _, err := s.UpdateSnippet(sess, ksid.NewID(), "t", "l", "c"); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateSnippet error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list filters and sorts by updatedAt descending", func(t *testing.T) {
		s := newTestService(t, 0)
		sess := signup(t, s, "alice", "Alice", "pw1")

		base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		mk := func(offset time.Duration, title, lang, code string) models.Snippet {
			s.now = func() time.Time { return base.Add(offset) }
			snip, err := s.CreateSnippet(sess, title, lang, code)
			if err != nil {
				t.Fatal(err)
			}
			return snip
		}
		mk(0, "sort helper", "go", "package x")
		mk(time.Minute, "fizzbuzz", "js", "for (...)")
		mk(2*time.Minute, "quicksort", "go", "func qs()")

		all, err := s.ListSnippets(sess, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Fatalf("ListSnippets returned %d, want 3", len(all))
		}
		if all[0].Title != "quicksort" || all[2].Title != "sort helper" {
			t.Errorf("wrong order: %q, %q, %q", all[0].Title, all[1].Title, all[2].Title)
		}

		goOnly, err := s.ListSnippets(sess, "go")
		if err != nil {
			t.Fatal(err)
		}
		if len(goOnly) != 2 {
			t.Errorf("ListSnippets(go) returned %d, want 2", len(goOnly))
		}

		byTitle, err := s.ListSnippets(sess, "FIZZ")
		if err != nil {
			t.Fatal(err)
		}
		if len(byTitle) != 1 || byTitle[0].Title != "fizzbuzz" {
			t.Errorf("case-insensitive title search failed: %+v", byTitle)
		}
	})

	t.Run("delete leaves shared references dangling", func(t *testing.T) {
		s := newTestService(t, 0)
		sess := signup(t, s, "alice", "Alice", "pw1")
		if err := s.AddContact(sess, "bob"); err != nil {
			t.Fatal(err)
		}
		snip, err := s.CreateSnippet(sess, "hi", "js", "1")
		if err != nil {
			t.Fatal(err)
		}
		msg, err := s.ShareSnippet(sess, "bob", snip.ID)
		if err != nil {
			t.Fatalf("ShareSnippet failed: %v", err)
		}
		if len(msg.Attachments) != 1 || msg.Attachments[0].ID != snip.ID {
			t.Fatalf("unexpected attachments: %+v", msg.Attachments)
		}

		if err := s.DeleteSnippet(sess, snip.ID); err != nil {
			t.Fatalf("DeleteSnippet failed: %v", err)
		}

		// The message still carries the reference, unrewritten.
		conv, err := s.Conversation(sess, "bob")
		if err != nil {
			t.Fatal(err)
		}
		if len(conv) != 1 || len(conv[0].Attachments) != 1 {
			t.Fatalf("message was rewritten on snippet delete: %+v", conv)
		}
		if conv[0].Attachments[0].ID != snip.ID {
			t.Error("attachment reference changed")
		}
		// But it now dangles.
		if _, ok := s.ResolveAttachment("alice", conv[0].Attachments[0]); ok {
			t.Error("deleted snippet still resolves")
		}
	})

	t.Run("operations require a session", func(t *testing.T) {
		s := newTestService(t, 0)
		if _, err := s.CreateSnippet(nil, "t", "l", "c"); !errors.Is(err, ErrNotLoggedIn) {
			t.Errorf("CreateSnippet error = %v, want ErrNotLoggedIn", err)
		}
		if _, err := s.ListSnippets(&Session{}, ""); !errors.Is(err, ErrNotLoggedIn) {
			t.Errorf("ListSnippets error = %v, want ErrNotLoggedIn", err)
		}
	})

	t.Run("sharing an unknown snippet fails", func(t *testing.T) {
		s := newTestService(t, 0)
		sess := signup(t, s, "alice", "Alice", "pw1")
		if _, err := s.ShareSnippet(sess, "bob", ksid.NewID()); !errors.Is(err, ErrNotFound) {
			t.Errorf("ShareSnippet error = %v, want ErrNotFound", err)
		}
	})
}
