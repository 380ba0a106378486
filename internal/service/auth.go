// Auth: signup, login, session resume, logout, profile and account
// deletion.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ermchat/ermchat/internal/models"
)

// Signup creates an account and logs it in.
//
// The username is normalized (trim, lowercase) and must be free: any
// existing record, including a stub created by a contact add or an
// inbound message, makes it ErrDuplicateUser. Signup ends with a full
// Login pass over the just-written record, not a shortcut.
func (s *Service) Signup(ctx context.Context, username, displayName, password string) (*Session, error) {
	username = models.NormalizeUsername(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.docs.Mutate(func(users map[string]*models.User) error {
		if users[username] != nil {
			return ErrDuplicateUser
		}
		u := models.NewUser(username, strings.TrimSpace(displayName))
		u.PassHash = string(hash)
		users[username] = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.pointer.Set(username); err != nil {
		return nil, err
	}
	return s.Login(ctx, username, password)
}

// Login validates credentials, sets the durable session pointer and
// returns a live session.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	username = models.NormalizeUsername(username)
	if !s.limiterFor(username).Allow() {
		return nil, ErrTooManyAttempts
	}
	u := s.docs.Get(username)
	if u == nil {
		return nil, ErrUserNotFound
	}
	// Stub users have an empty hash and can never authenticate.
	if err := bcrypt.CompareHashAndPassword([]byte(u.PassHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	if err := s.pointer.Set(username); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Logged in", "user", username)
	return &Session{Username: username, DisplayName: u.DisplayName}, nil
}

// Resume restores the session named by the durable pointer, or returns
// nil if no resumable session exists.
func (s *Service) Resume(ctx context.Context) (*Session, error) {
	username, err := s.pointer.Get()
	if err != nil {
		return nil, err
	}
	if username == "" {
		return nil, nil
	}
	u := s.docs.Get(username)
	if u == nil || u.IsStub() {
		return nil, nil
	}
	slog.DebugContext(ctx, "Resumed session", "user", username)
	return &Session{Username: username, DisplayName: u.DisplayName}, nil
}

// Logout clears the durable session pointer. The document store is
// untouched.
func (s *Service) Logout(sess *Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	return s.pointer.Set("")
}

// UpdateProfile changes the display name of the session user.
func (s *Service) UpdateProfile(sess *Session, displayName string) (*Session, error) {
	displayName = strings.TrimSpace(displayName)
	err := s.mutateOwn(sess, func(u *models.User) error {
		u.DisplayName = displayName
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Session{Username: sess.Username, DisplayName: displayName}, nil
}

// DeleteAccount removes the user record and cascades to its blobs.
//
// The record is removed from the document store first; blob deletion
// is best-effort afterwards, so a failure can strand orphan blobs
// until the next reconciliation sweep.
func (s *Service) DeleteAccount(ctx context.Context, sess *Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	var files []models.FileMeta
	err := s.docs.Mutate(func(users map[string]*models.User) error {
		u := users[sess.Username]
		if u == nil {
			return ErrUserNotFound
		}
		files = append(files, u.Files...)
		delete(users, sess.Username)
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.pointer.Set(""); err != nil {
		return err
	}
	var errs []error
	for _, f := range files {
		if err := s.blobs.Delete(ctx, f.ID); err != nil {
			errs = append(errs, fmt.Errorf("%w: deleting blob %s: %w", ErrStorageUnavailable, f.ID, err))
		}
	}
	if len(errs) > 0 {
		slog.WarnContext(ctx, "Account deleted with stranded blobs", "user", sess.Username, "count", len(errs))
		return errors.Join(errs...)
	}
	slog.InfoContext(ctx, "Account deleted", "user", sess.Username)
	return nil
}
