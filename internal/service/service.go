// Package service implements the domain logic: auth, snippets, files,
// contacts, messages, export/import and the startup reconciliation
// sweep.
//
// It is the only writer of both stores. The document store is written
// synchronously with a full-store rewrite after every mutation; blob
// writes and deletes are issued as independent operations with no
// rollback spanning the two stores, so a failure between them leaves
// an orphan blob or dangling metadata until the next reconciliation.
package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ermchat/ermchat/internal/blobstore"
	"github.com/ermchat/ermchat/internal/docstore"
	"github.com/ermchat/ermchat/internal/models"
)

// Session identifies the logged-in user. There is no global session
// state: every domain call takes the session it acts for.
type Session struct {
	Username    string
	DisplayName string
}

// Service wires the two stores together.
type Service struct {
	docs    *docstore.Store
	blobs   *blobstore.Store
	pointer *docstore.SessionPointer

	// Login throttling, per normalized username.
	loginLimit rate.Limit
	loginBurst int
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	now func() time.Time
}

// New creates the domain service. loginPerMin limits login attempts
// per username per minute; 0 disables the limit.
func New(docs *docstore.Store, blobs *blobstore.Store, pointer *docstore.SessionPointer, loginPerMin int) *Service {
	s := &Service{
		docs:       docs,
		blobs:      blobs,
		pointer:    pointer,
		loginLimit: rate.Inf,
		loginBurst: 1,
		limiters:   make(map[string]*rate.Limiter),
		now:        time.Now,
	}
	if loginPerMin > 0 {
		s.loginLimit = rate.Every(time.Minute / time.Duration(loginPerMin))
		s.loginBurst = loginPerMin
	}
	return s
}

// limiterFor returns the login limiter for a normalized username.
func (s *Service) limiterFor(username string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	l := s.limiters[username]
	if l == nil {
		l = rate.NewLimiter(s.loginLimit, s.loginBurst)
		s.limiters[username] = l
	}
	return l
}

// requireSession validates that sess carries a logged-in user.
func requireSession(sess *Session) error {
	if sess == nil || sess.Username == "" {
		return ErrNotLoggedIn
	}
	return nil
}

// mutateOwn runs fn against the session user's record inside the
// store-wide read-modify-write sequence and persists the full mapping
// afterwards.
func (s *Service) mutateOwn(sess *Session, fn func(u *models.User) error) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	return s.docs.Mutate(func(users map[string]*models.User) error {
		u := users[sess.Username]
		if u == nil {
			return ErrUserNotFound
		}
		return fn(u)
	})
}

// ownUser returns a copy of the session user's record.
func (s *Service) ownUser(sess *Session) (*models.User, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	u := s.docs.Get(sess.Username)
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// ensureUser creates a stub record for username if none exists.
// Stub records hold contacts' and recipients' place in the mapping;
// they have no credentials and cannot log in.
func ensureUser(users map[string]*models.User, username string) {
	if users[username] == nil {
		users[username] = models.NewUser(username, username)
	}
}
