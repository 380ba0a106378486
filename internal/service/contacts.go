// Contact list. No reciprocity: adding a contact never touches the
// other user's list.

package service

import (
	"errors"
	"slices"

	"github.com/ermchat/ermchat/internal/models"
)

// AddContact adds a username to the session user's contact list.
//
// If the target never signed up, a stub record is created to hold its
// place in the mapping. Adding an existing contact is a no-op.
func (s *Service) AddContact(sess *Session, username string) error {
	username = models.NormalizeUsername(username)
	if username == "" {
		return errors.New("contact username is required")
	}
	if sess != nil && username == sess.Username {
		return errors.New("cannot add yourself as a contact")
	}
	if err := requireSession(sess); err != nil {
		return err
	}
	return s.docs.Mutate(func(users map[string]*models.User) error {
		u := users[sess.Username]
		if u == nil {
			return ErrUserNotFound
		}
		ensureUser(users, username)
		if slices.Contains(u.Contacts, username) {
			return nil
		}
		u.Contacts = append(u.Contacts, username)
		return nil
	})
}

// RemoveContact removes a username from the session user's contact
// list.
func (s *Service) RemoveContact(sess *Session, username string) error {
	username = models.NormalizeUsername(username)
	return s.mutateOwn(sess, func(u *models.User) error {
		i := slices.Index(u.Contacts, username)
		if i < 0 {
			return ErrNotFound
		}
		u.Contacts = slices.Delete(u.Contacts, i, i+1)
		return nil
	})
}

// Contact pairs a contact's username with its display name for
// rendering.
type Contact struct {
	Username    string
	DisplayName string
}

// ListContacts returns the session user's contacts in list order,
// with display names resolved from the mapping where a record exists.
func (s *Service) ListContacts(sess *Session) ([]Contact, error) {
	u, err := s.ownUser(sess)
	if err != nil {
		return nil, err
	}
	users := s.docs.Load()
	out := make([]Contact, 0, len(u.Contacts))
	for _, name := range u.Contacts {
		c := Contact{Username: name, DisplayName: name}
		if other := users[name]; other != nil {
			c.DisplayName = other.DisplayName
		}
		out = append(out, c)
	}
	return out, nil
}
