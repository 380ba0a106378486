// Messaging. A message is stored exactly once, in the sender's own
// list; a conversation is the merged filtered view over both
// participants' lists. Nothing is ever written into the recipient's
// record beyond the stub that holds its place in the mapping.

package service

import (
	"errors"
	"slices"

	"github.com/maruel/ksid"

	"github.com/ermchat/ermchat/internal/models"
)

// SendMessage appends a message to the sender's own list. Attachment
// references are taken as-is: they are not re-validated when the
// referenced entity is later deleted.
func (s *Service) SendMessage(sess *Session, to, text string, attachments []models.Attachment) (models.Message, error) {
	to = models.NormalizeUsername(to)
	if to == "" {
		return models.Message{}, errors.New("recipient is required")
	}
	for i := range attachments {
		if err := attachments[i].Validate(); err != nil {
			return models.Message{}, err
		}
	}
	if err := requireSession(sess); err != nil {
		return models.Message{}, err
	}
	msg := models.Message{
		ID:          ksid.NewID(),
		From:        sess.Username,
		To:          to,
		Text:        text,
		CreatedAt:   s.now(),
		Attachments: append([]models.Attachment{}, attachments...),
	}
	err := s.docs.Mutate(func(users map[string]*models.User) error {
		u := users[sess.Username]
		if u == nil {
			return ErrUserNotFound
		}
		ensureUser(users, to)
		u.Messages = append(u.Messages, msg)
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Conversation returns all messages between the session user and
// other, oldest first. Both participants' lists are filtered for the
// pair and merged.
func (s *Service) Conversation(sess *Session, other string) ([]models.Message, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	other = models.NormalizeUsername(other)
	users := s.docs.Load()
	me := users[sess.Username]
	if me == nil {
		return nil, ErrUserNotFound
	}

	var out []models.Message
	collect := func(u *models.User) {
		if u == nil {
			return
		}
		for _, m := range u.Messages {
			if (m.From == sess.Username && m.To == other) || (m.From == other && m.To == sess.Username) {
				out = append(out, m)
			}
		}
	}
	collect(me)
	if other != sess.Username {
		collect(users[other])
	}

	slices.SortFunc(out, func(a, b models.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		// IDs are time-ordered; break timestamp ties deterministically.
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

// Conversations returns the distinct users the session user has
// exchanged messages with, most recent activity first. Messages sent
// to the session user by others are found by scanning every record,
// since senders keep the only copy.
func (s *Service) Conversations(sess *Session) ([]string, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	users := s.docs.Load()
	if users[sess.Username] == nil {
		return nil, ErrUserNotFound
	}

	last := map[string]models.Message{}
	note := func(peer string, m models.Message) {
		if prev, ok := last[peer]; !ok || m.CreatedAt.After(prev.CreatedAt) {
			last[peer] = m
		}
	}
	for _, u := range users {
		for _, m := range u.Messages {
			switch {
			case m.From == sess.Username:
				note(m.To, m)
			case m.To == sess.Username:
				note(m.From, m)
			}
		}
	}

	peers := make([]string, 0, len(last))
	for peer := range last {
		peers = append(peers, peer)
	}
	slices.SortFunc(peers, func(a, b string) int {
		return last[b].CreatedAt.Compare(last[a].CreatedAt)
	})
	return peers, nil
}

// ResolveAttachment looks up what a message attachment points at. The
// second return is false when the reference dangles, which the view
// renders as missing.
func (s *Service) ResolveAttachment(owner string, a models.Attachment) (any, bool) {
	u := s.docs.Get(models.NormalizeUsername(owner))
	if u == nil {
		return nil, false
	}
	switch a.Kind {
	case models.AttachmentSnippet:
		for _, snip := range u.Snippets {
			if snip.ID == a.ID {
				return snip, true
			}
		}
	case models.AttachmentFile:
		for _, f := range u.Files {
			if f.ID == a.ID {
				return f, true
			}
		}
	}
	return nil, false
}
