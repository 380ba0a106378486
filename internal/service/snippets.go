// Snippet CRUD. Every mutation ends in a full-store save.

package service

import (
	"slices"
	"strings"

	"github.com/maruel/ksid"

	"github.com/ermchat/ermchat/internal/models"
)

// CreateSnippet stores a new snippet for the session user.
func (s *Service) CreateSnippet(sess *Session, title, lang, code string) (models.Snippet, error) {
	now := s.now()
	snip := models.Snippet{
		ID:        ksid.NewID(),
		Title:     title,
		Lang:      lang,
		Code:      code,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.mutateOwn(sess, func(u *models.User) error {
		u.Snippets = append(u.Snippets, snip)
		return nil
	})
	if err != nil {
		return models.Snippet{}, err
	}
	return snip, nil
}

// UpdateSnippet edits an owned snippet. UpdatedAt is bumped; CreatedAt
// never changes.
func (s *Service) UpdateSnippet(sess *Session, id ksid.ID, title, lang, code string) (models.Snippet, error) {
	var updated models.Snippet
	err := s.mutateOwn(sess, func(u *models.User) error {
		for i := range u.Snippets {
			if u.Snippets[i].ID != id {
				continue
			}
			u.Snippets[i].Title = title
			u.Snippets[i].Lang = lang
			u.Snippets[i].Code = code
			u.Snippets[i].UpdatedAt = s.now()
			updated = u.Snippets[i]
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return models.Snippet{}, err
	}
	return updated, nil
}

// DeleteSnippet removes an owned snippet. Messages that attached it
// are not rewritten: their references dangle and render as missing.
func (s *Service) DeleteSnippet(sess *Session, id ksid.ID) error {
	return s.mutateOwn(sess, func(u *models.User) error {
		for i := range u.Snippets {
			if u.Snippets[i].ID == id {
				u.Snippets = slices.Delete(u.Snippets, i, i+1)
				return nil
			}
		}
		return ErrNotFound
	})
}

// GetSnippet returns one owned snippet.
func (s *Service) GetSnippet(sess *Session, id ksid.ID) (models.Snippet, error) {
	u, err := s.ownUser(sess)
	if err != nil {
		return models.Snippet{}, err
	}
	for _, snip := range u.Snippets {
		if snip.ID == id {
			return snip, nil
		}
	}
	return models.Snippet{}, ErrNotFound
}

// ListSnippets returns the session user's snippets, optionally
// filtered by a case-insensitive substring match on title, language
// and body, most recently updated first.
func (s *Service) ListSnippets(sess *Session, query string) ([]models.Snippet, error) {
	u, err := s.ownUser(sess)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	var out []models.Snippet
	for _, snip := range u.Snippets {
		if query != "" &&
			!strings.Contains(strings.ToLower(snip.Title), query) &&
			!strings.Contains(strings.ToLower(snip.Lang), query) &&
			!strings.Contains(strings.ToLower(snip.Code), query) {
			continue
		}
		out = append(out, snip)
	}
	slices.SortFunc(out, func(a, b models.Snippet) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}

// ShareSnippet sends a message to a contact carrying a reference to an
// owned snippet. The snippet content is not copied; deleting it later
// leaves the recipient's view dangling.
func (s *Service) ShareSnippet(sess *Session, to string, id ksid.ID) (models.Message, error) {
	if _, err := s.GetSnippet(sess, id); err != nil {
		return models.Message{}, err
	}
	return s.SendMessage(sess, to, "", []models.Attachment{{Kind: models.AttachmentSnippet, ID: id}})
}
