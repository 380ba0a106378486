// File CRUD: metadata in the document store, payload in the blob
// store, written as two independent operations with no rollback.

package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/maruel/ksid"

	"github.com/ermchat/ermchat/internal/models"
)

// AddFile stores a file: payload first, then metadata. If the metadata
// save fails after the payload was written, the blob is orphaned until
// the next reconciliation sweep.
func (s *Service) AddFile(ctx context.Context, sess *Session, name, mime string, r io.Reader) (models.FileMeta, error) {
	if err := requireSession(sess); err != nil {
		return models.FileMeta{}, err
	}
	id := ksid.NewID()
	size, err := s.blobs.Put(ctx, id, r)
	if err != nil {
		return models.FileMeta{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	meta := models.FileMeta{
		ID:        id,
		Name:      name,
		Size:      size,
		Type:      mime,
		CreatedAt: s.now(),
	}
	err = s.mutateOwn(sess, func(u *models.User) error {
		u.Files = append(u.Files, meta)
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "File metadata write failed after blob write, blob orphaned", "id", id, "err", err)
		return models.FileMeta{}, err
	}
	return meta, nil
}

// DeleteFile removes the metadata, then best-effort deletes the blob.
// A blob delete failure leaves an orphan; the metadata stays gone.
func (s *Service) DeleteFile(ctx context.Context, sess *Session, id ksid.ID) error {
	err := s.mutateOwn(sess, func(u *models.User) error {
		for i := range u.Files {
			if u.Files[i].ID == id {
				u.Files = slices.Delete(u.Files, i, i+1)
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, id); err != nil {
		slog.WarnContext(ctx, "Blob delete failed after metadata removal, blob orphaned", "id", id, "err", err)
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// GetFile returns one owned file's metadata.
func (s *Service) GetFile(sess *Session, id ksid.ID) (models.FileMeta, error) {
	u, err := s.ownUser(sess)
	if err != nil {
		return models.FileMeta{}, err
	}
	for _, f := range u.Files {
		if f.ID == id {
			return f, nil
		}
	}
	return models.FileMeta{}, ErrNotFound
}

// FileContent returns an owned file's metadata and payload. Metadata
// whose blob is gone is a renderable missing state, not an error: the
// payload comes back nil.
func (s *Service) FileContent(ctx context.Context, sess *Session, id ksid.ID) (models.FileMeta, []byte, error) {
	meta, err := s.GetFile(sess, id)
	if err != nil {
		return models.FileMeta{}, nil, err
	}
	data, err := s.blobs.Get(ctx, id)
	if err != nil {
		return models.FileMeta{}, nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return meta, data, nil
}

// ListFiles returns the session user's files, newest first.
func (s *Service) ListFiles(sess *Session) ([]models.FileMeta, error) {
	u, err := s.ownUser(sess)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(u.Files)
	slices.SortFunc(out, func(a, b models.FileMeta) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// ShareFile sends a message to a contact carrying a reference to an
// owned file. Only the reference travels; deleting the file later
// leaves it dangling.
func (s *Service) ShareFile(sess *Session, to string, id ksid.ID) (models.Message, error) {
	if _, err := s.GetFile(sess, id); err != nil {
		return models.Message{}, err
	}
	return s.SendMessage(sess, to, "", []models.Attachment{{Kind: models.AttachmentFile, ID: id}})
}
