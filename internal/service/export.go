// Export and import. An archive is self-contained: the user mapping
// subtree plus base64 payloads for every referenced blob, portable
// without the blob store.

package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"

	"github.com/ermchat/ermchat/internal/models"
)

// Archive is the export document format.
type Archive struct {
	Users map[string]*models.User `json:"users" jsonschema:"description=Exported user records keyed by username"`
	Blobs map[string]string       `json:"blobs" jsonschema:"description=Base64-encoded file payloads keyed by file ID"`
}

// ExportUser produces an archive holding only the session user's
// record and blob payloads. Files whose blob is already missing are
// exported without a payload; the dangle travels with the archive.
func (s *Service) ExportUser(ctx context.Context, sess *Session) (*Archive, error) {
	u, err := s.ownUser(sess)
	if err != nil {
		return nil, err
	}
	return s.buildArchive(ctx, map[string]*models.User{u.Username: u})
}

// ExportAll produces an archive of the entire store. A session is
// still required: export is an in-app operation.
func (s *Service) ExportAll(ctx context.Context, sess *Session) (*Archive, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.buildArchive(ctx, s.docs.Load())
}

func (s *Service) buildArchive(ctx context.Context, users map[string]*models.User) (*Archive, error) {
	a := &Archive{Users: users, Blobs: map[string]string{}}
	for _, u := range users {
		for _, f := range u.Files {
			data, err := s.blobs.Get(ctx, f.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
			}
			if data == nil {
				slog.WarnContext(ctx, "Exporting file with missing blob", "id", f.ID, "name", f.Name)
				continue
			}
			a.Blobs[f.ID.String()] = base64.StdEncoding.EncodeToString(data)
		}
	}
	return a, nil
}

// Import merges an archive into the store. Usernames that already
// exist are overwritten wholesale: the archive is a full snapshot of
// each record, so field-level merging has no defined meaning. Blob
// payloads are repopulated after the mapping is saved; a blob write
// failure leaves dangling metadata for the reconciliation sweep to
// report.
//
// Import does not require a session so an archive can be restored
// into an empty store.
func (s *Service) Import(ctx context.Context, a *Archive) error {
	for name, u := range a.Users {
		if u == nil {
			return fmt.Errorf("archive user %q is null", name)
		}
		if name != models.NormalizeUsername(name) || name != u.Username {
			return fmt.Errorf("archive user %q does not match its record username %q", name, u.Username)
		}
		if err := u.Validate(); err != nil {
			return fmt.Errorf("archive user %q: %w", name, err)
		}
	}

	err := s.docs.Mutate(func(users map[string]*models.User) error {
		for name, u := range a.Users {
			users[name] = u.Clone()
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, u := range a.Users {
		for _, f := range u.Files {
			encoded, ok := a.Blobs[f.ID.String()]
			if !ok {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return fmt.Errorf("archive blob %s: %w", f.ID, err)
			}
			if err := s.blobs.PutBytes(ctx, f.ID, data); err != nil {
				return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
			}
		}
	}
	slog.InfoContext(ctx, "Imported archive", "users", len(a.Users), "blobs", len(a.Blobs))
	return nil
}

// ArchiveSchema returns the JSON Schema of the archive format, for
// external tooling that consumes exports.
func ArchiveSchema() ([]byte, error) {
	r := jsonschema.Reflector{}
	schema := r.Reflect(&Archive{})
	return json.MarshalIndent(schema, "", "  ")
}
