// Package models defines the persistent entities: users and the
// collections they own (snippets, file metadata, messages, contacts).
//
// All entities are plain tagged structs. File payloads are never
// embedded in FileMeta; they live in the blob store under the same ID.
package models

import (
	"errors"
	"strings"
	"time"

	"github.com/maruel/ksid"
)

// AttachmentKind discriminates what a message attachment points at.
type AttachmentKind string

const (
	// AttachmentFile references a FileMeta (and its blob) by ID.
	AttachmentFile AttachmentKind = "file"
	// AttachmentSnippet references a Snippet by ID.
	AttachmentSnippet AttachmentKind = "snippet"
)

// User is one account record, keyed by lowercased username in the
// document store mapping.
//
// A user with an empty PassHash is a stub: it was created because a
// contact or message referenced a username that never signed up. Stubs
// own nothing and can never log in.
type User struct {
	Username    string     `json:"username" jsonschema:"description=Lowercased unique username"`
	DisplayName string     `json:"displayName" jsonschema:"description=Name shown in the UI"`
	PassHash    string     `json:"passHash" jsonschema:"description=Bcrypt hash of the password; empty for stub users"`
	Contacts    []string   `json:"contacts" jsonschema:"description=Usernames this user lists as contacts"`
	Snippets    []Snippet  `json:"snippets" jsonschema:"description=Owned code snippets"`
	Files       []FileMeta `json:"files" jsonschema:"description=Owned file metadata; payloads live in the blob store"`
	Messages    []Message  `json:"messages" jsonschema:"description=Messages sent by this user"`
}

// NewUser returns an empty user record with all collections allocated.
func NewUser(username, displayName string) *User {
	return &User{
		Username:    username,
		DisplayName: displayName,
		Contacts:    []string{},
		Snippets:    []Snippet{},
		Files:       []FileMeta{},
		Messages:    []Message{},
	}
}

// IsStub reports whether the record was created implicitly and has no
// credentials.
func (u *User) IsStub() bool {
	return u.PassHash == ""
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	c.Contacts = append([]string(nil), u.Contacts...)
	c.Snippets = append([]Snippet(nil), u.Snippets...)
	c.Files = append([]FileMeta(nil), u.Files...)
	c.Messages = make([]Message, len(u.Messages))
	for i, m := range u.Messages {
		c.Messages[i] = m
		c.Messages[i].Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return &c
}

// Validate checks that the user record is well-formed.
func (u *User) Validate() error {
	if u.Username == "" {
		return errUsernameRequired
	}
	if u.Username != NormalizeUsername(u.Username) {
		return errUsernameNotNormalized
	}
	return nil
}

// Snippet is a stored piece of text owned by exactly one user.
type Snippet struct {
	ID        ksid.ID   `json:"id" jsonschema:"description=Unique snippet identifier"`
	Title     string    `json:"title" jsonschema:"description=Snippet title"`
	Lang      string    `json:"lang" jsonschema:"description=Language label (js, go, ...)"`
	Code      string    `json:"code" jsonschema:"description=Snippet body"`
	CreatedAt time.Time `json:"createdAt" jsonschema:"description=Creation timestamp"`
	UpdatedAt time.Time `json:"updatedAt" jsonschema:"description=Bumped on every edit"`
}

// FileMeta describes a stored file. The payload is keyed by the same
// ID in the blob store; while the metadata exists the blob should too,
// but nothing enforces it transactionally.
type FileMeta struct {
	ID        ksid.ID   `json:"id" jsonschema:"description=Unique file identifier; blob store key"`
	Name      string    `json:"name" jsonschema:"description=Original file name"`
	Size      int64     `json:"size" jsonschema:"description=Payload size in bytes"`
	Type      string    `json:"type" jsonschema:"description=MIME type"`
	CreatedAt time.Time `json:"createdAt" jsonschema:"description=Upload timestamp"`
}

// Message is stored once, under the sender's own list. A conversation
// between two users is the merged filtered view of both lists.
type Message struct {
	ID          ksid.ID      `json:"id" jsonschema:"description=Unique message identifier"`
	From        string       `json:"from" jsonschema:"description=Sender username"`
	To          string       `json:"to" jsonschema:"description=Recipient username"`
	Text        string       `json:"text" jsonschema:"description=Message body"`
	CreatedAt   time.Time    `json:"createdAt" jsonschema:"description=Send timestamp"`
	Attachments []Attachment `json:"attachments" jsonschema:"description=References to shared snippets or files"`
}

// Attachment references a snippet or file by ID. It is never a copy:
// if the owner deletes the referenced entity the attachment dangles
// and renders as missing.
type Attachment struct {
	Kind AttachmentKind `json:"kind" jsonschema:"description=file or snippet"`
	ID   ksid.ID        `json:"id" jsonschema:"description=Referenced entity ID"`
}

// Validate checks the attachment kind.
func (a *Attachment) Validate() error {
	switch a.Kind {
	case AttachmentFile, AttachmentSnippet:
		return nil
	default:
		return errBadAttachmentKind
	}
}

// NormalizeUsername applies the canonical username normalization:
// trim surrounding whitespace, then lowercase.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

var (
	errUsernameRequired      = errors.New("username is required")
	errUsernameNotNormalized = errors.New("username must be trimmed and lowercase")
	errBadAttachmentKind     = errors.New("attachment kind must be file or snippet")
)
