package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/maruel/ksid"

	"github.com/ermchat/ermchat/internal/models"
	"github.com/ermchat/ermchat/internal/service"
)

// shell is the interactive view layer. It owns the current session and
// nothing else; all state changes go through the service.
type shell struct {
	svc  *service.Service
	sess *service.Session
	out  io.Writer
}

func (sh *shell) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(sh.out, "ermchat. Type \"help\" for commands.")
	if sh.sess != nil {
		fmt.Fprintf(sh.out, "Resumed session for %s.\n", sh.sess.Username)
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		sh.prompt()
		if !scanner.Scan() {
			fmt.Fprintln(sh.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		cmd, args := args[0], args[1:]
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if err := sh.dispatch(ctx, scanner, cmd, args); err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
}

func (sh *shell) prompt() {
	if sh.sess != nil {
		fmt.Fprintf(sh.out, "%s> ", sh.sess.Username)
	} else {
		fmt.Fprint(sh.out, "> ")
	}
}

func (sh *shell) dispatch(ctx context.Context, scanner *bufio.Scanner, cmd string, args []string) error {
	switch cmd {
	case "help":
		sh.printHelp()
		return nil
	case "signup":
		return sh.cmdSignup(ctx, args)
	case "login":
		return sh.cmdLogin(ctx, args)
	case "logout":
		return sh.cmdLogout()
	case "whoami":
		return sh.cmdWhoami()
	case "profile":
		return sh.cmdProfile(args)
	case "delete-account":
		return sh.cmdDeleteAccount(ctx, args)
	case "snippets":
		return sh.cmdSnippets(args)
	case "snippet":
		return sh.cmdSnippet(scanner, args)
	case "files":
		return sh.cmdFiles()
	case "file":
		return sh.cmdFile(ctx, args)
	case "contacts":
		return sh.cmdContacts()
	case "contact":
		return sh.cmdContact(args)
	case "chats":
		return sh.cmdChats()
	case "chat":
		return sh.cmdChat(args)
	case "send":
		return sh.cmdSend(args)
	case "export":
		return sh.cmdExport(ctx, args)
	case "import":
		return sh.cmdImport(ctx, args)
	default:
		return fmt.Errorf("unknown command %q, try \"help\"", cmd)
	}
}

func (sh *shell) printHelp() {
	fmt.Fprint(sh.out, `Accounts:
  signup <username> <password> [display name]
  login <username> <password>
  logout | whoami | profile <display name> | delete-account yes

Snippets:
  snippets [query]
  snippet add <title> <lang>        (code follows, end with a "." line)
  snippet show <id>
  snippet edit <id> <title> <lang>  (new code follows, end with ".")
  snippet rm <id>
  snippet share <user> <id>

Files:
  files
  file add <path>
  file save <id> <path>
  file rm <id>
  file share <user> <id>

Contacts and chat:
  contacts | contact add <user> | contact rm <user>
  chats | chat <user> | send <user> <text>

Archives:
  export <path> [all]
  import <path>

quit
`)
}

func (sh *shell) cmdSignup(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: signup <username> <password> [display name]")
	}
	display := strings.Join(args[2:], " ")
	if display == "" {
		display = args[0]
	}
	sess, err := sh.svc.Signup(ctx, args[0], display, args[1])
	if err != nil {
		return err
	}
	sh.sess = sess
	fmt.Fprintf(sh.out, "Welcome, %s.\n", sess.DisplayName)
	return nil
}

func (sh *shell) cmdLogin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <username> <password>")
	}
	sess, err := sh.svc.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	sh.sess = sess
	fmt.Fprintf(sh.out, "Welcome back, %s.\n", sess.DisplayName)
	return nil
}

func (sh *shell) cmdLogout() error {
	if err := sh.svc.Logout(sh.sess); err != nil {
		return err
	}
	sh.sess = nil
	fmt.Fprintln(sh.out, "Logged out.")
	return nil
}

func (sh *shell) cmdWhoami() error {
	if sh.sess == nil {
		fmt.Fprintln(sh.out, "Not logged in.")
		return nil
	}
	fmt.Fprintf(sh.out, "%s (%s)\n", sh.sess.Username, sh.sess.DisplayName)
	return nil
}

func (sh *shell) cmdProfile(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: profile <display name>")
	}
	sess, err := sh.svc.UpdateProfile(sh.sess, strings.Join(args, " "))
	if err != nil {
		return err
	}
	sh.sess = sess
	fmt.Fprintf(sh.out, "Display name is now %q.\n", sess.DisplayName)
	return nil
}

func (sh *shell) cmdDeleteAccount(ctx context.Context, args []string) error {
	// Destructive and not undoable; require the explicit confirmation
	// argument instead of a prompt so it cannot happen by accident.
	if len(args) != 1 || args[0] != "yes" {
		return errors.New("this deletes the account and all its files; run \"delete-account yes\" to confirm")
	}
	if err := sh.svc.DeleteAccount(ctx, sh.sess); err != nil {
		return err
	}
	sh.sess = nil
	fmt.Fprintln(sh.out, "Account deleted.")
	return nil
}

func (sh *shell) cmdSnippets(args []string) error {
	snips, err := sh.svc.ListSnippets(sh.sess, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(snips) == 0 {
		fmt.Fprintln(sh.out, "No snippets.")
		return nil
	}
	for _, s := range snips {
		fmt.Fprintf(sh.out, "%s  %-20s %-8s updated %s\n", s.ID, s.Title, s.Lang, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func (sh *shell) cmdSnippet(scanner *bufio.Scanner, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: snippet add|show|edit|rm|share ...")
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "add":
		if len(args) != 2 {
			return errors.New("usage: snippet add <title> <lang>")
		}
		code, err := sh.readBody(scanner)
		if err != nil {
			return err
		}
		snip, err := sh.svc.CreateSnippet(sh.sess, args[0], args[1], code)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Created snippet %s.\n", snip.ID)
		return nil
	case "show":
		if len(args) != 1 {
			return errors.New("usage: snippet show <id>")
		}
		id, err := ksid.Parse(args[0])
		if err != nil {
			return err
		}
		snip, err := sh.svc.GetSnippet(sh.sess, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%s (%s)\n%s\n", snip.Title, snip.Lang, snip.Code)
		return nil
	case "edit":
		if len(args) != 3 {
			return errors.New("usage: snippet edit <id> <title> <lang>")
		}
		id, err := ksid.Parse(args[0])
		if err != nil {
			return err
		}
		code, err := sh.readBody(scanner)
		if err != nil {
			return err
		}
		if _, err := sh.svc.UpdateSnippet(sh.sess, id, args[1], args[2], code); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "Updated.")
		return nil
	case "rm":
		if len(args) != 1 {
			return errors.New("usage: snippet rm <id>")
		}
		id, err := ksid.Parse(args[0])
		if err != nil {
			return err
		}
		if err := sh.svc.DeleteSnippet(sh.sess, id); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "Deleted.")
		return nil
	case "share":
		if len(args) != 2 {
			return errors.New("usage: snippet share <user> <id>")
		}
		id, err := ksid.Parse(args[1])
		if err != nil {
			return err
		}
		if _, err := sh.svc.ShareSnippet(sh.sess, args[0], id); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Shared with %s.\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown snippet subcommand %q", sub)
	}
}

// readBody collects lines until a line holding a single period.
func (sh *shell) readBody(scanner *bufio.Scanner) (string, error) {
	fmt.Fprintln(sh.out, "Enter the body, end with a \".\" on its own line:")
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "." {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("input ended before the closing \".\"")
}

func (sh *shell) cmdFiles() error {
	files, err := sh.svc.ListFiles(sh.sess)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(sh.out, "No files.")
		return nil
	}
	for _, f := range files {
		fmt.Fprintf(sh.out, "%s  %-30s %-24s %d bytes\n", f.ID, f.Name, f.Type, f.Size)
	}
	return nil
}

func (sh *shell) cmdFile(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: file add|save|rm|share ...")
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "add":
		if len(args) != 1 {
			return errors.New("usage: file add <path>")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		mimeType := mime.TypeByExtension(filepath.Ext(args[0]))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		meta, err := sh.svc.AddFile(ctx, sh.sess, filepath.Base(args[0]), mimeType, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Stored %s as %s (%d bytes).\n", meta.Name, meta.ID, meta.Size)
		return nil
	case "save":
		if len(args) != 2 {
			return errors.New("usage: file save <id> <path>")
		}
		id, err := ksid.Parse(args[0])
		if err != nil {
			return err
		}
		meta, data, err := sh.svc.FileContent(ctx, sh.sess, id)
		if err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("the payload of %s is missing", meta.Name)
		}
		if err := os.WriteFile(args[1], data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Wrote %s to %s.\n", meta.Name, args[1])
		return nil
	case "rm":
		if len(args) != 1 {
			return errors.New("usage: file rm <id>")
		}
		id, err := ksid.Parse(args[0])
		if err != nil {
			return err
		}
		if err := sh.svc.DeleteFile(ctx, sh.sess, id); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "Deleted.")
		return nil
	case "share":
		if len(args) != 2 {
			return errors.New("usage: file share <user> <id>")
		}
		id, err := ksid.Parse(args[1])
		if err != nil {
			return err
		}
		if _, err := sh.svc.ShareFile(sh.sess, args[0], id); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Shared with %s.\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown file subcommand %q", sub)
	}
}

func (sh *shell) cmdContacts() error {
	contacts, err := sh.svc.ListContacts(sh.sess)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		fmt.Fprintln(sh.out, "No contacts.")
		return nil
	}
	for _, c := range contacts {
		fmt.Fprintf(sh.out, "%-20s %s\n", c.Username, c.DisplayName)
	}
	return nil
}

func (sh *shell) cmdContact(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: contact add|rm <user>")
	}
	switch args[0] {
	case "add":
		if err := sh.svc.AddContact(sh.sess, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "Added.")
		return nil
	case "rm":
		if err := sh.svc.RemoveContact(sh.sess, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "Removed.")
		return nil
	default:
		return fmt.Errorf("unknown contact subcommand %q", args[0])
	}
}

func (sh *shell) cmdChats() error {
	peers, err := sh.svc.Conversations(sh.sess)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		fmt.Fprintln(sh.out, "No conversations.")
		return nil
	}
	for _, p := range peers {
		fmt.Fprintln(sh.out, p)
	}
	return nil
}

func (sh *shell) cmdChat(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: chat <user>")
	}
	msgs, err := sh.svc.Conversation(sh.sess, args[0])
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(sh.out, "No messages.")
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintf(sh.out, "%s %s: %s", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.From, m.Text)
		for _, a := range m.Attachments {
			fmt.Fprintf(sh.out, " %s", sh.renderAttachment(m.From, a))
		}
		fmt.Fprintln(sh.out)
	}
	return nil
}

// renderAttachment resolves a message attachment for display. Dangling
// references render as missing instead of erroring out: the owner may
// have deleted the entity after sharing it.
func (sh *shell) renderAttachment(owner string, a models.Attachment) string {
	v, ok := sh.svc.ResolveAttachment(owner, a)
	if !ok {
		return fmt.Sprintf("[%s %s: missing]", a.Kind, a.ID)
	}
	switch t := v.(type) {
	case models.Snippet:
		return fmt.Sprintf("[snippet %s: %s (%s)]", t.ID, t.Title, t.Lang)
	case models.FileMeta:
		return fmt.Sprintf("[file %s: %s, %d bytes]", t.ID, t.Name, t.Size)
	default:
		return fmt.Sprintf("[%s %s]", a.Kind, a.ID)
	}
}

func (sh *shell) cmdSend(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: send <user> <text>")
	}
	if _, err := sh.svc.SendMessage(sh.sess, args[0], strings.Join(args[1:], " "), nil); err != nil {
		return err
	}
	return nil
}

func (sh *shell) cmdExport(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: export <path> [all]")
	}
	var archive *service.Archive
	var err error
	if len(args) == 2 && args[1] == "all" {
		archive, err = sh.svc.ExportAll(ctx, sh.sess)
	} else {
		archive, err = sh.svc.ExportUser(ctx, sh.sess)
	}
	if err != nil {
		return err
	}
	if err := writeArchive(args[0], archive); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Exported %d user(s) and %d blob(s) to %s.\n", len(archive.Users), len(archive.Blobs), args[0])
	return nil
}

func (sh *shell) cmdImport(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: import <path>")
	}
	archive, err := readArchive(args[0])
	if err != nil {
		return err
	}
	if err := sh.svc.Import(ctx, archive); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Imported %d user(s) and %d blob(s).\n", len(archive.Users), len(archive.Blobs))
	return nil
}

// runExport is the -export one-shot mode. It resumes the durable
// session; export stays an authenticated operation even from the
// command line.
func runExport(ctx context.Context, svc *service.Service, path string) error {
	sess, err := svc.Resume(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return errors.New("no resumable session; log in interactively first")
	}
	archive, err := svc.ExportAll(ctx, sess)
	if err != nil {
		return err
	}
	if err := writeArchive(path, archive); err != nil {
		return err
	}
	fmt.Printf("Exported %d user(s) and %d blob(s) to %s.\n", len(archive.Users), len(archive.Blobs), path)
	return nil
}

// runImport is the -import one-shot mode. No session is needed so an
// archive can be restored into an empty store.
func runImport(ctx context.Context, svc *service.Service, path string) error {
	archive, err := readArchive(path)
	if err != nil {
		return err
	}
	if err := svc.Import(ctx, archive); err != nil {
		return err
	}
	fmt.Printf("Imported %d user(s) and %d blob(s).\n", len(archive.Users), len(archive.Blobs))
	return nil
}

func writeArchive(path string, a *service.Archive) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readArchive(path string) (*service.Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a := &service.Archive{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("not a valid archive: %w", err)
	}
	return a, nil
}
