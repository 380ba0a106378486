// Package main is the entry point for the ermchat CLI.
//
// ermchat is a local-first chat and snippet manager. All state lives
// under a single data directory: a JSON document store for user
// records, a content-addressed blob store for file payloads, and a
// signed session pointer file. Configuration is read from CLI flags
// and config.yml inside the data directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/ermchat/ermchat/internal/blobstore"
	"github.com/ermchat/ermchat/internal/config"
	"github.com/ermchat/ermchat/internal/docstore"
	"github.com/ermchat/ermchat/internal/service"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "ermchat: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides config.yml")
	schema := flag.Bool("schema", false, "Print the archive JSON Schema and exit")
	exportPath := flag.String("export", "", "Export the whole store to this file and exit (requires a resumable session)")
	importPath := flag.String("import", "", "Import an archive file and exit")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}
	if *schema {
		data, err := service.ArchiveSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case uint64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg, err := config.Load(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config.yml: %w", err)
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", level)
	}

	docs, err := docstore.Open(filepath.Join(*dataDir, "db"))
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	blobs, err := blobstore.Open(ctx, filepath.Join(*dataDir, "blobs"))
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	pointer := docstore.NewSessionPointer(*dataDir, cfg.SecretBytes(), time.Duration(cfg.SessionTTLHours)*time.Hour)
	svc := service.New(docs, blobs, pointer, cfg.LoginPerMin)

	// The stores share no transaction; sweep their divergence before
	// anything else runs.
	report, err := svc.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	if report.OrphanBlobsRemoved > 0 || report.DanglingFiles > 0 {
		fmt.Fprintf(os.Stderr, "reconciled: %d orphan blob(s) removed, %d file(s) missing their payload\n",
			report.OrphanBlobsRemoved, report.DanglingFiles)
	}

	if *importPath != "" {
		return runImport(ctx, svc, *importPath)
	}
	if *exportPath != "" {
		return runExport(ctx, svc, *exportPath)
	}

	// Pick up external rewrites of the store file while the shell runs.
	if err := docs.Watch(ctx); err != nil {
		return fmt.Errorf("failed to watch document store: %w", err)
	}
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	sess, err := svc.Resume(ctx)
	if err != nil {
		return err
	}
	sh := &shell{svc: svc, sess: sess, out: os.Stdout}
	return sh.run(ctx, os.Stdin)
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("ermchat %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

// watchExecutable watches the current executable for modifications and
// calls stop to trigger graceful shutdown when detected. This enables
// seamless restarts during development.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
