// Command agent works the hand-off queue from a terminal: it claims the
// oldest ready item and walks it through the workflow one key at a time.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/erazemk/oddaja/internal/config"
	"github.com/erazemk/oddaja/internal/db"
	"github.com/erazemk/oddaja/internal/imaging"
	"github.com/erazemk/oddaja/internal/session"
	"github.com/erazemk/oddaja/internal/store"
	"github.com/erazemk/oddaja/internal/workflow"
)

func main() {
	cfg, err := config.Load("agent", os.Args[1:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger logs to stderr, or only to logPath when it is set, so the
// terminal stays readable.
func newLogger(logPath string) (*slog.Logger, func(), error) {
	w, cleanup := io.Writer(os.Stderr), func() {}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, cleanup = f, func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn})), cleanup, nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := newLogger(cfg.LogPath)
	if err != nil {
		return err
	}
	defer closeLog()

	sessionID, err := session.LoadOrCreate(cfg.SessionFile)
	if err != nil {
		return err
	}

	var database *sql.DB
	if cfg.StoreType == store.TypeSQLite {
		database, err = db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()
		if err := db.EnsureSchema(database); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}

	items, err := store.Open(ctx, cfg.StoreOptions(database))
	if err != nil {
		return fmt.Errorf("opening item store: %w", err)
	}
	defer items.Close()

	out := textOutput{w: os.Stdout}
	if cfg.MediaDir != "" {
		out.media = imaging.NewExporter(cfg.MediaDir, logger)
	}

	ctrl := workflow.NewController(workflow.Config{
		Store:     items,
		SessionID: sessionID,
		Output:    out,
		Logger:    logger,
	})
	fmt.Printf("session %s, %s store\n", sessionID, cfg.StoreType)
	term, err := newTerminal(ctrl, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	return term.run(ctx)
}
