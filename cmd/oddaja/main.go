// Command oddaja serves the hand-off queue and workflow over a JSON API.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/oddaja/internal/api"
	"github.com/erazemk/oddaja/internal/config"
	"github.com/erazemk/oddaja/internal/db"
	"github.com/erazemk/oddaja/internal/imaging"
	"github.com/erazemk/oddaja/internal/store"
	"github.com/erazemk/oddaja/internal/workflow"
)

func main() {
	cfg, err := config.Load("oddaja", os.Args[1:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	if err := bootstrapAdmin(ctx, database, cfg.AdminUser); err != nil {
		return err
	}

	jwtSecret, err := store.JWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	items, err := store.Open(ctx, cfg.StoreOptions(database))
	if err != nil {
		return fmt.Errorf("opening item store: %w", err)
	}
	defer items.Close()
	slog.Info("item store ready", "type", cfg.StoreType)

	var output workflow.Output
	if cfg.MediaDir != "" {
		output = imaging.Output{Exporter: imaging.NewExporter(cfg.MediaDir, slog.Default())}
		slog.Info("exporting media", "dir", cfg.MediaDir)
	}

	router := api.NewRouter(api.Deps{
		DB:        database,
		JWTSecret: jwtSecret,
		Store:     items,
		Sessions:  api.NewSessions(items, output, slog.Default()),
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go purgeTokens(ctx, database)

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// bootstrapAdmin creates the first admin account when there is none and
// prints its password once.
func bootstrapAdmin(ctx context.Context, database *sql.DB, username string) error {
	n, err := store.CountAdmins(ctx, database)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if _, err := store.CreateOperator(ctx, database, username, string(hash), "admin"); err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}

	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
	fmt.Println()
	return nil
}

// purgeTokens drops expired revocations every hour until ctx is done.
func purgeTokens(ctx context.Context, database *sql.DB) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.PurgeRevokedTokens(ctx, database, now)
			if err != nil {
				slog.Warn("purging revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged revoked tokens", "count", n)
			}
		}
	}
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
