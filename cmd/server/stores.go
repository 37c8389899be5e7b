package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"hexanote-sync-server/internal/config"
	"hexanote-sync-server/internal/repository"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"gopkg.in/natefinch/lumberjack.v2"
)

type stores struct {
	notes     repository.NoteRepository
	devices   repository.DeviceRepository
	conflicts repository.ConflictRepository
	close     func() error
}

// openStores connects the configured backend. The memory driver keeps
// nothing across restarts.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		log.Println("Using in-memory storage; data will not survive a restart")
		return &stores{
			notes:     repository.NewMemoryNoteRepository(),
			devices:   repository.NewMemoryDeviceRepository(),
			conflicts: repository.NewMemoryConflictRepository(),
			close:     func() error { return nil },
		}, nil
	}

	client, err := kivik.New("couch", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}
	if err := repository.EnsureDatabase(ctx, client, cfg.Database.Name); err != nil {
		client.Close()
		return nil, err
	}
	log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)

	return &stores{
		notes:     repository.NewNoteRepository(client, cfg.Database.Name),
		devices:   repository.NewDeviceRepository(client, cfg.Database.Name),
		conflicts: repository.NewConflictRepository(client, cfg.Database.Name),
		close:     client.Close,
	}, nil
}

// setupLogging tees the standard logger into a rotated file when LOG_FILE
// is set.
func setupLogging(cfg config.LoggingConfig) func() {
	flags := log.LstdFlags
	if cfg.Level == "debug" {
		flags |= log.Lmicroseconds | log.Lshortfile
	}
	log.SetFlags(flags)

	if cfg.File == "" {
		return func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return func() { rotator.Close() }
}
