package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ashureev/sciencebuddy/internal/blob"
	"github.com/ashureev/sciencebuddy/internal/config"
	"github.com/ashureev/sciencebuddy/internal/logsink"
	"github.com/ashureev/sciencebuddy/internal/store"
)

// storageFlags override the storage settings read from the environment.
type storageFlags struct {
	backend string
	blob    string
	dataDir string
	dbPath  string
}

func newRootCmd() *cobra.Command {
	flags := &storageFlags{}
	root := &cobra.Command{
		Use:           "buddyctl",
		Short:         "Inspect Science Buddy learning logs and progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.backend, "storage", "", "progress store: document or sqlite (overrides STORAGE_BACKEND)")
	root.PersistentFlags().StringVar(&flags.blob, "blob", "", "blob backend: file or gcs (overrides BLOB_BACKEND)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (overrides DATA_DIR)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")

	root.AddCommand(newLogsCmd(flags))
	root.AddCommand(newProgressCmd(flags))
	return root
}

// storageConfig merges the flags over the environment configuration.
func (f *storageFlags) storageConfig() (config.StorageConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.StorageConfig{}, err
	}
	sc := cfg.Storage
	if f.backend != "" {
		sc.Backend = f.backend
	}
	if f.blob != "" {
		sc.Blob = f.blob
	}
	if f.dataDir != "" {
		sc.DataDir = f.dataDir
	}
	if f.dbPath != "" {
		sc.DBPath = f.dbPath
	}
	return sc, nil
}

// quietLogger keeps store warnings out of command output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *storageFlags) openLogs(ctx context.Context) (*logsink.Sink, func(), error) {
	sc, err := f.storageConfig()
	if err != nil {
		return nil, nil, err
	}
	blobs, err := blob.Open(ctx, sc.Blob, sc.DataDir, sc.GCSBucket, sc.GCSPrefix)
	if err != nil {
		return nil, nil, err
	}
	return logsink.New(blobs, quietLogger()), func() { _ = blobs.Close() }, nil
}

func (f *storageFlags) openProgress(ctx context.Context) (store.Store, func(), error) {
	sc, err := f.storageConfig()
	if err != nil {
		return nil, nil, err
	}
	blobs, err := blob.Open(ctx, sc.Blob, sc.DataDir, sc.GCSBucket, sc.GCSPrefix)
	if err != nil {
		return nil, nil, err
	}
	progress, err := store.Open(sc.Backend, blobs, sc.DBPath, quietLogger())
	if err != nil {
		_ = blobs.Close()
		return nil, nil, err
	}
	return progress, func() {
		_ = progress.Close()
		_ = blobs.Close()
	}, nil
}
