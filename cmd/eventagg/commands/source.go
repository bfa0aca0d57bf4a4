package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/arkilian/eventagg/internal/cache"
	"github.com/arkilian/eventagg/internal/config"
	"github.com/arkilian/eventagg/internal/logging"
	"github.com/arkilian/eventagg/internal/source"
	"github.com/arkilian/eventagg/internal/storage"
	"github.com/arkilian/eventagg/pkg/types"
)

// newObjectStorage opens the object store backing a local or s3 source.
func newObjectStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Source.Type {
	case config.SourceLocal:
		store, err := storage.NewLocalStorage(cfg.Source.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.SourceS3:
		store, err := storage.NewS3Storage(ctx, cfg.Source.S3.Bucket, storage.S3Config{
			Region:       cfg.Source.S3.Region,
			Endpoint:     cfg.Source.S3.Endpoint,
			UsePathStyle: cfg.Source.S3.UsePathStyle,
			MaxRetries:   cfg.Engine.MaxRetries,
			RetryBackoff: cfg.Engine.RetryBackoff,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("source type %s is not backed by object storage", cfg.Source.Type)
}

// newProvider builds the record provider for cfg. A memory source is loaded
// from the NDJSON file at input.
func newProvider(ctx context.Context, cfg *config.Config, input string) (source.Provider, error) {
	logger := logging.FromContext(ctx)

	switch cfg.Source.Type {
	case config.SourceMemory:
		if input == "" {
			return nil, fmt.Errorf("--input is required for the memory source")
		}
		events, err := readEvents(input)
		if err != nil {
			return nil, err
		}
		logger.Debugw("Loaded events into memory", "input", input, "events", len(events))
		return source.NewMemoryProvider(events...), nil

	case config.SourceSQLite:
		logger.Debugw("Reading partition files", "path", cfg.Source.Path)
		return source.NewSQLiteProvider(cfg.Source.Path), nil

	case config.SourceLocal, config.SourceS3:
		store, err := newObjectStorage(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open object storage: %w", err)
		}
		provider, err := newObjectStoreProvider(ctx, cfg, store)
		if err != nil {
			return nil, err
		}
		return provider, nil
	}
	return nil, fmt.Errorf("unsupported source type: %s", cfg.Source.Type)
}

func newObjectStoreProvider(ctx context.Context, cfg *config.Config, store storage.ObjectStorage) (*source.ObjectStoreProvider, error) {
	c, err := cache.New(cfg.Source.CacheDir, cfg.Source.CacheMaxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to open partition cache: %w", err)
	}
	logging.FromContext(ctx).Debugw("Reading partitions from object storage",
		"type", cfg.Source.Type,
		"cache_dir", cfg.Source.CacheDir,
		"cache_max_bytes", cfg.Source.CacheMaxBytes)
	return source.NewObjectStoreProvider(store, c), nil
}

// readEvents reads NDJSON events from path, or from stdin when path is "-".
func readEvents(path string) ([]types.Event, error) {
	if path == "-" {
		return source.ReadNDJSON(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	return source.ReadNDJSON(f)
}
