package source

import (
	"context"
	"errors"
	"os"
	"path"

	"github.com/arkilian/eventagg/internal/cache"
	"github.com/arkilian/eventagg/internal/storage"
	"github.com/arkilian/eventagg/pkg/types"
)

// DefaultPrefix is the object prefix under which partition files live.
const DefaultPrefix = "events"

// ObjectStoreProvider serves partition files held in object storage. Files
// are downloaded into a local cache on first use and are treated as
// immutable; Publish drops the cached copy of a partition it replaces.
type ObjectStoreProvider struct {
	store  storage.ObjectStorage
	prefix string
	cache  *cache.PartitionCache
}

// NewObjectStoreProvider creates a provider over store, keeping downloads in c.
func NewObjectStoreProvider(store storage.ObjectStorage, c *cache.PartitionCache) *ObjectStoreProvider {
	return &ObjectStoreProvider{store: store, prefix: DefaultPrefix, cache: c}
}

// ObjectPath returns the object path of the partition for date.
func (p *ObjectStoreProvider) ObjectPath(date string) string {
	return path.Join(p.prefix, PartitionFileName(date))
}

// Publish uploads a written partition file.
func (p *ObjectStoreProvider) Publish(ctx context.Context, info *PartitionInfo) error {
	if err := p.store.Upload(ctx, info.Path, p.ObjectPath(info.Date)); err != nil {
		return err
	}
	// a replaced partition must not be served from an older cached copy
	p.cache.Remove(info.Date)
	return nil
}

// Dates lists the partition dates present in the store, ascending.
func (p *ObjectStoreProvider) Dates(ctx context.Context) ([]string, error) {
	objects, err := p.store.ListObjects(ctx, p.prefix)
	if err != nil {
		return nil, err
	}
	return partitionDates(objects), nil
}

// Scan implements Provider.
func (p *ObjectStoreProvider) Scan(ctx context.Context, req ScanRequest, fn func(*types.Event) error) error {
	keys, err := req.Range.Partitions()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := p.scanPartition(ctx, key.Date, req.EventNames, fn); err != nil {
			return err
		}
	}
	return nil
}

func (p *ObjectStoreProvider) scanPartition(ctx context.Context, date string, eventNames []string, fn func(*types.Event) error) error {
	local, err := p.fetch(ctx, date)
	if err != nil {
		return err
	}
	defer p.cache.Release(date)
	return scanFile(ctx, local, date, eventNames, fn)
}

// fetch returns the pinned local copy of the partition for date,
// downloading it on a cache miss.
func (p *ObjectStoreProvider) fetch(ctx context.Context, date string) (string, error) {
	if local, ok := p.cache.Acquire(date); ok {
		return local, nil
	}

	tmpPath, err := p.cache.TempFile(date)
	if err != nil {
		return "", partitionReadFailed(date, err)
	}
	if err := p.store.Download(ctx, p.ObjectPath(date), tmpPath); err != nil {
		os.Remove(tmpPath)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", partitionNotFound(date)
		}
		return "", partitionReadFailed(date, err)
	}
	local, err := p.cache.Admit(date, tmpPath)
	if err != nil {
		return "", partitionReadFailed(date, err)
	}
	return local, nil
}
