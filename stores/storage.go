package stores

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"printdesign-server/config"
	"printdesign-server/core"
	"printdesign-server/stores/aws"
	"printdesign-server/stores/filesystem"
	"printdesign-server/stores/memory"
	"printdesign-server/stores/rediscache"
	"printdesign-server/stores/sqlite"
)

// Store is a union interface that includes all store types.
type Store interface {
	core.DesignStore
	core.TemplateStore
	core.SnapshotStore
}

// GetStore opens the backend named by cfg.StorageType.
func GetStore(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		store Store
		err   error
	)
	storageField := logrus.Fields{
		"storageType": cfg.StorageType,
	}

	switch cfg.StorageType {
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		store, err = filesystem.NewStore(cfg.LocalStoragePath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store, err = sqlite.NewStore(cfg.DataSourceName)
	case "s3":
		storageField["bucketName"] = cfg.S3BucketName
		store, err = aws.NewStore(ctx, cfg.S3BucketName)
	case "memory", "":
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageType, err)
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}

// CachedStore serves template reads through a Redis cache and passes
// everything else to the wrapped store.
type CachedStore struct {
	Store
	Templates *rediscache.Templates
}

// WithTemplateCache wraps store so template lookups go through cache.
func WithTemplateCache(store Store, cache *rediscache.Templates) *CachedStore {
	return &CachedStore{Store: store, Templates: cache}
}

func (s *CachedStore) GetTemplate(ctx context.Context, id string) (*core.Template, error) {
	return s.Templates.GetTemplate(ctx, id)
}

func (s *CachedStore) ListTemplates(ctx context.Context) ([]*core.Template, error) {
	return s.Templates.ListTemplates(ctx)
}

func (s *CachedStore) SaveTemplate(ctx context.Context, template *core.Template) error {
	return s.Templates.SaveTemplate(ctx, template)
}

// Close closes the wrapped store when it holds resources.
func (s *CachedStore) Close() error {
	if c, ok := s.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
