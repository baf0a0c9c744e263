package stores

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printdesign-server/config"
	"printdesign-server/core"
	"printdesign-server/stores/rediscache"
)

func TestGetStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"memory", config.Config{StorageType: "memory"}},
		{"filesystem", config.Config{StorageType: "filesystem", LocalStoragePath: filepath.Join(dir, "fs")}},
		{"sqlite", config.Config{StorageType: "sqlite", DataSourceName: filepath.Join(dir, "test.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := GetStore(context.Background(), &tt.cfg)
			require.NoError(t, err)

			ctx := context.Background()
			require.NoError(t, store.SaveTemplate(ctx, &core.Template{ID: "shirt", Views: []core.TemplateView{{ID: "front"}}}))
			got, err := store.GetTemplate(ctx, "shirt")
			require.NoError(t, err)
			assert.Equal(t, "front", got.Views[0].ID)
		})
	}
}

func TestGetStoreUnknownType(t *testing.T) {
	_, err := GetStore(context.Background(), &config.Config{StorageType: "tape"})
	assert.Error(t, err)
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprintf("%s", value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestCachedStoreRoutesTemplates(t *testing.T) {
	ctx := context.Background()
	base, err := GetStore(ctx, &config.Config{StorageType: "memory"})
	require.NoError(t, err)

	cache := rediscache.New(base, newFakeKV(), time.Minute)
	store := WithTemplateCache(base, cache)
	require.NoError(t, store.SaveTemplate(ctx, &core.Template{ID: "mug"}))

	got, err := store.GetTemplate(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, "mug", got.ID)

	require.NoError(t, store.Save(ctx, &core.Design{ID: "d1", UserID: "u"}))
	_, err = store.Get(ctx, "u", "d1")
	assert.NoError(t, err)
	assert.NoError(t, store.Close())
}
