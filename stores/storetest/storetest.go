// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printdesign-server/core"
)

// Store is the union of store interfaces a backend has to satisfy.
type Store interface {
	core.DesignStore
	core.TemplateStore
	core.SnapshotStore
}

// Run exercises designs, templates and snapshots against a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Designs", func(t *testing.T) { testDesigns(t, newStore(t)) })
	t.Run("Templates", func(t *testing.T) { testTemplates(t, newStore(t)) })
	t.Run("Snapshots", func(t *testing.T) { testSnapshots(t, newStore(t)) })
}

func testDesigns(t *testing.T, s Store) {
	ctx := context.Background()

	list, err := s.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)

	d := &core.Design{ID: "tee-1", UserID: "alice", Name: "Tee", TemplateID: "shirt", Data: []byte(`{"views":[]}`)}
	require.NoError(t, s.Save(ctx, d))

	got, err := s.Get(ctx, "alice", "tee-1")
	require.NoError(t, err)
	assert.Equal(t, "Tee", got.Name)
	assert.Equal(t, "shirt", got.TemplateID)
	assert.JSONEq(t, `{"views":[]}`, string(got.Data))
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, "bob", "tee-1")
	assert.ErrorIs(t, err, core.ErrNotFound, "designs are scoped to their owner")

	d.Name = "Tee v2"
	require.NoError(t, s.Save(ctx, d))
	list, err = s.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Tee v2", list[0].Name)
	assert.Empty(t, list[0].Data, "list view leaves out scene data")

	assert.Error(t, s.Save(ctx, &core.Design{ID: "../escape", UserID: "alice"}))

	require.NoError(t, s.Delete(ctx, "alice", "tee-1"))
	_, err = s.Get(ctx, "alice", "tee-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testTemplates(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetTemplate(ctx, "shirt")
	assert.ErrorIs(t, err, core.ErrNotFound)

	safe := core.Rect{X: 60, Y: 35, Width: 680, Height: 530}
	tpl := &core.Template{ID: "shirt", Name: "T-Shirt", Views: []core.TemplateView{
		{
			ID:          "front",
			DesignArea:  core.Size{Width: 800, Height: 600},
			PrintAreaPx: core.Rect{X: 50, Y: 25, Width: 700, Height: 550},
			PrintAreaMm: core.Rect{Width: 300, Height: 400},
			SafeAreaPx:  &safe,
			DPI:         300,
		},
		{ID: "back", PrintAreaPx: core.Rect{Width: 10, Height: 10}},
	}}
	require.NoError(t, s.SaveTemplate(ctx, tpl))
	require.NoError(t, s.SaveTemplate(ctx, &core.Template{ID: "mug", Name: "Mug"}))

	got, err := s.GetTemplate(ctx, "shirt")
	require.NoError(t, err)
	require.Len(t, got.Views, 2)
	assert.Equal(t, tpl.Views[0].PrintAreaPx, got.Views[0].PrintAreaPx)
	require.NotNil(t, got.Views[0].SafeAreaPx)
	assert.Equal(t, safe, *got.Views[0].SafeAreaPx)
	v, ok := got.View("back")
	require.True(t, ok)
	assert.Equal(t, 10.0, v.PrintAreaPx.Width)

	all, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "mug", all[0].ID)
	assert.Equal(t, "shirt", all[1].ID)
}

func testSnapshots(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetSnapshot(ctx, "d1", "front")
	assert.ErrorIs(t, err, core.ErrNotFound)

	first := &core.DesignSnapshotRecord{
		DesignID:    "d1",
		ViewID:      "front",
		TemplateID:  "shirt",
		PrintAreaPx: core.Rect{X: 50, Y: 25, Width: 700, Height: 550},
		PrintAreaMm: core.Rect{Width: 185.2, Height: 145.5},
		PixelWidth:  2188,
		PixelHeight: 1719,
		DPI:         300,
	}
	require.NoError(t, s.PutSnapshot(ctx, first, []byte("png-one")))
	assert.NotEmpty(t, first.PNGBlobRef)
	assert.False(t, first.CreatedAt.IsZero())

	second := *first
	second.PNGBlobRef = ""
	second.PixelWidth = 700
	require.NoError(t, s.PutSnapshot(ctx, &second, []byte("png-two")))
	assert.NotEqual(t, first.PNGBlobRef, second.PNGBlobRef)

	back := &core.DesignSnapshotRecord{DesignID: "d1", ViewID: "back", TemplateID: "shirt"}
	require.NoError(t, s.PutSnapshot(ctx, back, []byte("png-back")))

	got, err := s.GetSnapshot(ctx, "d1", "front")
	require.NoError(t, err)
	assert.Equal(t, 700, got.PixelWidth, "newer upload supersedes the old one")
	assert.Equal(t, core.Rect{Width: 185.2, Height: 145.5}, got.PrintAreaMm)
	assert.Equal(t, int64(len("png-two")), got.ByteSize)

	data, err := s.ReadSnapshot(ctx, got)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("png-two"), data))

	list, err := s.ListSnapshots(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, list, 2, "one record per view")
	assert.Equal(t, "back", list[0].ViewID)
	assert.Equal(t, "front", list[1].ViewID)

	empty, err := s.ListSnapshots(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.Error(t, s.PutSnapshot(ctx, &core.DesignSnapshotRecord{DesignID: "d1", ViewID: "../x"}, nil))
}
