package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printdesign-server/core"
)

func pngDataURL(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return EncodeDataURL("image/png", buf.Bytes())
}

func readyCanvas(t *testing.T, w, h int, objects ...*Object) *Canvas {
	t.Helper()
	c := New(w, h, objects)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Ready(ctx))
	return c
}

func TestObjectUnmarshalDefaults(t *testing.T) {
	var o Object
	require.NoError(t, json.Unmarshal([]byte(`{"type":"text","left":10,"top":20,"text":"hi"}`), &o))

	assert.Equal(t, KindText, o.Kind)
	assert.True(t, o.Visible)
	assert.True(t, o.Selectable)
	assert.Equal(t, 1.0, o.ScaleX)
	assert.Equal(t, 1.0, o.Opacity)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"rect","visible":false,"selectable":false,"objects":[{"type":"rect"}]}`), &o))
	assert.False(t, o.Visible)
	assert.False(t, o.Selectable)
	require.Len(t, o.Objects, 1)
	assert.True(t, o.Objects[0].Visible, "children get defaults too")
}

func TestParseScene(t *testing.T) {
	s, err := ParseScene([]byte(`{"templateId":"tshirt","views":[{"id":"front","width":800,"height":600,"objects":[{"type":"rect"}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "tshirt", s.TemplateID)
	assert.Equal(t, []string{"front"}, s.ViewIDs())

	v, ok := s.View("front")
	require.True(t, ok)
	assert.Len(t, v.Objects, 1)

	_, ok = s.View("back")
	assert.False(t, ok)

	_, err = ParseScene([]byte(`{"views":[]}`))
	assert.ErrorIs(t, err, ErrEmptyScene)

	_, err = ParseScene([]byte(`{"views":[{"id":"front"}]}`))
	assert.Error(t, err)

	_, err = ParseScene([]byte(`{"views":[{"id":"front","width":1,"height":1},{"id":"front","width":2,"height":2}]}`))
	assert.ErrorContains(t, err, "duplicate view")

	_, err = ParseScene([]byte(`not json`))
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	child := NewObject(KindShape)
	child.Points = []core.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 5}}
	group := NewObject(KindGroup)
	group.Objects = []*Object{child}

	c := New(100, 100, nil)
	clone, err := c.Clone(group)
	require.NoError(t, err)

	clone.Left = 42
	clone.Objects[0].Points[0].X = 99
	assert.Equal(t, 0.0, group.Left)
	assert.Equal(t, 0.0, child.Points[0].X)
	assert.NotSame(t, child, clone.Objects[0])
}

func TestCloneRejectsCyclesAndDeepNesting(t *testing.T) {
	c := New(100, 100, nil)

	loop := NewObject(KindGroup)
	loop.Objects = []*Object{loop}
	_, err := c.Clone(loop)
	assert.ErrorIs(t, err, ErrCloneCycle)
	assert.True(t, loop.HasCycle())

	root := NewObject(KindGroup)
	cur := root
	for i := 0; i < maxCloneDepth+2; i++ {
		next := NewObject(KindGroup)
		cur.Objects = []*Object{next}
		cur = next
	}
	_, err = c.Clone(root)
	assert.ErrorIs(t, err, ErrCloneDepth)
	assert.False(t, root.HasCycle())
}

func TestRasterizeScalesOutput(t *testing.T) {
	rect := NewObject(KindRect)
	rect.Left, rect.Top, rect.Width, rect.Height = 10, 10, 20, 20
	rect.Fill = "#ff0000"

	c := readyCanvas(t, 100, 50, rect)
	img, err := c.Rasterize(2, c.Objects())
	require.NoError(t, err)

	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	r, _, _, a := img.At(40, 40).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Greater(t, a>>8, uint32(200))

	_, _, _, a = img.At(150, 80).RGBA()
	assert.Zero(t, a, "outside the rect stays transparent")
}

func TestRasterizeZeroScale(t *testing.T) {
	c := readyCanvas(t, 100, 50)
	img, err := c.Rasterize(0, nil)
	require.NoError(t, err)
	assert.True(t, img.Bounds().Empty())
}

func TestRasterizeDoesNotTouchLiveObjects(t *testing.T) {
	text := NewObject(KindText)
	text.Left, text.Top, text.Text, text.FontSize = 5, 5, "print me", 12

	c := readyCanvas(t, 100, 50, text)
	_, err := c.Rasterize(3.125, c.Objects())
	require.NoError(t, err)
	assert.Equal(t, 5.0, text.Left)
	assert.Len(t, c.Objects(), 1)
}

func TestReadyDecodesImages(t *testing.T) {
	img := NewObject(KindImage)
	img.Src = pngDataURL(t, 4, 4, color.RGBA{B: 255, A: 255})
	broken := NewObject(KindImage)
	broken.Src = "data:image/png;base64,AAAA"

	readyCanvas(t, 10, 10, img, broken)
	bm, err := img.Bitmap()
	require.NoError(t, err)
	assert.Equal(t, 4, bm.Bounds().Dx())

	_, err = broken.Bitmap()
	assert.Error(t, err)
}

func TestReadyHonoursContext(t *testing.T) {
	c := &Canvas{ready: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Ready(ctx), context.Canceled)
}

func TestSurfaceLifecycle(t *testing.T) {
	rect := NewObject(KindRect)
	rect.Width, rect.Height, rect.Fill = 10, 10, "#00ff00"

	c := readyCanvas(t, 100, 100)
	s, err := c.NewSurface(20, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, c.LiveSurfaces())

	s.Add(rect)
	img, err := s.Rasterize()
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	require.NoError(t, s.Dispose())
	require.NoError(t, s.Dispose())
	assert.Equal(t, 0, c.LiveSurfaces())

	_, err = s.Rasterize()
	assert.ErrorIs(t, err, ErrSurfaceDisposed)

	_, err = c.NewSurface(0, 10)
	assert.Error(t, err)
}

func TestMarked(t *testing.T) {
	zone := NewObject(KindRect)
	zone.Marker = MarkerPrintZone
	later := NewObject(KindRect)
	later.Marker = MarkerPrintZone
	safe := NewObject(KindRect)
	safe.Marker = MarkerSafeZone

	c := New(10, 10, []*Object{zone, NewObject(KindRect), nil, safe, later})
	assert.Equal(t, []*Object{zone, later}, c.Marked(MarkerPrintZone))
	assert.Equal(t, []*Object{safe}, c.Marked(MarkerSafeZone))
	assert.Empty(t, New(10, 10, nil).Marked(MarkerPrintZone))
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"#ff0000", true},
		{"#F00", true},
		{"rgb(0, 128, 255)", true},
		{"rgba(0,0,0,0.5)", true},
		{"rgba(0,0,0,0)", false},
		{"black", true},
		{"transparent", false},
		{"none", false},
		{"", false},
		{"#zzzzzz", false},
		{"hsl(0,0,0)", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, ok := ParseColor(tt.in)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestDataURL(t *testing.T) {
	u := EncodeDataURL("image/png", []byte{1, 2, 3})
	assert.Equal(t, "data:image/png;base64,AQID", u)

	b, err := DataURLBytes(u)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	_, err = DataURLBytes("https://example.com/a.png")
	assert.ErrorIs(t, err, ErrNotDataURL)
}
