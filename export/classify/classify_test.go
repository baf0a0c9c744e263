package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"printdesign-server/canvas"
)

func obj(kind canvas.Kind, mutate func(o *canvas.Object)) *canvas.Object {
	o := canvas.NewObject(kind)
	if mutate != nil {
		mutate(o)
	}
	return o
}

func TestCategorize(t *testing.T) {
	zone := obj(canvas.KindRect, func(o *canvas.Object) { o.Marker = canvas.MarkerPrintZone })
	overlays := NewOverlays(zone)

	tests := []struct {
		name string
		o    *canvas.Object
		want Category
	}{
		{"nil", nil, Excluded},
		{"registered overlay", zone, SystemOverlay},
		{"exclude flag", obj(canvas.KindRect, func(o *canvas.Object) { o.ExcludeFromExport = true }), SystemOverlay},
		{"exclude beats background", obj(canvas.KindImage, func(o *canvas.Object) { o.ExcludeFromExport = true; o.IsBackground = true }), SystemOverlay},
		{"background flag", obj(canvas.KindRect, func(o *canvas.Object) { o.IsBackground = true }), Background},
		{"locked image", obj(canvas.KindImage, func(o *canvas.Object) { o.Selectable = false }), Background},
		{"user text", obj(canvas.KindText, nil), Design},
		{"user image", obj(canvas.KindImage, nil), Design},
		{"hidden text", obj(canvas.KindText, func(o *canvas.Object) { o.Visible = false }), Excluded},
		{"locked shape", obj(canvas.KindShape, func(o *canvas.Object) { o.Selectable = false }), Excluded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.o, overlays))
		})
	}
}

func TestClassifyPartitions(t *testing.T) {
	bg := obj(canvas.KindImage, func(o *canvas.Object) { o.IsBackground = true })
	zone := obj(canvas.KindRect, func(o *canvas.Object) { o.ExcludeFromExport = true })
	a := obj(canvas.KindText, func(o *canvas.Object) { o.ID = "a" })
	hidden := obj(canvas.KindText, func(o *canvas.Object) { o.Visible = false })
	b := obj(canvas.KindImage, func(o *canvas.Object) { o.ID = "b" })

	input := []*canvas.Object{bg, a, nil, zone, hidden, b}
	r := Classify(input, nil)

	assert.Equal(t, []*canvas.Object{a, b}, r.Design, "z-order preserved")
	assert.Equal(t, []*canvas.Object{bg}, r.Background)
	assert.Equal(t, []*canvas.Object{zone}, r.SystemOverlay)

	seen := map[*canvas.Object]int{}
	for _, set := range [][]*canvas.Object{r.Design, r.Background, r.SystemOverlay} {
		for _, o := range set {
			seen[o]++
		}
	}
	for o, n := range seen {
		assert.Equal(t, 1, n, "object %p appears in more than one set", o)
	}
	assert.NotContains(t, seen, hidden)
}

func TestClassifyEmpty(t *testing.T) {
	r := Classify(nil, NewOverlays())
	assert.Empty(t, r.Design)
	assert.Empty(t, r.Background)
	assert.Empty(t, r.SystemOverlay)
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "design", Design.String())
	assert.Equal(t, "system-overlay", SystemOverlay.String())
	assert.Equal(t, "excluded", Excluded.String())
	assert.Equal(t, "background", Background.String())
}
