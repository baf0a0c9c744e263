package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

type (
	// TemplateView is one printable side of a product template (front, back, sleeve).
	// Pixel areas are declared in DesignArea space; the editor canvas may be a
	// different size, so consumers rescale before use.
	TemplateView struct {
		ID          string  `json:"id" yaml:"id" toml:"id"`
		Name        string  `json:"name" yaml:"name" toml:"name"`
		DesignArea  Size    `json:"design_area" yaml:"design_area" toml:"design_area"`
		PrintAreaPx Rect    `json:"print_area_px" yaml:"print_area_px" toml:"print_area_px"`
		PrintAreaMm Rect    `json:"print_area_mm" yaml:"print_area_mm" toml:"print_area_mm"`
		SafeAreaPx  *Rect   `json:"safe_area_px,omitempty" yaml:"safe_area_px,omitempty" toml:"safe_area_px,omitempty"`
		SafeAreaMm  *Rect   `json:"safe_area_mm,omitempty" yaml:"safe_area_mm,omitempty" toml:"safe_area_mm,omitempty"`
		DPI         float64 `json:"dpi,omitempty" yaml:"dpi,omitempty" toml:"dpi,omitempty"`
	}

	// Template is a product template with its ordered views.
	Template struct {
		ID        string         `json:"id" yaml:"id" toml:"id"`
		Name      string         `json:"name" yaml:"name" toml:"name"`
		Views     []TemplateView `json:"views" yaml:"views" toml:"views"`
		UpdatedAt time.Time      `json:"updatedAt" yaml:"-" toml:"-"`
	}

	// TemplateStore holds the server-declared template geometry.
	TemplateStore interface {
		// GetTemplate returns ErrNotFound when no template has the id.
		GetTemplate(ctx context.Context, id string) (*Template, error)
		ListTemplates(ctx context.Context) ([]*Template, error)
		// SaveTemplate creates or replaces a template.
		SaveTemplate(ctx context.Context, template *Template) error
	}
)

// View returns the view with the given id.
func (t *Template) View(id string) (*TemplateView, bool) {
	for i := range t.Views {
		if t.Views[i].ID == id {
			return &t.Views[i], true
		}
	}
	return nil, false
}

// EffectiveDPI is the declared DPI, or the ratio of print area pixels to
// millimetres when none is declared, or 300.
func (v *TemplateView) EffectiveDPI() float64 {
	if v.DPI > 0 {
		return v.DPI
	}
	if v.PrintAreaMm.Width > 0 && v.PrintAreaPx.Width > 0 {
		return v.PrintAreaPx.Width / v.PrintAreaMm.Width * MillimetresPerInch
	}
	return DefaultPrintDPI
}
