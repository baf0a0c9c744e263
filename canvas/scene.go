package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrEmptyScene = errors.New("scene has no views")

type (
	// View is the editor state of one template view.
	View struct {
		ID      string    `json:"id"`
		Width   float64   `json:"width"`
		Height  float64   `json:"height"`
		Objects []*Object `json:"objects"`
	}

	// Scene is the document the editor saves for a design.
	Scene struct {
		TemplateID string `json:"templateId"`
		Views      []View `json:"views"`
	}
)

// ParseScene decodes a saved scene and checks that every view has a unique
// id and a size.
func ParseScene(data []byte) (*Scene, error) {
	var s Scene
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if len(s.Views) == 0 {
		return nil, ErrEmptyScene
	}
	seen := make(map[string]bool, len(s.Views))
	for i, v := range s.Views {
		if v.ID == "" {
			return nil, fmt.Errorf("parse scene: view %d has no id", i)
		}
		if seen[v.ID] {
			return nil, fmt.Errorf("parse scene: duplicate view %q", v.ID)
		}
		seen[v.ID] = true
		if v.Width <= 0 || v.Height <= 0 {
			return nil, fmt.Errorf("parse scene: view %q has no size", v.ID)
		}
	}
	return &s, nil
}

func (s *Scene) View(id string) (*View, bool) {
	for i := range s.Views {
		if s.Views[i].ID == id {
			return &s.Views[i], true
		}
	}
	return nil, false
}

// ViewIDs lists the view ids in export order.
func (s *Scene) ViewIDs() []string {
	ids := make([]string, 0, len(s.Views))
	for _, v := range s.Views {
		ids = append(ids, v.ID)
	}
	return ids
}
