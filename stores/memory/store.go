package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"printdesign-server/core"
)

// memStore implements DesignStore, TemplateStore and SnapshotStore in memory.
type memStore struct {
	mu sync.RWMutex
	// designs is keyed by userID, then design id.
	designs   map[string]map[string]*core.Design
	templates map[string]*core.Template
	// snapshots is keyed by design id, then view id.
	snapshots map[string]map[string]*core.DesignSnapshotRecord
	blobs     map[string][]byte
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		designs:   make(map[string]map[string]*core.Design),
		templates: make(map[string]*core.Template),
		snapshots: make(map[string]map[string]*core.DesignSnapshotRecord),
		blobs:     make(map[string][]byte),
	}
}

// List returns metadata for all designs owned by a user.
func (s *memStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userDesigns := s.designs[userID]
	designs := make([]*core.Design, 0, len(userDesigns))
	for _, d := range userDesigns {
		// The list view leaves out the scene data.
		designs = append(designs, &core.Design{
			ID:         d.ID,
			UserID:     d.UserID,
			Name:       d.Name,
			TemplateID: d.TemplateID,
			Thumbnail:  d.Thumbnail,
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	sort.Slice(designs, func(i, j int) bool { return designs[i].ID < designs[j].ID })

	logrus.WithField("user_id", userID).Infof("Listed %d designs", len(designs))
	return designs, nil
}

func (s *memStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id})
	d, ok := s.designs[userID][id]
	if !ok {
		log.Warn("Design not found for user")
		return nil, fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) Save(ctx context.Context, design *core.Design) error {
	if design.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	if err := core.ValidateKey(design.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userDesigns, ok := s.designs[design.UserID]
	if !ok {
		userDesigns = make(map[string]*core.Design)
		s.designs[design.UserID] = userDesigns
	}

	now := time.Now()
	design.CreatedAt = now
	if existing, ok := userDesigns[design.ID]; ok {
		design.CreatedAt = existing.CreatedAt
	}
	design.UpdatedAt = now

	cp := *design
	userDesigns[design.ID] = &cp
	logrus.WithFields(logrus.Fields{"user_id": design.UserID, "design_id": design.ID}).Info("Design saved successfully")
	return nil
}

func (s *memStore) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id})
	if _, ok := s.designs[userID][id]; !ok {
		log.Warn("Design not found for deletion")
		return fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}
	delete(s.designs[userID], id)
	for _, rec := range s.snapshots[id] {
		delete(s.blobs, rec.PNGBlobRef)
	}
	delete(s.snapshots, id)

	log.Info("Design deleted successfully")
	return nil
}

func (s *memStore) GetTemplate(ctx context.Context, id string) (*core.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, core.ErrNotFound)
	}
	return copyTemplate(t), nil
}

func (s *memStore) ListTemplates(ctx context.Context) ([]*core.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]*core.Template, 0, len(s.templates))
	for _, t := range s.templates {
		templates = append(templates, copyTemplate(t))
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

func (s *memStore) SaveTemplate(ctx context.Context, template *core.Template) error {
	if err := core.ValidateKey(template.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	template.UpdatedAt = time.Now()
	s.templates[template.ID] = copyTemplate(template)
	logrus.WithFields(logrus.Fields{"template_id": template.ID, "views": len(template.Views)}).Info("Template saved")
	return nil
}

func copyTemplate(t *core.Template) *core.Template {
	cp := *t
	cp.Views = append([]core.TemplateView(nil), t.Views...)
	return &cp
}

func (s *memStore) PutSnapshot(ctx context.Context, record *core.DesignSnapshotRecord, png []byte) error {
	if err := core.ValidateKey(record.DesignID); err != nil {
		return err
	}
	if err := core.ValidateKey(record.ViewID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	views, ok := s.snapshots[record.DesignID]
	if !ok {
		views = make(map[string]*core.DesignSnapshotRecord)
		s.snapshots[record.DesignID] = views
	}
	if old, ok := views[record.ViewID]; ok {
		delete(s.blobs, old.PNGBlobRef)
	}

	record.PNGBlobRef = ulid.Make().String() + ".png"
	record.CreatedAt = time.Now()
	record.ByteSize = int64(len(png))
	s.blobs[record.PNGBlobRef] = append([]byte(nil), png...)
	cp := *record
	views[record.ViewID] = &cp

	logrus.WithFields(logrus.Fields{
		"design_id": record.DesignID,
		"view_id":   record.ViewID,
		"blob_ref":  record.PNGBlobRef,
		"size":      len(png),
	}).Info("Snapshot stored")
	return nil
}

func (s *memStore) GetSnapshot(ctx context.Context, designID, viewID string) (*core.DesignSnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.snapshots[designID][viewID]
	if !ok {
		return nil, fmt.Errorf("snapshot %s/%s: %w", designID, viewID, core.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) ListSnapshots(ctx context.Context, designID string) ([]*core.DesignSnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*core.DesignSnapshotRecord, 0, len(s.snapshots[designID]))
	for _, rec := range s.snapshots[designID] {
		cp := *rec
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ViewID < records[j].ViewID })
	return records, nil
}

func (s *memStore) ReadSnapshot(ctx context.Context, record *core.DesignSnapshotRecord) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[record.PNGBlobRef]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", record.PNGBlobRef, core.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}
