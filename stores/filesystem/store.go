package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"printdesign-server/core"
)

// Layout under basePath:
//
//	designs/{userID}/{designID}.json
//	templates/{templateID}.json
//	snapshots/{designID}/{viewID}.json
//	blobs/{blobRef}
type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) (*fsStore, error) {
	for _, dir := range []string{"designs", "templates", "snapshots", "blobs"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return &fsStore{basePath: basePath}, nil
}

// path joins key parts below dir after checking each one is a plain name.
func (s *fsStore) path(dir string, parts ...string) (string, error) {
	for _, p := range parts {
		if err := core.ValidateKey(p); err != nil {
			return "", err
		}
	}
	return filepath.Join(append([]string{s.basePath, dir}, parts...)...), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes through a temp file so readers never see half a record.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// designFile keeps the owner, which core.Design leaves out of its JSON.
type designFile struct {
	core.Design
	Owner string `json:"owner"`
}

// DesignStore implementation for user-owned designs
func (s *fsStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	userPath, err := s.path("designs", userID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithField("user_id", userID).WithField("path", userPath)

	files, err := os.ReadDir(userPath)
	if errors.Is(err, fs.ErrNotExist) {
		return []*core.Design{}, nil
	}
	if err != nil {
		log.WithError(err).Error("Failed to read user directory")
		return nil, err
	}

	designs := make([]*core.Design, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		var f designFile
		if err := readJSON(filepath.Join(userPath, file.Name()), &f); err != nil {
			log.WithError(err).Warnf("Failed to read design file %s, skipping", file.Name())
			continue
		}
		f.Design.UserID = f.Owner
		f.Design.Data = nil
		designs = append(designs, &f.Design)
	}
	sort.Slice(designs, func(i, j int) bool { return designs[i].ID < designs[j].ID })

	log.Infof("Listed %d designs", len(designs))
	return designs, nil
}

func (s *fsStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	path, err := s.path("designs", userID, id+".json")
	if err != nil {
		return nil, err
	}
	var f designFile
	if err := readJSON(path, &f); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id}).Warn("Design file not found")
			return nil, fmt.Errorf("design %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	f.Design.UserID = f.Owner
	return &f.Design, nil
}

func (s *fsStore) Save(ctx context.Context, design *core.Design) error {
	if design.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	path, err := s.path("designs", design.UserID, design.ID+".json")
	if err != nil {
		return err
	}
	if err := core.ValidateKey(design.ID); err != nil {
		return err
	}

	now := time.Now()
	design.CreatedAt = now
	var existing designFile
	if err := readJSON(path, &existing); err == nil {
		design.CreatedAt = existing.CreatedAt
	}
	design.UpdatedAt = now

	if err := writeJSON(path, designFile{Design: *design, Owner: design.UserID}); err != nil {
		logrus.WithError(err).WithField("path", path).Error("Failed to write design file")
		return err
	}
	logrus.WithFields(logrus.Fields{"user_id": design.UserID, "design_id": design.ID}).Info("Design saved successfully")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, userID, id string) error {
	path, err := s.path("designs", userID, id+".json")
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("design %s: %w", id, core.ErrNotFound)
		}
		return err
	}

	records, err := s.ListSnapshots(ctx, id)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if blob, err := s.path("blobs", rec.PNGBlobRef); err == nil {
			_ = os.Remove(blob)
		}
	}
	return os.RemoveAll(filepath.Join(s.basePath, "snapshots", id))
}

// TemplateStore implementation
func (s *fsStore) GetTemplate(ctx context.Context, id string) (*core.Template, error) {
	path, err := s.path("templates", id+".json")
	if err != nil {
		return nil, err
	}
	var t core.Template
	if err := readJSON(path, &t); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("template %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func (s *fsStore) ListTemplates(ctx context.Context) ([]*core.Template, error) {
	dir := filepath.Join(s.basePath, "templates")
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	templates := make([]*core.Template, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		var t core.Template
		if err := readJSON(filepath.Join(dir, file.Name()), &t); err != nil {
			logrus.WithError(err).Warnf("Failed to read template file %s, skipping", file.Name())
			continue
		}
		templates = append(templates, &t)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

func (s *fsStore) SaveTemplate(ctx context.Context, template *core.Template) error {
	path, err := s.path("templates", template.ID+".json")
	if err != nil {
		return err
	}
	if err := core.ValidateKey(template.ID); err != nil {
		return err
	}
	template.UpdatedAt = time.Now()
	return writeJSON(path, template)
}

// snapshotFile keeps the uploader, which the record leaves out of its JSON.
type snapshotFile struct {
	core.DesignSnapshotRecord
	Uploader string `json:"uploader,omitempty"`
}

// SnapshotStore implementation
func (s *fsStore) PutSnapshot(ctx context.Context, record *core.DesignSnapshotRecord, png []byte) error {
	path, err := s.path("snapshots", record.DesignID, record.ViewID+".json")
	if err != nil {
		return err
	}
	if err := core.ValidateKey(record.ViewID); err != nil {
		return err
	}
	var old snapshotFile
	hadOld := readJSON(path, &old) == nil

	record.PNGBlobRef = ulid.Make().String() + ".png"
	record.CreatedAt = time.Now()
	record.ByteSize = int64(len(png))
	if err := os.WriteFile(filepath.Join(s.basePath, "blobs", record.PNGBlobRef), png, 0644); err != nil {
		return err
	}
	if err := writeJSON(path, snapshotFile{DesignSnapshotRecord: *record, Uploader: record.UserID}); err != nil {
		return err
	}
	if hadOld {
		if blob, err := s.path("blobs", old.PNGBlobRef); err == nil {
			_ = os.Remove(blob)
		}
	}

	logrus.WithFields(logrus.Fields{
		"design_id": record.DesignID,
		"view_id":   record.ViewID,
		"blob_ref":  record.PNGBlobRef,
		"size":      len(png),
	}).Info("Snapshot stored")
	return nil
}

func (s *fsStore) GetSnapshot(ctx context.Context, designID, viewID string) (*core.DesignSnapshotRecord, error) {
	path, err := s.path("snapshots", designID, viewID+".json")
	if err != nil {
		return nil, err
	}
	var f snapshotFile
	if err := readJSON(path, &f); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("snapshot %s/%s: %w", designID, viewID, core.ErrNotFound)
		}
		return nil, err
	}
	f.DesignSnapshotRecord.UserID = f.Uploader
	return &f.DesignSnapshotRecord, nil
}

func (s *fsStore) ListSnapshots(ctx context.Context, designID string) ([]*core.DesignSnapshotRecord, error) {
	dir, err := s.path("snapshots", designID)
	if err != nil {
		return nil, err
	}
	files, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []*core.DesignSnapshotRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	records := make([]*core.DesignSnapshotRecord, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		var f snapshotFile
		if err := readJSON(filepath.Join(dir, file.Name()), &f); err != nil {
			logrus.WithError(err).Warnf("Failed to read snapshot file %s, skipping", file.Name())
			continue
		}
		f.DesignSnapshotRecord.UserID = f.Uploader
		records = append(records, &f.DesignSnapshotRecord)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ViewID < records[j].ViewID })
	return records, nil
}

func (s *fsStore) ReadSnapshot(ctx context.Context, record *core.DesignSnapshotRecord) ([]byte, error) {
	path, err := s.path("blobs", record.PNGBlobRef)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", record.PNGBlobRef, core.ErrNotFound)
	}
	return data, err
}
