package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"printdesign-server/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS designs (
	id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	name TEXT,
	template_id TEXT,
	thumbnail TEXT,
	data BLOB,
	created_at DATETIME,
	updated_at DATETIME,
	PRIMARY KEY (user_id, id)
);
CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	name TEXT,
	views TEXT NOT NULL,
	updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS design_snapshots (
	design_id TEXT NOT NULL,
	view_id TEXT NOT NULL,
	template_id TEXT,
	user_id TEXT,
	blob_ref TEXT NOT NULL,
	print_png BLOB,
	print_area_px TEXT,
	print_area_mm TEXT,
	pixel_width INTEGER,
	pixel_height INTEGER,
	dpi REAL,
	byte_size INTEGER,
	generated_at DATETIME,
	PRIMARY KEY (design_id, view_id)
);`

type sqliteStore struct {
	db *sql.DB
}

// NewStore opens the database and creates the tables if needed.
func NewStore(dataSourceName string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &sqliteStore{db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// DesignStore implementation
func (s *sqliteStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, template_id, thumbnail, created_at, updated_at FROM designs WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	designs := []*core.Design{}
	for rows.Next() {
		d := core.Design{UserID: userID}
		if err := rows.Scan(&d.ID, &d.Name, &d.TemplateID, &d.Thumbnail, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		designs = append(designs, &d)
	}
	return designs, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	d := core.Design{ID: id, UserID: userID}
	err := s.db.QueryRowContext(ctx, "SELECT name, template_id, thumbnail, data, created_at, updated_at FROM designs WHERE user_id = ? AND id = ?", userID, id).
		Scan(&d.Name, &d.TemplateID, &d.Thumbnail, &d.Data, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *sqliteStore) Save(ctx context.Context, design *core.Design) error {
	if design.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	if err := core.ValidateKey(design.ID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, "SELECT created_at FROM designs WHERE user_id = ? AND id = ?", design.UserID, design.ID).Scan(&createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, "INSERT INTO designs (id, user_id, name, template_id, thumbnail, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			design.ID, design.UserID, design.Name, design.TemplateID, design.Thumbnail, design.Data, now, now)
		createdAt = now
	case err == nil:
		_, err = tx.ExecContext(ctx, "UPDATE designs SET name = ?, template_id = ?, thumbnail = ?, data = ?, updated_at = ? WHERE user_id = ? AND id = ?",
			design.Name, design.TemplateID, design.Thumbnail, design.Data, now, design.UserID, design.ID)
	}
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	design.CreatedAt, design.UpdatedAt = createdAt, now
	logrus.WithFields(logrus.Fields{"user_id": design.UserID, "design_id": design.ID}).Info("Design saved successfully")
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, userID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM designs WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM design_snapshots WHERE design_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// TemplateStore implementation
func (s *sqliteStore) GetTemplate(ctx context.Context, id string) (*core.Template, error) {
	var (
		t     = core.Template{ID: id}
		views string
	)
	err := s.db.QueryRowContext(ctx, "SELECT name, views, updated_at FROM templates WHERE id = ?", id).Scan(&t.Name, &views, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(views), &t.Views); err != nil {
		return nil, fmt.Errorf("decode views of template %s: %w", id, err)
	}
	return &t, nil
}

func (s *sqliteStore) ListTemplates(ctx context.Context) ([]*core.Template, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, views, updated_at FROM templates ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*core.Template{}
	for rows.Next() {
		var (
			t     core.Template
			views string
		)
		if err := rows.Scan(&t.ID, &t.Name, &views, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(views), &t.Views); err != nil {
			logrus.WithError(err).WithField("template_id", t.ID).Warn("Skipping template with unreadable views")
			continue
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

func (s *sqliteStore) SaveTemplate(ctx context.Context, template *core.Template) error {
	if err := core.ValidateKey(template.ID); err != nil {
		return err
	}
	views, err := json.Marshal(template.Views)
	if err != nil {
		return err
	}
	template.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `INSERT INTO templates (id, name, views, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, views = excluded.views, updated_at = excluded.updated_at`,
		template.ID, template.Name, string(views), template.UpdatedAt)
	return err
}

// SnapshotStore implementation
func (s *sqliteStore) PutSnapshot(ctx context.Context, record *core.DesignSnapshotRecord, png []byte) error {
	if err := core.ValidateKey(record.DesignID); err != nil {
		return err
	}
	if err := core.ValidateKey(record.ViewID); err != nil {
		return err
	}
	px, err := json.Marshal(record.PrintAreaPx)
	if err != nil {
		return err
	}
	mm, err := json.Marshal(record.PrintAreaMm)
	if err != nil {
		return err
	}

	record.PNGBlobRef = ulid.Make().String() + ".png"
	record.CreatedAt = time.Now().UTC()
	record.ByteSize = int64(len(png))

	// A newer upload for the same view replaces the row.
	_, err = s.db.ExecContext(ctx, `INSERT INTO design_snapshots
		(design_id, view_id, template_id, user_id, blob_ref, print_png, print_area_px, print_area_mm, pixel_width, pixel_height, dpi, byte_size, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(design_id, view_id) DO UPDATE SET
			template_id = excluded.template_id, user_id = excluded.user_id, blob_ref = excluded.blob_ref,
			print_png = excluded.print_png, print_area_px = excluded.print_area_px, print_area_mm = excluded.print_area_mm,
			pixel_width = excluded.pixel_width, pixel_height = excluded.pixel_height, dpi = excluded.dpi,
			byte_size = excluded.byte_size, generated_at = excluded.generated_at`,
		record.DesignID, record.ViewID, record.TemplateID, record.UserID, record.PNGBlobRef, png, string(px), string(mm),
		record.PixelWidth, record.PixelHeight, record.DPI, record.ByteSize, record.CreatedAt)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"design_id": record.DesignID,
		"view_id":   record.ViewID,
		"blob_ref":  record.PNGBlobRef,
		"size":      len(png),
	}).Info("Snapshot stored")
	return nil
}

const snapshotColumns = "design_id, view_id, template_id, user_id, blob_ref, print_area_px, print_area_mm, pixel_width, pixel_height, dpi, byte_size, generated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*core.DesignSnapshotRecord, error) {
	var (
		rec    core.DesignSnapshotRecord
		px, mm string
	)
	if err := row.Scan(&rec.DesignID, &rec.ViewID, &rec.TemplateID, &rec.UserID, &rec.PNGBlobRef, &px, &mm,
		&rec.PixelWidth, &rec.PixelHeight, &rec.DPI, &rec.ByteSize, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(px), &rec.PrintAreaPx); err != nil {
		return nil, fmt.Errorf("decode print_area_px: %w", err)
	}
	if err := json.Unmarshal([]byte(mm), &rec.PrintAreaMm); err != nil {
		return nil, fmt.Errorf("decode print_area_mm: %w", err)
	}
	return &rec, nil
}

func (s *sqliteStore) GetSnapshot(ctx context.Context, designID, viewID string) (*core.DesignSnapshotRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+" FROM design_snapshots WHERE design_id = ? AND view_id = ?", designID, viewID)
	rec, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s/%s: %w", designID, viewID, core.ErrNotFound)
	}
	return rec, err
}

func (s *sqliteStore) ListSnapshots(ctx context.Context, designID string) ([]*core.DesignSnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+snapshotColumns+" FROM design_snapshots WHERE design_id = ? ORDER BY view_id", designID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*core.DesignSnapshotRecord{}
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *sqliteStore) ReadSnapshot(ctx context.Context, record *core.DesignSnapshotRecord) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT print_png FROM design_snapshots WHERE blob_ref = ?", record.PNGBlobRef).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blob %s: %w", record.PNGBlobRef, core.ErrNotFound)
	}
	return data, err
}
