package core

import (
	"context"
	"time"
)

type (
	// DesignSnapshotRecord describes the latest print PNG stored for one view
	// of a design. A newer upload for the same design and view supersedes it.
	DesignSnapshotRecord struct {
		DesignID    string    `json:"designId"`
		ViewID      string    `json:"viewId"`
		TemplateID  string    `json:"templateId"`
		UserID      string    `json:"-"`
		PNGBlobRef  string    `json:"pngBlobRef"`
		PrintAreaPx Rect      `json:"printAreaPx"`
		PrintAreaMm Rect      `json:"printAreaMm"`
		PixelWidth  int       `json:"pixelWidth"`
		PixelHeight int       `json:"pixelHeight"`
		DPI         float64   `json:"dpi"`
		ByteSize    int64     `json:"byteSize"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	SnapshotStore interface {
		// PutSnapshot stores the blob, assigns PNGBlobRef and CreatedAt and
		// replaces any earlier record for the same design and view.
		PutSnapshot(ctx context.Context, record *DesignSnapshotRecord, png []byte) error

		// GetSnapshot returns ErrNotFound when the view has no snapshot yet.
		GetSnapshot(ctx context.Context, designID, viewID string) (*DesignSnapshotRecord, error)

		// ListSnapshots returns the latest record per view, ordered by view id.
		ListSnapshots(ctx context.Context, designID string) ([]*DesignSnapshotRecord, error)

		// ReadSnapshot returns the PNG bytes behind a record.
		ReadSnapshot(ctx context.Context, record *DesignSnapshotRecord) ([]byte, error)
	}
)
