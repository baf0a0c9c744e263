package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// Design is a user-saved editor scene bound to a product template.
	Design struct {
		ID         string    `json:"id"`
		UserID     string    `json:"-"` // Not exposed in JSON responses, used internally.
		Name       string    `json:"name"`
		TemplateID string    `json:"templateId"`
		Thumbnail  string    `json:"thumbnail,omitempty"`
		Data       []byte    `json:"data,omitempty"` // The scene JSON, not included in list views.
		CreatedAt  time.Time `json:"createdAt"`
		UpdatedAt  time.Time `json:"updatedAt"`
	}

	// DesignStore defines the persistence layer for user-owned designs.
	// All operations are scoped to a specific user.
	DesignStore interface {
		// List returns metadata for all designs owned by a user.
		// The returned Design objects should not contain the `Data` field to keep the response light.
		List(ctx context.Context, userID string) ([]*Design, error)

		// Get returns a single design by its ID, ensuring it belongs to the user.
		Get(ctx context.Context, userID, id string) (*Design, error)

		// Save creates or updates a design for a user.
		Save(ctx context.Context, design *Design) error

		// Delete removes a design, ensuring it belongs to the user.
		Delete(ctx context.Context, userID, id string) error
	}
)

// ErrInvalidKey is returned for ids that cannot be used as storage keys.
var ErrInvalidKey = errors.New("invalid key")

// ValidateKey rejects ids that are empty, dot directories or contain path
// separators.
func ValidateKey(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}
	return nil
}
