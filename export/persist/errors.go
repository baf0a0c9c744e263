package persist

import (
	"errors"
	"fmt"

	"printdesign-server/core"
)

// Error is returned by Upload for every failure the server or the network
// produced. Fatal errors end the export session; the rest only fail the view.
type Error struct {
	Code   core.ErrorCode
	Fatal  bool
	Status int
	// Size is the attempted payload size in bytes, Limit the server's
	// ceiling when it reported one.
	Size  int64
	Limit int64
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Code == core.CodePayloadTooLarge && e.Limit > 0:
		return fmt.Sprintf("upload %s: %d bytes exceeds limit of %d", e.Code, e.Size, e.Limit)
	case e.Code == core.CodePayloadTooLarge:
		return fmt.Sprintf("upload %s: %d bytes", e.Code, e.Size)
	case e.Err != nil:
		return fmt.Sprintf("upload %s: %v", e.Code, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("upload %s: status %d", e.Code, e.Status)
	}
	return "upload " + string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (core.ErrorCode, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

// IsFatal reports whether err must abort the remaining views.
func IsFatal(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Fatal
}
