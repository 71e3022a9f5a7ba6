package files

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNothingToSave     = errors.New("nothing to save")
	ErrInvalidName       = errors.New("invalid blob name")
	ErrCantCreateStorage = errors.New("can't create blob storage")
	ErrCantWriteBlob     = errors.New("can't write blob")
	ErrSizeMismatch      = errors.New("stored blob size doesn't match written size")
	ErrBlobNotFound      = errors.New("can't find the blob")
	ErrCantReadBlob      = errors.New("can't read the blob")
	ErrCantRemoveBlob    = errors.New("can't remove the blob")
)

const (
	TypeLocal = "local"
	TypeS3    = "s3"
)

// NewName returns a collision resistant storage name: <random id>_<original base name>.
func NewName(filename string) string {
	return uuid.NewString() + "_" + BaseName(filename)
}

// BaseName strips any client side directories from an uploaded file name.
func BaseName(filename string) string {
	// multipart filenames may carry client paths from either platform
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "file"
	}
	return name
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`)
}
