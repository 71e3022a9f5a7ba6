package files

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Local keeps blobs as flat files in one directory.
type Local struct {
	path string
	l    *log.Entry
}

func NewLocal(basePath string, l *log.Entry) (*Local, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		l.WithField("storage_base_path", basePath).WithError(err).Error(ErrCantCreateStorage)
		return nil, ErrCantCreateStorage
	}
	return &Local{path: basePath, l: l.WithField("storage_base_path", basePath)}, nil
}

// Save writes the blob into a temp file and renames it into place, so a reader
// never sees a partially written blob under its final name.
func (s *Local) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	if r == nil {
		return 0, ErrNothingToSave
	}
	if !validName(name) {
		return 0, ErrInvalidName
	}
	l := s.l.WithField("blob", name)

	// the root may have been removed since start up
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		l.WithError(err).Error(ErrCantCreateStorage)
		return 0, ErrCantCreateStorage
	}

	tmp, err := os.CreateTemp(s.path, ".upload-*")
	if err != nil {
		l.WithError(err).Error(ErrCantWriteBlob)
		return 0, ErrCantWriteBlob
	}
	defer func() {
		// no-op once the rename happened
		_ = os.Remove(tmp.Name())
	}()

	written, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		l.WithError(err).Error(ErrCantWriteBlob)
		return 0, ErrCantWriteBlob
	}

	blobPath := filepath.Join(s.path, name)
	if err = os.Rename(tmp.Name(), blobPath); err != nil {
		l.WithError(err).Error(ErrCantWriteBlob)
		return 0, ErrCantWriteBlob
	}

	info, err := os.Stat(blobPath)
	if err != nil || info.Size() != written {
		l.WithError(err).WithField("written", written).Error(ErrSizeMismatch)
		_ = os.Remove(blobPath)
		return 0, ErrSizeMismatch
	}
	l.WithField("size", written).Debug("blob saved")
	return written, nil
}

func (s *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	l := s.l.WithField("blob", name)

	f, err := os.Open(filepath.Join(s.path, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.WithError(err).Warn(ErrBlobNotFound)
			return nil, ErrBlobNotFound
		}
		l.WithError(err).Error(ErrCantReadBlob)
		return nil, ErrCantReadBlob
	}
	return f, nil
}

func (s *Local) Remove(_ context.Context, name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	if err := os.Remove(filepath.Join(s.path, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.l.WithField("blob", name).WithError(err).Error(ErrCantRemoveBlob)
		return ErrCantRemoveBlob
	}
	return nil
}
