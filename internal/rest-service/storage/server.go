package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/p2p_docs/internal/rest-service/database"
	"github.com/konorlevich/p2p_docs/internal/rest-service/storage/files"
)

const DefaultTimeout = 30 * time.Second

var (
	ErrFileNotFound  = errors.New("not found")
	ErrNoOwner       = errors.New("owner peer id is empty")
	ErrNothingToSave = errors.New("no file content")

	ErrCantGetFile  = errors.New("can't get file from db")
	ErrCantSaveFile = errors.New("can't save file")
	ErrSavingFailed = errors.New("file saving failed")
	ErrCantReadFile = errors.New("can't read file from storage")
)

type MetaStorage interface {
	Create(ctx context.Context, doc *database.Document) (*database.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*database.Document, error)
	FindOne(ctx context.Context, where *database.Document, order ...string) (*database.Document, error)
	Find(ctx context.Context, where *database.Document, order ...string) ([]*database.Document, error)
}

type FileStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
}

const newestFirst = "created_at desc"

type Server struct {
	ms      MetaStorage
	fs      FileStorage
	timeout time.Duration
	l       *log.Entry
}

func NewServer(ms MetaStorage, fs FileStorage, timeout time.Duration, l *log.Entry) *Server {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Server{
		ms:      ms,
		fs:      fs,
		timeout: timeout,
		l:       l,
	}
}

// SaveFile writes the blob first and records it only once the blob is in place.
// If the record can't be created the blob is removed again.
func (s *Server) SaveFile(ctx context.Context, owner, filename string, f io.Reader) (*database.Document, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	if f == nil {
		return nil, ErrNothingToSave
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name := files.NewName(filename)
	l := s.l.WithFields(log.Fields{
		"p2p_id":   owner,
		"filename": filename,
		"blob":     name,
	})

	size, err := s.fs.Save(ctx, name, f)
	if err != nil {
		l.WithError(err).Error(ErrSavingFailed)
		return nil, ErrSavingFailed
	}

	doc, err := s.ms.Create(ctx, &database.Document{
		Filename:   files.BaseName(filename),
		Path:       name,
		OwnerP2PID: owner,
		Size:       size,
	})
	if err != nil {
		l.WithError(err).Error(ErrCantSaveFile)
		s.removeBlob(ctx, name, l)
		return nil, ErrCantSaveFile
	}

	l.WithFields(log.Fields{"document_id": doc.ID, "size": size}).Info("file saved")
	return doc, nil
}

// GetFileByOwner streams the most recently uploaded document of the peer.
func (s *Server) GetFileByOwner(ctx context.Context, owner string) (io.ReadCloser, *database.Document, error) {
	if owner == "" {
		return nil, nil, ErrFileNotFound
	}
	return s.open(ctx, s.l.WithField("p2p_id", owner), func(ctx context.Context) (*database.Document, error) {
		return s.ms.FindOne(ctx, &database.Document{OwnerP2PID: owner}, newestFirst)
	})
}

func (s *Server) GetFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *database.Document, error) {
	return s.open(ctx, s.l.WithField("document_id", id), func(ctx context.Context) (*database.Document, error) {
		return s.ms.Get(ctx, id)
	})
}

func (s *Server) ListFiles(ctx context.Context, owner string) ([]*database.Document, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	docs, err := s.ms.Find(ctx, &database.Document{OwnerP2PID: owner}, newestFirst)
	if err != nil {
		s.l.WithField("p2p_id", owner).WithError(err).Error(ErrCantGetFile)
		return nil, ErrCantGetFile
	}
	return docs, nil
}

// open looks the record up and opens its blob. The returned reader keeps the
// timeout running until it is closed.
func (s *Server) open(
	ctx context.Context,
	l *log.Entry,
	lookup func(ctx context.Context) (*database.Document, error),
) (io.ReadCloser, *database.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)

	doc, err := lookup(ctx)
	if err != nil {
		cancel()
		if errors.Is(err, database.ErrRecordNotFound) {
			l.Info("no document found")
			return nil, nil, ErrFileNotFound
		}
		l.WithError(err).Error(ErrCantGetFile)
		return nil, nil, ErrCantGetFile
	}
	l = l.WithFields(log.Fields{"document_id": doc.ID, "blob": doc.Path})

	r, err := s.fs.Open(ctx, doc.Path)
	if err != nil {
		cancel()
		if errors.Is(err, files.ErrBlobNotFound) {
			// the record outlived its blob
			l.WithError(err).Error("document blob is missing")
			return nil, nil, ErrFileNotFound
		}
		l.WithError(err).Error(ErrCantReadFile)
		return nil, nil, ErrCantReadFile
	}
	return &cancelOnClose{ReadCloser: r, cancel: cancel}, doc, nil
}

func (s *Server) removeBlob(ctx context.Context, name string, l *log.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.fs.Remove(ctx, name); err != nil {
		l.WithError(err).Warning("orphaned blob left in storage")
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
