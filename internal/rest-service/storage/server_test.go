package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konorlevich/p2p_docs/internal/rest-service/database"
	"github.com/konorlevich/p2p_docs/internal/rest-service/storage/files"
)

func getLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.FatalLevel)
	return logger.WithField("in_test", true)
}

type testEnv struct {
	server  *Server
	docs    *database.Repository[database.Document]
	blobDir string
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewDb(database.DriverSqlite, filepath.Join(dir, "test.db"), getLogger())
	if err != nil {
		t.Fatalf("failed to connect database: %s", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	blobDir := filepath.Join(dir, "uploads")
	fs, err := files.NewLocal(blobDir, getLogger())
	require.NoError(t, err)

	docs := database.NewRepository[database.Document](db)
	return &testEnv{
		server:  NewServer(docs, fs, time.Second, getLogger()),
		docs:    docs,
		blobDir: blobDir,
	}
}

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestServer_SaveGetByOwner(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	doc, err := env.server.SaveFile(ctx, "alice-peer", "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, doc.ID)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, "alice-peer", doc.OwnerP2PID)
	assert.Equal(t, int64(5), doc.Size)
	assert.True(t, strings.HasSuffix(doc.Path, "_notes.txt"), doc.Path)

	_, err = os.Stat(filepath.Join(env.blobDir, doc.Path))
	assert.NoError(t, err, "blob is stored under the generated name")

	r, got, err := env.server.GetFileByOwner(ctx, "alice-peer")
	require.NoError(t, err)
	assert.Equal(t, "hello", readAll(t, r))
	assert.Equal(t, "notes.txt", got.Filename)

	r, got, err = env.server.GetFile(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", readAll(t, r))
	assert.Equal(t, doc.ID, got.ID)
}

func TestServer_SameContentTwice(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	first, err := env.server.SaveFile(ctx, "peer", "same.txt", strings.NewReader("same"))
	require.NoError(t, err)
	second, err := env.server.SaveFile(ctx, "peer", "same.txt", strings.NewReader("same"))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Path, second.Path)

	docs, err := env.server.ListFiles(ctx, "peer")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, second.ID, docs[0].ID, "newest first")
}

func TestServer_GetByOwnerPicksNewest(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.server.SaveFile(ctx, "peer", "old.txt", strings.NewReader("old"))
	require.NoError(t, err)
	_, err = env.server.SaveFile(ctx, "peer", "new.txt", strings.NewReader("new"))
	require.NoError(t, err)

	r, doc, err := env.server.GetFileByOwner(ctx, "peer")
	require.NoError(t, err)
	assert.Equal(t, "new", readAll(t, r))
	assert.Equal(t, "new.txt", doc.Filename)
}

func TestServer_NotFound(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	doc, err := env.server.SaveFile(ctx, "peer", "gone.txt", strings.NewReader("gone"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(env.blobDir, doc.Path)))

	tests := []struct {
		name string
		get  func() (io.ReadCloser, *database.Document, error)
	}{
		{name: "unknown owner", get: func() (io.ReadCloser, *database.Document, error) {
			return env.server.GetFileByOwner(ctx, "nobody")
		}},
		{name: "empty owner", get: func() (io.ReadCloser, *database.Document, error) {
			return env.server.GetFileByOwner(ctx, "")
		}},
		{name: "unknown id", get: func() (io.ReadCloser, *database.Document, error) {
			return env.server.GetFile(ctx, uuid.New())
		}},
		{name: "blob missing by owner", get: func() (io.ReadCloser, *database.Document, error) {
			return env.server.GetFileByOwner(ctx, "peer")
		}},
		{name: "blob missing by id", get: func() (io.ReadCloser, *database.Document, error) {
			return env.server.GetFile(ctx, doc.ID)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, d, err := tt.get()
			assert.Nil(t, r)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, ErrFileNotFound)
		})
	}
}

func TestServer_SaveValidation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.server.SaveFile(ctx, "", "a.txt", strings.NewReader("a"))
	assert.ErrorIs(t, err, ErrNoOwner)
	_, err = env.server.SaveFile(ctx, "peer", "a.txt", nil)
	assert.ErrorIs(t, err, ErrNothingToSave)

	_, err = env.server.ListFiles(ctx, "")
	assert.ErrorIs(t, err, ErrNoOwner)
}

type failingMeta struct {
	MetaStorage
}

func (failingMeta) Create(context.Context, *database.Document) (*database.Document, error) {
	return nil, errors.New("db is down")
}

type erroringReader struct{}

func (erroringReader) Read([]byte) (int, error) {
	return 0, errors.New("client went away")
}

func TestServer_SaveFailures(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	t.Run("record failure removes the blob", func(t *testing.T) {
		fs, err := files.NewLocal(env.blobDir, getLogger())
		require.NoError(t, err)
		s := NewServer(failingMeta{}, fs, time.Second, getLogger())

		_, err = s.SaveFile(ctx, "peer", "orphan.txt", strings.NewReader("orphan"))
		assert.ErrorIs(t, err, ErrCantSaveFile)

		entries, err := os.ReadDir(env.blobDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("blob failure creates no record", func(t *testing.T) {
		_, err := env.server.SaveFile(ctx, "peer", "broken.txt", erroringReader{})
		assert.ErrorIs(t, err, ErrSavingFailed)

		docs, err := env.docs.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}
