package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/konorlevich/p2p_docs/internal/rest-service/auth"
	"github.com/konorlevich/p2p_docs/internal/rest-service/config"
	"github.com/konorlevich/p2p_docs/internal/rest-service/database"
	"github.com/konorlevich/p2p_docs/internal/rest-service/handler"
	"github.com/konorlevich/p2p_docs/internal/rest-service/storage"
	"github.com/konorlevich/p2p_docs/internal/rest-service/storage/files"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	logger := log.New()
	logger.SetLevel(cfg.LogLevel)
	l := logger.WithFields(cfg.Fields())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDb(cfg.DBDriver, cfg.DBDSN, l)
	if err != nil {
		l.WithError(err).Fatal("failed to open database")
	}
	defer func() {
		if err := database.Close(db); err != nil {
			l.WithError(err).Error("can't close database")
		}
	}()

	blobs, err := newFileStorage(ctx, cfg, l)
	if err != nil {
		l.WithError(err).Fatal("failed to open file storage")
	}

	tokens, err := auth.NewTokens([]byte(cfg.SecretKey), cfg.Algorithm)
	if err != nil {
		l.WithError(err).Fatal("can't set up tokens")
	}
	authService := auth.NewService(
		database.NewRepository[database.User](db),
		auth.NewHasher(cfg.BcryptCost),
		tokens,
		cfg.AccessTokenExpire,
		l.WithField("component", "auth"),
	)
	docs := storage.NewServer(
		database.NewRepository[database.Document](db),
		blobs,
		cfg.StorageTimeout,
		l.WithField("component", "storage"),
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewHandler(authService, docs, healthCheck(db), l.WithField("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		l.Printf("listening to port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		l.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		l.WithError(err).Error("server stopped with an error")
	}
}

func newFileStorage(ctx context.Context, cfg *config.Config, l *log.Entry) (storage.FileStorage, error) {
	l = l.WithField("component", "files")
	if cfg.StorageType == files.TypeS3 {
		return files.NewS3(ctx, cfg.S3, l)
	}
	return files.NewLocal(cfg.UploadDir, l)
}

func healthCheck(db *gorm.DB) handler.HealthCheck {
	return func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
}
