package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqliteGo "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const CustomDriverName = "sqlite3_extended"

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
)

const DefaultFile = "rest-service.db"

var (
	ErrRecordNotFound = gorm.ErrRecordNotFound
	ErrDuplicatedKey  = gorm.ErrDuplicatedKey
)

func init() {
	sql.Register(CustomDriverName,
		&sqliteGo.SQLiteDriver{
			ConnectHook: func(conn *sqliteGo.SQLiteConn) error {
				err := conn.RegisterFunc(
					"gen_random_uuid",
					func(arguments ...interface{}) (string, error) {
						u, err := uuid.NewRandom()
						if err != nil {
							return "", err
						}
						return u.String(), nil
					},
					false,
				)
				return err
			},
		},
	)
}

// NewDb opens the database for the given driver and migrates the schema.
// Unique violations come back as ErrDuplicatedKey for both drivers.
func NewDb(driver, dsn string, l *log.Entry) (*gorm.DB, error) {
	dialector, err := newDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(l.WithField("component", "gorm"), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogLevel(l.Logger.GetLevel()),
			IgnoreRecordNotFoundError: true,
		}),
		SkipDefaultTransaction:   true,
		DisableNestedTransaction: true,
		TranslateError:           true,
	})
	if err != nil {
		return nil, err
	}
	if err = db.AutoMigrate(&User{}, &Document{}); err != nil {
		return nil, fmt.Errorf("can't migrate schema: %w", err)
	}
	return db, nil
}

func newDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSqlite:
		conn, err := sql.Open(CustomDriverName, dsn)
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers anyway; one connection avoids "database is locked"
		conn.SetMaxOpenConns(1)
		return sqlite.Dialector{
			DriverName: CustomDriverName,
			DSN:        dsn,
			Conn:       conn,
		}, nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

func gormLogLevel(level log.Level) logger.LogLevel {
	switch {
	case level >= log.DebugLevel:
		return logger.Info
	case level >= log.WarnLevel:
		return logger.Warn
	case level >= log.ErrorLevel:
		return logger.Error
	default:
		return logger.Silent
	}
}

func Ping(ctx context.Context, db *gorm.DB) error {
	conn, err := db.DB()
	if err != nil {
		return err
	}
	return conn.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	conn, err := db.DB()
	if err != nil {
		return err
	}
	return conn.Close()
}
