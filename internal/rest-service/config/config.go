// Package config builds the service settings once at start up: defaults,
// then an optional .env file, then the environment, then command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/konorlevich/p2p_docs/internal/rest-service/database"
	"github.com/konorlevich/p2p_docs/internal/rest-service/storage/files"
)

type Config struct {
	Port string

	DBDriver string
	DBDSN    string

	SecretKey         string
	Algorithm         string
	AccessTokenExpire time.Duration
	BcryptCost        int

	StorageType    string
	UploadDir      string
	S3             files.S3Config
	StorageTimeout time.Duration

	LogLevel log.Level
}

func defaults() *Config {
	return &Config{
		Port:              "8000",
		DBDriver:          database.DriverSqlite,
		DBDSN:             database.DefaultFile,
		Algorithm:         "HS256",
		AccessTokenExpire: 30 * time.Minute,
		StorageType:       files.TypeLocal,
		UploadDir:         "uploads",
		S3:                files.S3Config{Region: "us-east-1"},
		StorageTimeout:    30 * time.Second,
		LogLevel:          log.InfoLevel,
	}
}

// Load reads envFile (a missing file is not an error), the environment and args.
func Load(envFile string, args []string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("can't read %s: %w", envFile, err)
		}
	}

	cfg := defaults()
	if err := cfg.fromEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.fromFlags(args); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) fromEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("REST_PORT", &c.Port)
	str("DB_DRIVER", &c.DBDriver)
	str("DB_DSN", &c.DBDSN)
	str("SECRET_KEY", &c.SecretKey)
	str("ALGORITHM", &c.Algorithm)
	str("STORAGE_TYPE", &c.StorageType)
	str("UPLOAD_DIR", &c.UploadDir)
	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_REGION", &c.S3.Region)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("AWS_ACCESS_KEY_ID", &c.S3.AccessKey)
	str("AWS_SECRET_ACCESS_KEY", &c.S3.SecretKey)

	if v, ok := lookup("ACCESS_TOKEN_EXPIRE_MINUTES"); ok && v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
		}
		c.AccessTokenExpire = time.Duration(m) * time.Minute
	}
	if v, ok := lookup("BCRYPT_COST"); ok && v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BCRYPT_COST: %w", err)
		}
		c.BcryptCost = cost
	}
	if v, ok := lookup("STORAGE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STORAGE_TIMEOUT: %w", err)
		}
		c.StorageTimeout = d
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		lvl, err := log.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
		c.LogLevel = lvl
	}
	return nil
}

func (c *Config) fromFlags(args []string) error {
	fs := pflag.NewFlagSet("rest-service", pflag.ContinueOnError)
	fs.StringVarP(&c.Port, "port", "p", c.Port, "port to listen on")
	fs.StringVar(&c.DBDriver, "db-driver", c.DBDriver, "database driver: sqlite or postgres")
	fs.StringVar(&c.DBDSN, "db-dsn", c.DBDSN, "database file or connection string")
	fs.StringVar(&c.StorageType, "storage", c.StorageType, "blob storage: local or s3")
	fs.StringVar(&c.UploadDir, "upload-dir", c.UploadDir, "directory for uploaded files (local storage)")
	fs.StringVar(&c.S3.Bucket, "s3-bucket", c.S3.Bucket, "bucket for uploaded files (s3 storage)")
	fs.DurationVar(&c.StorageTimeout, "storage-timeout", c.StorageTimeout, "deadline for a single database or blob operation")
	fs.DurationVar(&c.AccessTokenExpire, "token-ttl", c.AccessTokenExpire, "access token lifetime")
	logLevel := fs.String("log-level", c.LogLevel.String(), "log level")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.Changed("log-level") {
		lvl, err := log.ParseLevel(*logLevel)
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		c.LogLevel = lvl
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("unsupported ALGORITHM %q", c.Algorithm))
	}
	if c.AccessTokenExpire <= 0 {
		errs = append(errs, errors.New("token lifetime must be positive"))
	}
	if c.StorageTimeout <= 0 {
		errs = append(errs, errors.New("storage timeout must be positive"))
	}
	switch c.DBDriver {
	case database.DriverSqlite, database.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	switch c.StorageType {
	case files.TypeLocal:
		if c.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIR is required for local storage"))
		}
	case files.TypeS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType))
	}
	return errors.Join(errs...)
}

// Fields are safe to log: no secrets.
func (c *Config) Fields() log.Fields {
	return log.Fields{
		"rest_port":    c.Port,
		"db_driver":    c.DBDriver,
		"storage_type": c.StorageType,
		"upload_dir":   c.UploadDir,
		"s3_bucket":    c.S3.Bucket,
		"algorithm":    c.Algorithm,
		"token_ttl":    c.AccessTokenExpire.String(),
	}
}
