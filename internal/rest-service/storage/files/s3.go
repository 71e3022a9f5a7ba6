package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	log "github.com/sirupsen/logrus"
)

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // for S3 compatible services, e.g. minio
	AccessKey string
	SecretKey string
}

// S3 keeps blobs as objects in one bucket, keyed by blob name.
type S3 struct {
	client *s3.Client
	bucket string
	l      *log.Entry
}

func NewS3(ctx context.Context, cfg S3Config, l *log.Entry) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is not set", ErrCantCreateStorage)
	}
	opts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("can't load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		l:      l.WithField("bucket", cfg.Bucket),
	}, nil
}

func (s *S3) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	if r == nil {
		return 0, ErrNothingToSave
	}
	if !validName(name) {
		return 0, ErrInvalidName
	}
	l := s.l.WithField("blob", name)

	body, size, err := sizedBody(r)
	if err != nil {
		l.WithError(err).Error(ErrCantWriteBlob)
		return 0, ErrCantWriteBlob
	}

	if _, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	}); err != nil {
		l.WithError(err).Error(ErrCantWriteBlob)
		return 0, ErrCantWriteBlob
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil || aws.ToInt64(head.ContentLength) != size {
		l.WithError(err).WithField("written", size).Error(ErrSizeMismatch)
		_ = s.Remove(ctx, name)
		return 0, ErrSizeMismatch
	}
	l.WithField("size", size).Debug("blob saved")
	return size, nil
}

func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	l := s.l.WithField("blob", name)

	res, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			l.WithError(err).Warn(ErrBlobNotFound)
			return nil, ErrBlobNotFound
		}
		l.WithError(err).Error(ErrCantReadBlob)
		return nil, ErrCantReadBlob
	}
	return res.Body, nil
}

func (s *S3) Remove(ctx context.Context, name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}); err != nil {
		s.l.WithField("blob", name).WithError(err).Error(ErrCantRemoveBlob)
		return ErrCantRemoveBlob
	}
	return nil
}

// sizedBody gives PutObject a seekable body with a known length.
func sizedBody(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, err
		}
		if _, err = rs.Seek(0, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return rs, size, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(b), int64(len(b)), nil
}
