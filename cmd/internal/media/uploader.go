// Package media stores account images in an S3-compatible object store.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// PutObjectAPI is the subset of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader writes images under <kind>/<yyyy>/<mm>/<uuid><ext>.
type S3Uploader struct {
	client  PutObjectAPI
	cfg     Config
	now     func() time.Time
	newName func() string
}

// New builds an uploader backed by a real S3 client.
func New(ctx context.Context, cfg Config) (*S3Uploader, error) {
	if !cfg.Enabled() {
		return nil, errors.New("media: bucket is not configured")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient builds an uploader around an existing client.
func NewWithClient(client PutObjectAPI, cfg Config) *S3Uploader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &S3Uploader{
		client:  client,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		newName: uuid.NewString,
	}
}

// Upload stores body and returns its public URL.
func (u *S3Uploader) Upload(ctx context.Context, kind, filename, contentType string, body io.Reader, size int64) (string, error) {
	key := u.objectKey(kind, filename)

	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:       aws.String(u.cfg.Bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", oops.
			In("media").
			Code("upload_failed").
			With("bucket", u.cfg.Bucket, "key", key).
			Wrap(err)
	}
	return u.publicURL(key), nil
}

func (u *S3Uploader) objectKey(kind, filename string) string {
	kind = sanitizeSegment(kind)
	if kind == "" {
		kind = "misc"
	}
	now := u.now()
	return fmt.Sprintf("%s/%04d/%02d/%s%s", kind, now.Year(), int(now.Month()), u.newName(), extension(filename))
}

func (u *S3Uploader) publicURL(key string) string {
	switch {
	case u.cfg.PublicBaseURL != "":
		return u.cfg.PublicBaseURL + "/" + key
	case u.cfg.Endpoint != "" && u.cfg.PathStyle:
		return u.cfg.Endpoint + "/" + u.cfg.Bucket + "/" + key
	case u.cfg.Endpoint != "":
		scheme, host, _ := strings.Cut(u.cfg.Endpoint, "://")
		return scheme + "://" + u.cfg.Bucket + "." + host + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}

// extension keeps a short alphanumeric extension from the client filename.
func extension(filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, "\\", "/")))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
