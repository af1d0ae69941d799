// Package archive keeps a copy of the compressed donation photo as evidence
// for later NGO disputes. The S3 store is optional; Noop is used otherwise.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"foodbridge/internal/config"
)

// Store persists an image and returns the object key.
type Store interface {
	Put(ctx context.Context, sessionID string, data []byte, contentType string) (string, error)
}

type Noop struct{}

func (Noop) Put(context.Context, string, []byte, string) (string, error) { return "", nil }

// PutObjectAPI is the slice of the S3 client the store needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Store struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
	Now    func() time.Time
}

// New returns Noop unless archiving is enabled in cfg.
func New(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	return &S3Store{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
		Now:    time.Now,
	}, nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if _, sub, ok := strings.Cut(contentType, "/"); ok && sub != "" {
		return "." + sub
	}
	return ""
}

func (s *S3Store) Put(ctx context.Context, sessionID string, data []byte, contentType string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	key := path.Join(s.Prefix, fmt.Sprintf("%s-%d%s", sessionID, now().UnixNano(), extensionFor(contentType)))
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	return key, nil
}
