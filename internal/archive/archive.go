// Package archive keeps a copy of every uploaded payment document.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"bank-transfer-reconciler/pkg/logger"
)

// DefaultPrefix is the key prefix of archived documents
const DefaultPrefix = "evidence"

// Archive stores a document under its batch and returns the object key
type Archive interface {
	Store(ctx context.Context, batchID, filename, contentType string, data []byte) (string, error)
}

// Config holds S3 settings. An empty bucket disables archiving.
type Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
}

// Enabled reports whether a bucket is configured
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes documents to an S3-compatible bucket
type S3Archive struct {
	client objectPutter
	bucket string
	prefix string
	logger logger.Logger
}

// NewS3Archive creates an archive client. A custom endpoint switches to
// path-style addressing for S3-compatible stores.
func NewS3Archive(ctx context.Context, cfg Config, log logger.Logger) (*S3Archive, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive bucket is not configured")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archive(client, cfg, log), nil
}

func newS3Archive(client objectPutter, cfg Config, log logger.Logger) *S3Archive {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &S3Archive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.OrGlobal(log).WithComponent("archive"),
	}
}

// Store uploads the document to {prefix}/{batchID}/{filename}
func (a *S3Archive) Store(ctx context.Context, batchID, filename, contentType string, data []byte) (string, error) {
	key := ObjectKey(a.prefix, batchID, filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"batch-id":      batchID,
			"upload-source": "bank-transfer-reconciler",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	a.logger.WithFields(logger.Fields{"bucket": a.bucket, "key": key, "size": len(data)}).Debug("Document archived")
	return key, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds the archive key, reducing the filename to safe characters
func ObjectKey(prefix, batchID, filename string) string {
	name := unsafeKeyChars.ReplaceAllString(path.Base(strings.ReplaceAll(filename, "\\", "/")), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "document"
	}
	return path.Join(prefix, batchID, name)
}

// Noop discards documents
type Noop struct{}

// Store does nothing
func (Noop) Store(context.Context, string, string, string, []byte) (string, error) {
	return "", nil
}
