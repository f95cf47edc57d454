// Package s3 implements objectstore.Client against Amazon S3 or an
// S3-compatible store, using conditional PutObject (If-Match /
// If-None-Match) as the compare-and-swap primitive described in
// SPEC_FULL.md §1. It does not implement objectstore.Notifier; S3 has no
// push notifications (see redisnotify).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nfscluster/gracekeeper/internal/logger"
	"github.com/nfscluster/gracekeeper/pkg/objectstore"
)

// Client wraps an *s3.Client and implements objectstore.Client against one
// bucket and key prefix.
type Client struct {
	api       *s3.Client
	bucket    string
	keyPrefix string
}

// Config configures a Client.
type Config struct {
	// API is the configured AWS SDK v2 S3 client. Required.
	API *s3.Client

	// Bucket is the S3 bucket holding the grace object(s). Required.
	Bucket string

	// KeyPrefix is prepended to every object name, e.g. "gracekeeper/".
	KeyPrefix string
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	return &Client{api: cfg.API, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix}
}

// DialConfig configures NewFromConfig's AWS SDK session construction.
type DialConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	KeyPrefix string
}

// NewFromConfig builds the AWS SDK config and S3 client from scratch and
// returns a Client, for callers (cmd/gracectl, host binaries) that don't
// already hold a configured *s3.Client. Endpoint, when set, also forces
// path-style addressing, which S3-compatible stores (MinIO, localstack)
// require.
func NewFromConfig(ctx context.Context, cfg DialConfig) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	api := s3.NewFromConfig(awsCfg, s3Opts...)
	return New(Config{API: api, Bucket: cfg.Bucket, KeyPrefix: cfg.KeyPrefix}), nil
}

func (c *Client) key(name string) string {
	return c.keyPrefix + name
}

// ReadRange implements objectstore.Client.
func (c *Client) ReadRange(ctx context.Context, name string, offset, length int64) ([]byte, string, error) {
	rangeStr := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(name)),
		Range:  aws.String(rangeStr),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, "", objectstore.ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("s3 ranged get %s: %w", name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("s3 ranged get %s: read body: %w", name, err)
	}

	return data, etagVersion(out.ETag), nil
}

// ReadFull implements objectstore.Client.
func (c *Client) ReadFull(ctx context.Context, name string) ([]byte, string, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(name)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, "", objectstore.ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("s3 get %s: %w", name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("s3 get %s: read body: %w", name, err)
	}

	return data, etagVersion(out.ETag), nil
}

// Write implements objectstore.Client using conditional PutObject:
// PreconditionMustNotExist maps to If-None-Match: "*"; PreconditionMustExist
// maps to If-Match: <etag>. Both rely on the backing store honoring S3's
// conditional-write semantics (native S3 since late 2024; most
// S3-compatible stores via the same headers).
func (c *Client) Write(ctx context.Context, name string, data []byte, pre objectstore.Precondition) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(name)),
		Body:   bytes.NewReader(data),
	}

	switch pre.Mode {
	case objectstore.PreconditionMustNotExist:
		input.IfNoneMatch = aws.String("*")
	case objectstore.PreconditionMustExist:
		input.IfMatch = aws.String(pre.Version)
	}

	out, err := c.api.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return "", objectstore.ErrPreconditionFailed
		}
		if pre.Mode == objectstore.PreconditionMustExist && isNotFoundError(err) {
			return "", objectstore.ErrObjectNotFound
		}
		return "", fmt.Errorf("s3 put %s: %w", name, err)
	}

	return etagVersion(out.ETag), nil
}

// Remove implements objectstore.Client.
func (c *Client) Remove(ctx context.Context, name string, pre objectstore.Precondition) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(name)),
	}

	if pre.Mode == objectstore.PreconditionMustExist {
		head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key(name)),
		})
		if err != nil {
			if isNotFoundError(err) {
				return objectstore.ErrObjectNotFound
			}
			return fmt.Errorf("s3 head %s: %w", name, err)
		}
		if etagVersion(head.ETag) != pre.Version {
			return objectstore.ErrPreconditionFailed
		}
	}

	if _, err := c.api.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("s3 delete %s: %w", name, err)
	}

	logger.Debug("removed object", logger.KeyBucket, c.bucket, logger.KeyKey, c.key(name))
	return nil
}

func etagVersion(etag *string) string {
	if etag == nil {
		return ""
	}
	return strings.Trim(*etag, `"`)
}

func isNotFoundError(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "412":
			return true
		}
	}

	return false
}
