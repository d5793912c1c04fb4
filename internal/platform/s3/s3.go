package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var ErrObjectNotFound = errors.New("object not found")

type Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	// PublicBaseURL overrides the virtual-hosted AWS URL returned by PublicURL.
	PublicBaseURL  string
	PartSize       int64
	Concurrency    int
	RequestTimeout time.Duration
}

type uploader interface {
	Upload(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type downloader interface {
	Download(ctx context.Context, w io.WriterAt, params *awss3.GetObjectInput, optFns ...func(*manager.Downloader)) (int64, error)
}

type objectAPI interface {
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Client stores uploaded PDFs and reads them back for ingestion.
type Client struct {
	api        objectAPI
	uploader   uploader
	downloader downloader
	cfg        Config
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config failed: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	up := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize > 0 {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})
	down := manager.NewDownloader(client, func(d *manager.Downloader) {
		if cfg.PartSize > 0 {
			d.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			d.Concurrency = cfg.Concurrency
		}
	})
	return newClient(cfg, client, up, down), nil
}

func newClient(cfg Config, api objectAPI, up uploader, down downloader) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Client{api: api, uploader: up, downloader: down, cfg: cfg}
}

func (c *Client) Bucket() string { return c.cfg.Bucket }

// Ping checks that the bucket exists and is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := c.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.cfg.Bucket)}); err != nil {
		return fmt.Errorf("head bucket %s failed: %w", c.cfg.Bucket, err)
	}
	return nil
}

func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	if key == "" {
		return errors.New("object key is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	_, err := c.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s failed: %w", key, err)
	}
	return nil
}

// GetObject downloads the whole object into memory.
func (c *Client) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, errors.New("object key is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	buf := manager.NewWriteAtBuffer(nil)
	_, err := c.downloader.Download(ctx, buf, &awss3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("download %s failed: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

func (c *Client) DeleteObject(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("object key is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if _, err := c.api.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete %s failed: %w", key, err)
	}
	return nil
}

// PublicURL returns the browser-facing URL of key.
func (c *Client) PublicURL(key string) string {
	escaped := escapeKey(key)
	if base := strings.TrimRight(c.cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.cfg.Bucket, c.cfg.Region, escaped)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
