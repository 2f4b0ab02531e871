package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfvalidator/internal/verdict"
)

// Options configures the S3 client. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies.
type Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// MaxBytes rejects objects larger than this before downloading. 0 = no limit.
	MaxBytes int64
}

// S3Client downloads documents referenced as s3://bucket/key.
type S3Client struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucketName string
	maxBytes   int64
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg)
	return &S3Client{
		client:     cli,
		downloader: manager.NewDownloader(cli),
		bucketName: opts.Bucket,
		maxBytes:   opts.MaxBytes,
	}, nil
}

// ParseURL splits s3://bucket/key. A bare key uses the default bucket.
func (s *S3Client) ParseURL(ref string) (bucket, key string, err error) {
	if !strings.HasPrefix(ref, "s3://") {
		if s.bucketName == "" {
			return "", "", fmt.Errorf("no bucket for key %q", ref)
		}
		return s.bucketName, strings.TrimPrefix(ref, "/"), nil
	}
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}

// Download fetches an object into memory.
func (s *S3Client) Download(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := s.ParseURL(ref)
	if err != nil {
		return nil, err
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("failed to stat s3 object: %w", err)
	}
	size := aws.ToInt64(head.ContentLength)
	if err := s.checkSize(bucket, key, size); err != nil {
		return nil, err
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	n, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded pdf from s3")
	return buf.Bytes(), nil
}

func (s *S3Client) checkSize(bucket, key string, size int64) error {
	if s.maxBytes > 0 && size > s.maxBytes {
		return fmt.Errorf("s3 object %s/%s is %d bytes, limit %d: %w", bucket, key, size, s.maxBytes, verdict.ErrTooLarge)
	}
	return nil
}

// Ping checks that the default bucket is reachable.
func (s *S3Client) Ping(ctx context.Context) error {
	if s.bucketName == "" {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}
