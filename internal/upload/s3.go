package upload

import (
	"context"
	"errors"
	"fmt"

	"s3-storage/internal/progress"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// DefaultACL grants the bucket owner full control of uploaded objects.
const DefaultACL = string(types.ObjectCannedACLBucketOwnerFullControl)

// S3Config holds the bucket and credentials for S3 uploads.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	ACL       string
	// PartSizeMB and Concurrency tune multipart uploads; zero keeps the
	// SDK defaults.
	PartSizeMB  int64
	Concurrency int
}

// S3Uploader uploads files to an S3 bucket through the SDK's transfer
// manager.
type S3Uploader struct {
	cfg      S3Config
	client   *s3.Client
	uploader *manager.Uploader
	sugar    *zap.SugaredLogger
}

// NewS3Uploader builds a client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain.
func NewS3Uploader(ctx context.Context, cfg S3Config, sugar *zap.SugaredLogger) (*S3Uploader, error) {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	if cfg.ACL == "" {
		cfg.ACL = DefaultACL
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		sugar.Debugf("Using static AWS credentials")
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSizeMB > 0 {
			u.PartSize = cfg.PartSizeMB * 1024 * 1024
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})

	return &S3Uploader{cfg: cfg, client: client, uploader: uploader, sugar: sugar}, nil
}

// Client returns the underlying S3 client.
func (u *S3Uploader) Client() *s3.Client {
	return u.client
}

// Preflight checks that the bucket exists and is reachable.
func (u *S3Uploader) Preflight(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.cfg.Bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, u.cfg.Bucket)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket") {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, u.cfg.Bucket)
	}
	return fmt.Errorf("failed to check bucket %s: %w", u.cfg.Bucket, err)
}

// Upload sends one file as s3://bucket/key.
func (u *S3Uploader) Upload(ctx context.Context, job Job, reporter progress.Reporter) (int64, error) {
	f, size, err := openSource(job)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(job.Source); err == nil {
		contentType = mtype.String()
	}

	u.sugar.Debugf("Uploading %s to s3://%s/%s (%s)", job.Source, u.cfg.Bucket, job.Key, contentType)
	reporter.Start(job.Key, size)
	body := progress.NewReader(f, reporter)

	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(job.Key),
		Body:        body,
		ACL:         types.ObjectCannedACL(u.cfg.ACL),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return body.Transferred(), fmt.Errorf("failed to upload s3://%s/%s: %w", u.cfg.Bucket, job.Key, err)
	}

	reporter.Done(body.Transferred())
	return body.Transferred(), nil
}

func (u *S3Uploader) Close() error {
	return nil
}
