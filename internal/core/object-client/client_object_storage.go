package objectclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/markdave123-py/iatidocs/internal/config"
	"github.com/markdave123-py/iatidocs/internal/core"
)

var _ core.ObjectClient = (*S3Client)(nil)

// DocumentKey is the archive key for a fingerprinted payload.
func DocumentKey(fingerprint string) string {
	return "documents/" + fingerprint
}

type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	region   string
}

// NewS3Client builds the archive client. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg *cfg.Config) (*S3Client, error) {
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	slog.Info("S3 archive configured", "bucket", cfg.BucketName, "region", cfg.AwsRegion)

	return &S3Client{
		client:   client,
		uploader: manager.NewUploader(client),
		region:   cfg.AwsRegion,
	}, nil
}

// UploadFile uploads a payload to S3 and returns its object URL.
func (c *S3Client) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := c.uploader.Upload(ctxUpload, input); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, key), nil
}

// Exists reports whether key is already archived.
func (c *S3Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	ctxHead, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.HeadObject(ctxHead, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head failed: %w", err)
}
