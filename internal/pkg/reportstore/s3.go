package reportstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/obafemi/settlecore/internal/pkg/env"
)

// S3Config holds the object storage connection settings.
type S3Config struct {
	Region          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	KeyPrefix       string
}

// S3ConfigFromEnv loads S3 settings from the environment. An empty bucket
// means object storage is not configured.
func S3ConfigFromEnv() S3Config {
	return S3Config{
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Bucket:          env.GetEnv("S3_REPORT_BUCKET", ""),
		KeyPrefix:       env.GetEnv("S3_REPORT_PREFIX", "reconciliation"),
	}
}

// S3Store writes reports to an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3Store creates an object storage report store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("report bucket is not configured")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	store := &S3Store{client: client, cfg: cfg}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to reach report bucket %s: %w", cfg.Bucket, err)
	}
	log.Infof("[ReportStore] using bucket %s for reconciliation reports", cfg.Bucket)
	return store, nil
}

func (s *S3Store) Save(ctx context.Context, name string, data []byte) (string, error) {
	key := name
	if s.cfg.KeyPrefix != "" {
		key = s.cfg.KeyPrefix + "/" + name
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key), nil
}
