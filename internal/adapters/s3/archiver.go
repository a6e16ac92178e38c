package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Config holds the S3 settings for transcript archives.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// ObjectAPI is the part of the S3 client the archiver uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Archiver uploads JSON documents to one bucket.
type Archiver struct {
	client ObjectAPI
	bucket string
}

// NewArchiver builds an S3 client with static credentials.
func NewArchiver(cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket cannot be empty")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("S3 credentials not available - set S3_ACCESS_KEY and S3_SECRET_KEY")
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && strings.Contains(endpoint, cfg.Bucket+".") {
		endpoint = strings.Replace(endpoint, cfg.Bucket+".", "", 1)
		log.Warn().
			Str("originalEndpoint", cfg.Endpoint).
			Str("cleanedEndpoint", endpoint).
			Str("bucket", cfg.Bucket).
			Msg("Cleaned bucket name from S3 endpoint - endpoint should not contain bucket name")
	}

	usePathStyle := cfg.PathStyle
	if strings.Contains(cfg.Bucket, ".") {
		usePathStyle = true
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", endpoint).
		Bool("pathStyle", usePathStyle).
		Msg("S3 transcript archive initialized")
	return NewArchiverWithClient(client, cfg.Bucket), nil
}

// NewArchiverWithClient wraps an existing client.
func NewArchiverWithClient(client ObjectAPI, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket}
}

func (a *Archiver) Bucket() string {
	return a.bucket
}

// TranscriptKey returns the object key of a reset archive taken at t.
func TranscriptKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("transcripts/%s/%s/%s/reset-%d.json", t.Format("2006"), t.Format("01"), t.Format("02"), t.Unix())
}

// PutJSON uploads data under key.
func (a *Archiver) PutJSON(ctx context.Context, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		log.Error().Str("key", key).Str("bucket", a.bucket).Int("size", len(data)).Err(err).Msg("Failed to upload transcript to S3")
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("key", key).Str("bucket", a.bucket).Int("size", len(data)).Msg("Transcript successfully uploaded to S3")
	return nil
}

// TestConnection lists at most one object to check access to the bucket.
func (a *Archiver) TestConnection(ctx context.Context) error {
	_, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		MaxKeys: aws.Int32(1),
	})
	return err
}
