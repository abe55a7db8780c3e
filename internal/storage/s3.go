package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// objectClient is the part of *s3.Client the archive uses.
type objectClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// SummaryArchive keeps calculated product summaries as JSON objects, one
// per ticket and job.
type SummaryArchive struct {
	client objectClient
	bucket string
}

// NewSummaryArchive archives into bucket. An empty bucket falls back to
// AWS_BUCKET.
func NewSummaryArchive(client objectClient, bucket string) *SummaryArchive {
	if bucket == "" {
		bucket = util.GetEnv("AWS_BUCKET")
	}
	return &SummaryArchive{client: client, bucket: bucket}
}

// SummaryKey is the object key of a job's summary.
func SummaryKey(ticket, jobID string) string {
	return path.Join("summaries", ticket, jobID+".json")
}

// PutSummary stores summary under SummaryKey and returns the key.
func (a *SummaryArchive) PutSummary(ctx context.Context, ticket, jobID string, summary *graph.ProductSummary) (string, error) {
	body, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	key := SummaryKey(ticket, jobID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload summary to S3: %w", err)
	}
	return key, nil
}

// GetSummary loads an archived summary.
func (a *SummaryArchive) GetSummary(ctx context.Context, key string) (*graph.ProductSummary, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get summary from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	summary := graph.NewProductSummary()
	if err := json.Unmarshal(buf.Bytes(), summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary %s: %w", key, err)
	}
	return summary, nil
}

// DeleteSummary removes an archived summary.
func (a *SummaryArchive) DeleteSummary(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete summary from S3: %w", err)
	}
	return nil
}
