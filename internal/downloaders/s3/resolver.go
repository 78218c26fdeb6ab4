package s3

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/mirrorget/internal/utils"
)

const DefaultExpiry = 6 * time.Hour

type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Resolver turns s3:// task URLs into presigned HTTPS URLs the fetchers can download.
type Resolver struct {
	presigner Presigner
	expiry    time.Duration
}

func NewResolver(presigner Presigner, expiry time.Duration) *Resolver {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Resolver{presigner: presigner, expiry: expiry}
}

// NewResolverFromProfile loads AWS credentials the usual way; an empty profile means the default chain.
func NewResolverFromProfile(ctx context.Context, profile string) (*Resolver, error) {
	opts := []func(*config.LoadOptions) error{config.WithRetryMode(aws.RetryModeAdaptive)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return NewResolver(s3.NewPresignClient(s3.NewFromConfig(cfg)), DefaultExpiry), nil
}

func IsS3URL(u string) bool {
	return strings.HasPrefix(u, "s3://")
}

// NeedsResolver reports whether any task points at S3.
func NeedsResolver(tasks []utils.DownloadTask) bool {
	for _, task := range tasks {
		if IsS3URL(task.URL) {
			return true
		}
	}
	return false
}

// Resolve returns task unchanged unless it points at S3. The resolved task keeps its ID.
func (r *Resolver) Resolve(ctx context.Context, task utils.DownloadTask) (utils.DownloadTask, error) {
	if !IsS3URL(task.URL) {
		return task, nil
	}
	bucket, key, err := parseS3URL(task.URL)
	if err != nil {
		return task, err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return task, fmt.Errorf("s3://%s/%s is a prefix, not an object", bucket, key)
	}
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.expiry))
	if err != nil {
		return task, fmt.Errorf("error presigning s3://%s/%s: %w", bucket, key, err)
	}
	if task.FileName == "" {
		task.FileName = path.Base(key)
	}
	task.URL = req.URL
	log.Debug().Str("op", "s3/resolver").Str("task", task.ID).Msgf("presigned s3://%s/%s", bucket, key)
	return task, nil
}

func (r *Resolver) ResolveAll(ctx context.Context, tasks []utils.DownloadTask) ([]utils.DownloadTask, error) {
	resolved := make([]utils.DownloadTask, 0, len(tasks))
	for _, task := range tasks {
		t, err := r.Resolve(ctx, task)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, t)
	}
	return resolved, nil
}

func parseS3URL(url string) (string, string, error) {
	url = strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(url, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format")
	}
	bucket := parts[0]
	key := ""
	if len(parts) > 1 {
		key = parts[1]
	}
	return bucket, key, nil
}
