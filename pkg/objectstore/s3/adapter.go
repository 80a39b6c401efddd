// Package s3 implements the object-store gateway over Amazon S3 and
// S3-compatible services such as MinIO.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/objectstore"
)

// Config contains S3 adapter configuration.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// MaxRetries bounds the backoff on transient errors.
	MaxRetries            int
	RequestTimeoutSeconds int
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 4
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 60
	}
}

// Adapter implements objectstore.Gateway over the AWS SDK.
type Adapter struct {
	client *s3.Client
	cfg    *Config
	logger hclog.Logger
}

var _ objectstore.Gateway = (*Adapter)(nil)

// NewAdapter creates an S3 gateway.
func NewAdapter(cfg *Config, logger hclog.Logger) (*Adapter, error) {
	cfg.SetDefaults()
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	awsCfg, err := createAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoint for MinIO or other S3-compatible services.
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Force path-style addressing for MinIO.
			o.UsePathStyle = true
		}
	})

	return &Adapter{
		client: client,
		cfg:    cfg,
		logger: logger.Named("s3"),
	}, nil
}

func createAWSConfig(cfg *Config) (aws.Config, error) {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	return awsconfig.LoadDefaultConfig(context.Background(), opts...)
}

// VerifyBucket checks the bucket exists and is accessible.
func (a *Adapter) VerifyBucket(ctx context.Context, bucket string) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q not accessible: %w", bucket, err)
	}
	return nil
}

// Get downloads an object. Missing objects map to kind.ErrNotFound.
func (a *Adapter) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var body []byte
	err := a.retry(ctx, func() error {
		result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return classify(err)
		}
		defer result.Body.Close()

		body, err = io.ReadAll(result.Body)
		if err != nil {
			return fmt.Errorf("failed to read object body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// Put uploads an object.
func (a *Adapter) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	err := a.retry(ctx, func() error {
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		})
		return classify(err)
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	a.logger.Debug("object written", "bucket", bucket, "key", key, "bytes", len(body))
	return nil
}

// Head returns object metadata, or kind.ErrNotFound.
func (a *Adapter) Head(ctx context.Context, bucket, key string) (*objectstore.ObjectInfo, error) {
	var info *objectstore.ObjectInfo
	err := a.retry(ctx, func() error {
		result, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return classify(err)
		}
		info = &objectstore.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(result.ContentLength),
			ETag:         aws.ToString(result.ETag),
			ContentType:  aws.ToString(result.ContentType),
			LastModified: aws.ToTime(result.LastModified),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Exists reports whether the object exists.
func (a *Adapter) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := a.Head(ctx, bucket, key)
	if errors.Is(err, kind.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns all keys under prefix, paginating internally.
func (a *Adapter) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", classify(err))
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// Copy duplicates an object and verifies the destination head against the
// source on content length and ETag.
func (a *Adapter) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	err := a.retry(ctx, func() error {
		_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(dstBucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(fmt.Sprintf("%s/%s", srcBucket, srcKey)),
		})
		return classify(err)
	})
	if err != nil {
		return fmt.Errorf("copy s3://%s/%s -> s3://%s/%s: %w",
			srcBucket, srcKey, dstBucket, dstKey, err)
	}

	src, err := a.Head(ctx, srcBucket, srcKey)
	if err != nil {
		return fmt.Errorf("head source after copy: %w", err)
	}
	dst, err := a.Head(ctx, dstBucket, dstKey)
	if err != nil {
		return fmt.Errorf("head destination after copy: %w", err)
	}
	if src.Size != dst.Size || src.ETag != dst.ETag {
		return fmt.Errorf("%w: src size=%d etag=%s, dst size=%d etag=%s",
			kind.ErrCopyVerification, src.Size, src.ETag, dst.Size, dst.ETag)
	}
	return nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (a *Adapter) Delete(ctx context.Context, bucket, key string) error {
	err := a.retry(ctx, func() error {
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return classify(err)
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Tag replaces the object's tag set.
func (a *Adapter) Tag(ctx context.Context, bucket, key string, tags map[string]string) error {
	var s3Tags []types.Tag
	for k, v := range tags {
		s3Tags = append(s3Tags, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(v),
		})
	}

	err := a.retry(ctx, func() error {
		_, err := a.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
			Bucket:  aws.String(bucket),
			Key:     aws.String(key),
			Tagging: &types.Tagging{TagSet: s3Tags},
		})
		return classify(err)
	})
	if err != nil {
		return fmt.Errorf("tag s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// GetTags returns the object's tag set.
func (a *Adapter) GetTags(ctx context.Context, bucket, key string) (map[string]string, error) {
	tags := make(map[string]string)
	err := a.retry(ctx, func() error {
		result, err := a.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return classify(err)
		}
		for _, tag := range result.TagSet {
			tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get tags s3://%s/%s: %w", bucket, key, err)
	}
	return tags, nil
}

// retry runs op with exponential backoff. Permanent errors (not found, bad
// input) abort immediately.
func (a *Adapter) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(a.cfg.MaxRetries)),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, kind.ErrNotFound) {
			return backoff.Permanent(err)
		}
		a.logger.Debug("retrying transient s3 error", "error", err)
		return err
	}, b)
}

// classify maps SDK errors onto the shared error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", kind.ErrNotFound, err)
	}
	return err
}
