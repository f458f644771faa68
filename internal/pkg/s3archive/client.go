// Package s3archive stores generated reports in an S3 compatible bucket.
package s3archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/kazka-books/kazka/internal/pkg/config"
)

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("s3 archive is not configured")

// API is the part of the S3 client the archive uses.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive uploads objects below a key prefix of one bucket.
type Archive struct {
	api    API
	bucket string
	prefix string
	region string
	custom bool
}

// UploadResult contains the result of a successful upload
type UploadResult struct {
	BucketName  string
	ObjectKey   string
	Size        int64
	ContentType string
}

// Location returns the s3:// URI of the object.
func (r *UploadResult) Location() string {
	return fmt.Sprintf("s3://%s/%s", r.BucketName, r.ObjectKey)
}

// New creates an archive for cfg and checks that the bucket is reachable.
// Outside production a missing bucket is created.
func New(ctx context.Context, cfg config.S3, appEnv string) (*Archive, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			// MinIO and B2 need path-style URLs
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	a := NewWithAPI(client, cfg)
	if err := a.ensureBucket(ctx, appEnv != "prod"); err != nil {
		return nil, err
	}
	log.Infof("[S3Archive] Using bucket %s (prefix %q)", a.bucket, a.prefix)
	return a, nil
}

// NewWithAPI creates an archive on top of an existing S3 API.
func NewWithAPI(api API, cfg config.S3) *Archive {
	prefix := strings.Trim(cfg.Prefix, "/")
	return &Archive{
		api:    api,
		bucket: cfg.Bucket,
		prefix: prefix,
		region: cfg.Region,
		custom: cfg.Endpoint != "",
	}
}

func (a *Archive) ensureBucket(ctx context.Context, create bool) error {
	_, err := a.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	if !create {
		return fmt.Errorf("bucket %s not accessible: %w", a.bucket, err)
	}

	log.Warnf("[S3Archive] Bucket %s not found, attempting to create it", a.bucket)
	in := &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}
	// us-east-1 and custom endpoints reject a location constraint
	if !a.custom && a.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(a.region),
		}
	}
	if _, err := a.api.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Key joins name to the configured prefix.
func (a *Archive) Key(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Put uploads body under the prefixed key name.
func (a *Archive) Put(ctx context.Context, name, contentType string, body []byte) (*UploadResult, error) {
	key := a.Key(name)
	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"upload-source": "kazka",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	result := &UploadResult{
		BucketName:  a.bucket,
		ObjectKey:   key,
		Size:        int64(len(body)),
		ContentType: contentType,
	}
	log.Infof("[S3Archive] Uploaded %s (%d bytes)", result.Location(), result.Size)
	return result, nil
}
