package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ezhang/mail-console/internal/model"
)

// listMaxKeys bounds a single bucket scan. The console hosts at most a
// few hundred images, so one scan covers everything.
const listMaxKeys = 1000

// S3Store implements Store against an S3-compatible bucket (R2, MinIO,
// or AWS itself).
type S3Store struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	publicBase string
}

// NewS3Store builds a store from static credentials and an optional
// custom endpoint.
func NewS3Store(ctx context.Context, cfg model.BlobConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Store{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		publicBase: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// List returns one page of image objects, newest first by key timestamp.
func (s *S3Store) List(ctx context.Context, page, pageSize int) (*Listing, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 12
	}

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(listMaxKeys),
	})
	if err != nil {
		return nil, fmt.Errorf("listing bucket %s: %w", s.bucket, err)
	}

	var keys []string
	for _, obj := range out.Contents {
		if obj.Key == nil || !IsImageKey(*obj.Key) {
			continue
		}
		keys = append(keys, *obj.Key)
	}

	return PageImages(keys, page, pageSize, s.publicBase), nil
}

// PageImages sorts image keys newest-first and slices out one page.
// Split from List so the paging rules are testable without a bucket.
func PageImages(keys []string, page, pageSize int, publicBase string) *Listing {
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(keys) {
		start = len(keys)
	}
	if end > len(keys) {
		end = len(keys)
	}

	images := make([]Image, 0, end-start)
	for _, key := range keys[start:end] {
		img := Image{
			Key: key,
			URL: publicBase + "/" + key,
		}
		if created, ok := keyCreatedAt(key); ok {
			img.CreatedAt = &created
		}
		images = append(images, img)
	}

	return &Listing{
		Images:  images,
		HasMore: end < len(keys),
	}
}

// Put uploads an object.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}

// Delete removes an object by key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// SignUploadURL returns a presigned PUT URL for direct browser uploads.
func (s *S3Store) SignUploadURL(
	ctx context.Context, key, contentType string, ttl time.Duration,
) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return req.URL, nil
}

// Get downloads an object into memory, typically an attachment about to
// be mailed out.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}
	return data, nil
}

// PublicURL returns the public address of an object.
func (s *S3Store) PublicURL(key string) string {
	return s.publicBase + "/" + key
}
