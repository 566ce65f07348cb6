package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ecsol/cars-numberplate-inference/internal/config"
)

// S3API is the subset of the S3 client the store needs.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps objects in a bucket under a key prefix. The relative path
// /upfile/1041/8430/x.jpg maps to {prefix}/upfile/1041/8430/x.jpg.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store builds a store from the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for a relative path.
func (s *S3Store) Key(p string) string {
	return path.Join(s.prefix, strings.TrimPrefix(p, "/"))
}

// Read downloads the object at p.
func (s *S3Store) Read(ctx context.Context, p string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("blob: get s3://%s/%s: %w", s.bucket, s.Key(p), ErrNotFound)
		}
		return nil, fmt.Errorf("blob: get s3://%s/%s: %w", s.bucket, s.Key(p), err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blob: read body s3://%s/%s: %w", s.bucket, s.Key(p), err)
	}
	return data, nil
}

// Write uploads data to p, replacing any existing object.
func (s *S3Store) Write(ctx context.Context, p string, data []byte) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.Key(p)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("blob: put s3://%s/%s: %w", s.bucket, s.Key(p), err)
	}
	return nil
}

// Exists reports whether an object is present at p.
func (s *S3Store) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.Size(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Size returns the object's content length.
func (s *S3Store) Size(ctx context.Context, p string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("blob: head s3://%s/%s: %w", s.bucket, s.Key(p), ErrNotFound)
		}
		return 0, fmt.Errorf("blob: head s3://%s/%s: %w", s.bucket, s.Key(p), err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
