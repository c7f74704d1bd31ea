package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive keeps finished exports and hands out download links.
type Archive interface {
	Store(ctx context.Context, key string, res *Result) (string, error)
}

// MinIOArchive stores exports in an S3 compatible bucket and returns
// presigned GET URLs.
type MinIOArchive struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// URLValidity bounds presigned links. Defaults to 15 minutes.
	URLValidity time.Duration
}

// NewMinIOArchive connects and creates the bucket when it is missing.
func NewMinIOArchive(ctx context.Context, opts MinIOOptions) (*MinIOArchive, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}
	expiry := opts.URLValidity
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &MinIOArchive{client: client, bucket: opts.Bucket, expiry: expiry}, nil
}

func (a *MinIOArchive) Store(ctx context.Context, key string, res *Result) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(res.Data), int64(len(res.Data)), minio.PutObjectOptions{
		ContentType:        res.MimeType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", res.Filename),
	})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.expiry, params)
	if err != nil {
		return "", fmt.Errorf("minio presign %s: %w", key, err)
	}
	return u.String(), nil
}
