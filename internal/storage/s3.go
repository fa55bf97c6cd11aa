// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options holds connection settings for S3-compatible stores.
type S3Options struct {
	Endpoint  string // host:port, default AWS endpoint when empty
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// s3Backend stores objects under a bucket and key prefix. A single
// PutObject is atomic on S3, so no tmp-then-rename dance is needed.
type s3Backend struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3 creates a backend for an s3://bucket/prefix URI.
func NewS3(uri string, opts S3Options) (Backend, error) {
	bucket, prefix, err := splitS3(uri)
	if err != nil {
		return nil, err
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
		opts.UseSSL = true
	}

	var creds *credentials.Credentials
	if opts.AccessKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	} else {
		// Fall back to the standard AWS env/IAM chain.
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to s3 endpoint %q: %w", endpoint, err)
	}

	return &s3Backend{client: client, bucket: bucket, prefix: prefix}, nil
}

func (b *s3Backend) key(key string) string {
	key = strings.Trim(key, "/")
	if b.prefix == "" {
		return key
	}
	if key == "" {
		return b.prefix
	}
	return b.prefix + "/" + key
}

func (b *s3Backend) List(ctx context.Context, prefix string) ([]Entry, error) {
	p := b.key(prefix)
	if p != "" {
		p += "/"
	}

	var out []Entry
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    p,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, p)
		if name == "" {
			continue
		}
		if strings.HasSuffix(name, "/") {
			out = append(out, Entry{Name: strings.TrimSuffix(name, "/"), IsDir: true})
			continue
		}
		out = append(out, Entry{Name: name, Size: obj.Size})
	}
	return out, nil
}

func (b *s3Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.key(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", key, err)
	}
	// GetObject is lazy; Stat forces the first request so missing keys
	// surface here instead of on first Read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("open %q: %w", key, ErrNotExist)
		}
		return nil, fmt.Errorf("open %q: %w", key, err)
	}
	return obj, nil
}

func (b *s3Backend) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := b.client.PutObject(ctx, b.bucket, b.key(key), r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (b *s3Backend) Stat(ctx context.Context, key string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, b.key(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", key, err)
	}
	return true, nil
}

func (b *s3Backend) Delete(ctx context.Context, key string) error {
	exists, err := b.Stat(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("delete %q: %w", key, ErrNotExist)
	}
	if err := b.client.RemoveObject(ctx, b.bucket, b.key(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (b *s3Backend) Close() error { return nil }

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}
