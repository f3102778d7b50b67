package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectFiles serves files from an S3-compatible bucket. Handles are
// object keys.
type ObjectFiles struct {
	client *minio.Client
	bucket string
}

// ObjectConfig holds connection settings for ObjectFiles.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewObjectFiles connects to the bucket and checks that it exists.
func NewObjectFiles(ctx context.Context, cfg ObjectConfig) (*ObjectFiles, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &ObjectFiles{client: client, bucket: cfg.Bucket}, nil
}

func objectKey(fileHandle string) (string, error) {
	key := strings.TrimPrefix(fileHandle, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, fileHandle)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return "", fmt.Errorf("%w: %q", ErrInvalidHandle, fileHandle)
		}
	}
	return key, nil
}

func mapObjectError(fileHandle string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return fmt.Errorf("%w: %q", ErrNotFound, fileHandle)
	}
	return fmt.Errorf("reading object %q: %w", fileHandle, err)
}

// Stat describes the object at fileHandle.
func (o *ObjectFiles) Stat(ctx context.Context, fileHandle string) (Handle, error) {
	key, err := objectKey(fileHandle)
	if err != nil {
		return Handle{}, err
	}

	info, err := o.client.StatObject(ctx, o.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return Handle{}, mapObjectError(fileHandle, err)
	}

	name := path.Base(key)
	typ := contentType(name)
	if typ == "" {
		typ = info.ContentType
	}
	return Handle{
		Name:         name,
		Size:         info.Size,
		Type:         typ,
		LastModified: info.LastModified,
		FileHandle:   key,
		DirHandle:    path.Dir(key),
	}, nil
}

// Open streams the object at fileHandle.
func (o *ObjectFiles) Open(ctx context.Context, fileHandle string) (io.ReadCloser, error) {
	key, err := objectKey(fileHandle)
	if err != nil {
		return nil, err
	}

	obj, err := o.client.GetObject(ctx, o.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapObjectError(fileHandle, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, mapObjectError(fileHandle, err)
	}
	return obj, nil
}
