package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/properties"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

// objectAPI is the subset of the MinIO client used here.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Client stores artifacts under one bucket.
type Client struct {
	api    objectAPI
	bucket string
	now    func() time.Time
}

func NewClient(ctx context.Context, cfg properties.MinioConfig) (*Client, error) {
	endpoint := strings.TrimPrefix(cfg.MinioURL, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	isSecure, err := strconv.ParseBool(cfg.MinioSecure)
	if err != nil {
		slog.Warn("Invalid value for MinIO secure flag, defaulting to false", "value", cfg.MinioSecure)
		isSecure = false
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: isSecure,
		Region: cfg.MinioLocation,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	c := newClient(minioClient, cfg.Bucket)
	if err := c.ensureBucket(ctx, cfg.MinioLocation); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(api objectAPI, bucket string) *Client {
	return &Client{api: api, bucket: bucket, now: time.Now}
}

func (c *Client) ensureBucket(ctx context.Context, region string) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("error creating bucket %s: %w", c.bucket, err)
	}
	slog.Info("Created bucket", "bucket", c.bucket)
	return nil
}

// Upload stores a local file under key with a public-read ACL.
func (c *Client) Upload(ctx context.Context, localPath, key string) error {
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.api.FPutObject(ctx, c.bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		return fmt.Errorf("failed to upload file %s to bucket %s: %w", localPath, c.bucket, err)
	}
	slog.Debug("Uploaded file", "bucket", c.bucket, "key", key)
	return nil
}

// UploadFiles uploads several files concurrently. keys maps local paths to
// object keys.
func (c *Client) UploadFiles(ctx context.Context, keys map[string]string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for localPath, key := range keys {
		localPath, key := localPath, key
		g.Go(func() error {
			return c.Upload(ctx, localPath, key)
		})
	}
	return g.Wait()
}

func (c *Client) Download(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	if err := c.api.FGetObject(ctx, c.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download %s from bucket %s: %w", key, c.bucket, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s from bucket %s: %w", key, c.bucket, err)
	}
	return nil
}

func (c *Client) objects(ctx context.Context) ([]minio.ObjectInfo, error) {
	var out []minio.ObjectInfo
	for obj := range c.api.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", c.bucket, obj.Err)
		}
		out = append(out, obj)
	}
	return out, nil
}

// List returns the keys containing directory, with directory stripped. The
// directory key itself is left out.
func (c *Client) List(ctx context.Context, directory string) ([]string, error) {
	objects, err := c.objects(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, obj := range objects {
		if obj.Key == directory || !strings.Contains(obj.Key, directory) {
			continue
		}
		names = append(names, strings.Replace(obj.Key, directory, "", 1))
	}
	return names, nil
}

// PurgeOlderThan deletes keys under subdirectory that contain substring and
// were last modified at least maxAge ago. It returns the deleted keys.
func (c *Client) PurgeOlderThan(ctx context.Context, maxAge time.Duration, subdirectory, substring string) ([]string, error) {
	if !strings.HasSuffix(subdirectory, "/") {
		subdirectory += "/"
	}
	objects, err := c.objects(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	var deleted []string
	for _, obj := range objects {
		inSubdirectory := strings.Contains(obj.Key, subdirectory) && obj.Key != subdirectory
		old := now.Sub(obj.LastModified) >= maxAge
		if !inSubdirectory || !old || !strings.Contains(obj.Key, substring) {
			continue
		}
		if err := c.Delete(ctx, obj.Key); err != nil {
			return deleted, err
		}
		deleted = append(deleted, obj.Key)
	}
	slog.Info("Purged old objects", "bucket", c.bucket, "subdirectory", subdirectory, "deleted", len(deleted))
	return deleted, nil
}
