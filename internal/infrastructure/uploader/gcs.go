package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// GCSProvider 把产物写入 Google Cloud Storage 桶，返回公开访问 URL。
// 桶需预先配置为允许 allUsers 读取，或由运维侧挂 CDN。
type GCSProvider struct {
	client *storage.Client
	bucket string
	prefix string
	log    *log.Helper
}

// NewGCSProvider 基于默认凭据创建 GCS 上传器。bucket 为空表示该通道未启用。
func NewGCSProvider(ctx context.Context, bucket, prefix string, logger log.Logger) (*GCSProvider, func(), error) {
	if bucket == "" {
		return nil, nil, errors.New("gcs uploader: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("gcs uploader: create client: %w", err)
	}
	p := &GCSProvider{
		client: client,
		bucket: bucket,
		prefix: prefix,
		log:    log.NewHelper(logger),
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			p.log.Warnf("close gcs client: %v", err)
		}
	}
	return p, cleanup, nil
}

// Name 实现 services.UploadProvider。
func (p *GCSProvider) Name() string { return "gcs" }

// Upload 以流式写入对象。对象名带随机前缀，避免跨用户覆盖。
func (p *GCSProvider) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("gcs uploader: open %s: %w", path, err)
	}
	defer f.Close()

	object := fmt.Sprintf("%s/%s", uuid.NewString(), filepath.Base(path))
	if p.prefix != "" {
		object = p.prefix + "/" + object
	}

	w := p.client.Bucket(p.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "video/mp4"
	w.ChunkSize = 8 << 20
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs uploader: write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs uploader: finalize object: %w", err)
	}

	p.log.WithContext(ctx).Infof("uploaded %s to gs://%s/%s", filepath.Base(path), p.bucket, object)
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", p.bucket, object), nil
}
