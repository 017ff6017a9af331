package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aihub/knowledge-rag/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MaxTextSize 单个文本对象的读取上限
const MaxTextSize = 32 << 20

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// ErrTextTooLarge 文本超过读取上限
var ErrTextTooLarge = errors.New("text object too large")

// MinIOTextStore 存放文档抽取后的纯文本
type MinIOTextStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinIOTextStore 创建 MinIO 客户端
func NewMinIOTextStore(cfg config.StorageConfig, logger *zap.Logger) (*MinIOTextStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// minio.New 不接受协议前缀
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOTextStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Bucket 目标 bucket
func (s *MinIOTextStore) Bucket() string {
	return s.bucket
}

// EnsureBucket bucket 不存在时创建
func (s *MinIOTextStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("minio bucket created", zap.String("bucket", s.bucket))
	return nil
}

// GetText 读取 UTF-8 文本
func (s *MinIOTextStore) GetText(ctx context.Context, objectKey string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return "", s.mapError(objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, MaxTextSize+1))
	if err != nil {
		return "", s.mapError(objectKey, err)
	}
	if len(data) > MaxTextSize {
		return "", fmt.Errorf("%s: %w", objectKey, ErrTextTooLarge)
	}
	return string(data), nil
}

// PutText 写入 UTF-8 文本
func (s *MinIOTextStore) PutText(ctx context.Context, objectKey, text string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader([]byte(text)), int64(len(text)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", objectKey, err)
	}
	return nil
}

// HealthCheck 检查 bucket 可访问
func (s *MinIOTextStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *MinIOTextStore) mapError(objectKey string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s: %w", objectKey, ErrObjectNotFound)
	}
	return fmt.Errorf("get %s: %w", objectKey, err)
}
