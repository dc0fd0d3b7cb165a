package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"talent-match-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage 对象存储接口。
// 匹配服务只读候选人简历的解析文本：深度评估在结构化摘要缺失时回退读取原文。
// 解析文本由上游抽取流水线写入，本服务不承担上传职责。
type ObjectStorage interface {
	// GetParsedText 获取候选人简历的解析文本
	GetParsedText(ctx context.Context, objectKey string) (string, error)
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client       *minio.Client
	cfg          *config.MinIOConfig
	parsedBucket string
	logger       *log.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("[MinIO] Initializing MinIO client with endpoint: %s, parsedBucket: %s", cfg.Endpoint, cfg.ParsedTextBucket)

	// 创建MinIO客户端
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.Printf("[MinIO] Initialization failed: %v", err)
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	parsedBucket := cfg.ParsedTextBucket
	if parsedBucket == "" {
		parsedBucket = "parsed-text" // 默认值
	}

	m := &MinIO{
		client:       client,
		cfg:          cfg,
		parsedBucket: parsedBucket,
		logger:       logger,
	}

	// 确保存储桶存在
	if err := m.ensureBucketExists(parsedBucket, cfg.Location); err != nil {
		logger.Printf("[MinIO] Failed to ensure parsed bucket %s exists: %v", parsedBucket, err)
		return nil, fmt.Errorf("确保解析文本存储桶 %s 存在失败: %w", parsedBucket, err)
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		m.logger.Printf("[MinIO] Bucket %s does not exist, attempting to create...", bucketName)
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created successfully.", bucketName)
	}
	return nil
}

// GetParsedText 从MinIO获取候选人简历的解析文本。
// objectKey 可以带存储桶前缀（bucket/key），不带时默认解析文本桶。
func (m *MinIO) GetParsedText(ctx context.Context, objectKey string) (string, error) {
	bucketName := m.parsedBucket
	actualKey := objectKey

	if strings.Contains(objectKey, "/") {
		parts := strings.SplitN(objectKey, "/", 2)
		if len(parts) == 2 && parts[0] == m.parsedBucket {
			bucketName = parts[0]
			actualKey = parts[1]
		}
	}

	obj, err := m.client.GetObject(ctx, bucketName, actualKey, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("获取对象 %s/%s 失败: %w", bucketName, actualKey, err)
	}
	defer obj.Close()

	// Stat用于区分对象不存在和读取失败
	stat, err := obj.Stat()
	if err != nil {
		return "", fmt.Errorf("获取对象 %s/%s 状态失败: %w", bucketName, actualKey, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("读取对象 %s/%s 数据失败: %w", bucketName, actualKey, err)
	}

	m.logger.Printf("[MinIO] Downloaded parsed text %s/%s, Size=%d, ContentType=%s", bucketName, actualKey, stat.Size, stat.ContentType)
	return string(data), nil
}
