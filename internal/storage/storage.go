package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"talent-match-go/internal/config"
)

// Storage 存储管理器，聚合匹配服务依赖的全部存储组件
type Storage struct {
	// 对象存储
	MinIO *MinIO

	// 消息队列
	RabbitMQ *RabbitMQ

	// 向量数据库
	Qdrant *Qdrant

	// 关系型数据库
	MySQL *MySQL

	// 键值存储
	Redis *Redis
}

// NewStorage 创建存储管理器。
// MySQL、Redis和Qdrant是匹配流程的硬依赖；MinIO和RabbitMQ初始化失败只降级告警。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{}
	var err error
	var initErrors []string

	// 根据配置决定 MinIO 的 logger
	var minioLogger *log.Logger
	if cfg.Logger.Level == "debug" {
		minioLogger = log.New(os.Stderr, "[MinIOStorage] ", log.LstdFlags|log.Lshortfile)
	} else {
		minioLogger = log.New(io.Discard, "", 0)
	}

	// 初始化MinIO（深度评估的原文回退来源，可降级）
	if cfg.MinIO.Endpoint != "" {
		storage.MinIO, err = NewMinIO(&cfg.MinIO, minioLogger)
		if err != nil {
			log.Printf("警告: 初始化MinIO失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		} else {
			log.Println("MinIO客户端初始化成功")
		}
	}

	// 初始化RabbitMQ（匹配完成事件发布，可降级）
	if cfg.RabbitMQ.URL != "" {
		log.Printf("初始化RabbitMQ...")
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			log.Printf("警告: 初始化RabbitMQ失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}

	// 初始化Qdrant
	if cfg.Qdrant.Endpoint != "" {
		log.Printf("初始化Qdrant...")
		storage.Qdrant, err = NewQdrant(&cfg.Qdrant)
		if err != nil {
			return nil, fmt.Errorf("初始化Qdrant失败: %w", err)
		}
	}

	// 初始化MySQL
	if cfg.MySQL.Host != "" {
		log.Printf("初始化MySQL...")
		storage.MySQL, err = NewMySQL(&cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("初始化MySQL失败: %w", err)
		}
	}

	// 初始化Redis
	if cfg.Redis.Address != "" {
		log.Printf("初始化Redis at %s...", cfg.Redis.Address)
		storage.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("初始化Redis失败: %w", err)
		}
	} else {
		log.Printf("Redis未配置, 跳过初始化.")
	}

	if storage.MySQL == nil && storage.Redis == nil && storage.Qdrant == nil {
		return nil, fmt.Errorf("匹配流程的核心存储组件均未配置")
	}

	if len(initErrors) > 0 {
		log.Printf("警告: 以下存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}

	return storage, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	// 关闭RabbitMQ连接
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}

	// 关闭MySQL连接
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Printf("关闭MySQL连接失败: %v", err)
		}
	}

	// 关闭Redis连接
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("关闭Redis连接失败: %v", err)
		}
	}
	// Qdrant走无状态HTTP，MinIO客户端无需显式关闭。
}
