package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/constants"
	"talent-match-go/internal/tracing"
	"talent-match-go/internal/types"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("talent-match-go/storage/redis")

// Redis操作前缀采样率配置
var redisKeySamplingRates = map[string]float64{
	"app:match:lock:":   0.5,  // 锁操作采样50%
	"app:match:result:": 0.1,  // 匹配结果缓存采样10%
	"app:match:run:":    0.25, // 运行状态采样25%
	"app:job:":          0.25, // 岗位相关采样25%
}

// 随机数生成器
var (
	rnd      *rand.Rand
	rndMutex sync.Mutex
)

func init() {
	source := rand.NewSource(time.Now().UnixNano())
	rnd = rand.New(source)
}

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	// key为空一定不采样
	if key == "" {
		return false
	}

	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}

	// 默认采样率5%
	return randFloat() < 0.05
}

// 生成0-1之间的随机数
func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	// 使用扩展的配置选项
	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	// Ping to check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetMatchResultExpireDuration 返回匹配结果缓存的过期时间
func (r *Redis) GetMatchResultExpireDuration() time.Duration {
	minutes := r.config.MatchResultExpireMinutes
	if minutes <= 0 {
		return constants.MatchResultCacheDuration
	}
	return time.Duration(minutes) * time.Minute
}

// GetJobVectorExpireDuration 返回岗位向量缓存的过期时间
func (r *Redis) GetJobVectorExpireDuration() time.Duration {
	hours := r.config.JobVectorExpireHours
	if hours <= 0 {
		return constants.JobVectorCacheDuration
	}
	return time.Duration(hours) * time.Hour
}

// SetJobVector 将岗位查询向量存入 Redis，减少重复的MySQL读取和均值计算
func (r *Redis) SetJobVector(ctx context.Context, jobID string, vector []float64) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}

	cacheKey := fmt.Sprintf(constants.KeyJobVector, jobID)

	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("序列化向量失败: %w", err)
	}

	return r.Client.Set(ctx, cacheKey, vectorJSON, r.GetJobVectorExpireDuration()).Err()
}

// GetJobVector 从 Redis 中获取岗位查询向量，缓存未命中返回 ErrNotFound
func (r *Redis) GetJobVector(ctx context.Context, jobID string) ([]float64, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis client is not initialized")
	}

	cacheKey := fmt.Sprintf(constants.KeyJobVector, jobID)

	vectorJSON, err := r.Client.Get(ctx, cacheKey).Result()
	if err != nil {
		return nil, err // 包括 redis.Nil
	}

	var vector []float64
	if err := json.Unmarshal([]byte(vectorJSON), &vector); err != nil {
		return nil, fmt.Errorf("反序列化向量失败: %w", err)
	}
	return vector, nil
}

// Get 获取键的值
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	// 根据key前缀决定是否创建span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
			// 设置标志位，避免与redisotel hook产生的span重复
			attribute.Bool("otel.propagate_to_child", false),
		)
	}

	val, err := r.Client.Get(ctx, key).Result()

	if span != nil {
		if err != nil {
			// 对于key不存在的情况，不应该算作错误
			if err == redis.Nil {
				span.SetStatus(codes.Ok, "key not found")
				span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			} else {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return "", err
		}

		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(val)),
		)
		span.SetStatus(codes.Ok, "")
	}

	return val, err
}

// Set 设置键的值
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
			attribute.Int("db.redis.value_length", len(value)),
			attribute.Bool("otel.propagate_to_child", false),
		)

		if expiration > 0 {
			span.SetAttributes(attribute.Int64("db.redis.expiration_ms", expiration.Milliseconds()))
		}
	}

	err := r.Client.Set(ctx, key, value, expiration).Err()

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// CacheMatchResult 将一次匹配运行的排序结果缓存到Redis。
// ZSET 保存候选人ID与最终分的排序关系，HASH 保存每个候选人的评分明细JSON。
func (r *Redis) CacheMatchResult(ctx context.Context, jobID, runID string, rankings []types.ScoreBreakdown) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if len(rankings) == 0 {
		return nil // 不缓存空结果
	}

	ctx, span := redisTracer.Start(ctx, "Redis.CacheMatchResult", trace.WithAttributes(
		semconv.DBSystemRedis,
		attribute.String("match.job_id", jobID),
		attribute.String("match.run_id", runID),
		attribute.Int("match.result_count", len(rankings)),
	))
	defer span.End()

	zsetKey := fmt.Sprintf(constants.KeyMatchResult, jobID, runID)
	detailKey := fmt.Sprintf(constants.KeyMatchResultDetail, jobID, runID)
	ttl := r.GetMatchResultExpireDuration()

	pipe := r.Client.Pipeline()
	pipe.Del(ctx, zsetKey, detailKey)

	// 分数相同的候选人用倒序排名做次级分数，保持原始排序稳定：
	// score = finalScore×1e6 + (len-rank)，ZREVRANGE 取出即为原始顺序
	members := make([]redis.Z, len(rankings))
	details := make(map[string]interface{}, len(rankings))
	for i, b := range rankings {
		members[i] = redis.Z{
			Score:  float64(b.FinalScore)*1e6 + float64(len(rankings)-i),
			Member: b.CandidateID,
		}
		detailJSON, err := json.Marshal(b)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("序列化评分明细失败: %w", err)
		}
		details[b.CandidateID] = detailJSON
	}

	pipe.ZAdd(ctx, zsetKey, members...)
	pipe.HSet(ctx, detailKey, details)
	pipe.Expire(ctx, zsetKey, ttl)
	pipe.Expire(ctx, detailKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetCachedMatchRankings 从缓存中分页读取匹配结果，返回评分明细和总条数。
// 缓存不存在时返回空切片而不是错误。
func (r *Redis) GetCachedMatchRankings(ctx context.Context, jobID, runID string, cursor, limit int64) ([]types.ScoreBreakdown, int64, error) {
	if r.Client == nil {
		return nil, 0, fmt.Errorf("redis client is not initialized")
	}

	ctx, span := redisTracer.Start(ctx, "Redis.GetCachedMatchRankings", trace.WithAttributes(
		semconv.DBSystemRedis,
		attribute.String("match.job_id", jobID),
		attribute.String("match.run_id", runID),
		attribute.Int64("redis.cursor", cursor),
		attribute.Int64("redis.limit", limit),
	))
	defer span.End()

	zsetKey := fmt.Sprintf(constants.KeyMatchResult, jobID, runID)
	detailKey := fmt.Sprintf(constants.KeyMatchResultDetail, jobID, runID)

	pipe := r.Client.Pipeline()
	countCmd := pipe.ZCard(ctx, zsetKey)
	rangeCmd := pipe.ZRevRange(ctx, zsetKey, cursor, cursor+limit-1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		span.RecordError(err)
		return nil, 0, err
	}

	candidateIDs, err := rangeCmd.Result()
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("读取匹配结果排序失败: %w", err)
	}
	totalCount, err := countCmd.Result()
	if err != nil {
		return nil, 0, err
	}
	if len(candidateIDs) == 0 {
		return nil, totalCount, nil
	}

	detailJSONs, err := r.Client.HMGet(ctx, detailKey, candidateIDs...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("读取匹配结果明细失败: %w", err)
	}

	rankings := make([]types.ScoreBreakdown, 0, len(candidateIDs))
	for _, raw := range detailJSONs {
		str, ok := raw.(string)
		if !ok || str == "" {
			continue
		}
		var b types.ScoreBreakdown
		if err := json.Unmarshal([]byte(str), &b); err != nil {
			continue
		}
		rankings = append(rankings, b)
	}
	span.SetAttributes(attribute.Int("match.page_size", len(rankings)))
	span.SetStatus(codes.Ok, "")
	return rankings, totalCount, nil
}

// SetRunStatus 记录匹配运行的当前状态
func (r *Redis) SetRunStatus(ctx context.Context, runID string, status string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyMatchRunStatus, runID)
	return r.Client.Set(ctx, key, status, r.GetMatchResultExpireDuration()).Err()
}

// GetRunStatus 查询匹配运行的当前状态，不存在时返回 ErrNotFound
func (r *Redis) GetRunStatus(ctx context.Context, runID string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyMatchRunStatus, runID)
	return r.Client.Get(ctx, key).Result()
}

// AcquireLock 尝试获取一个分布式锁
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	// 生成一个随机值作为锁的持有者标识
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())
	// 尝试设置一个带过期时间的key，NX保证了原子性
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	// 未能获取锁
	return "", nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	// Lua脚本: 如果key存在且值匹配，则删除key
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}

	if released, ok := res.(int64); ok && released == 1 {
		return true, nil // 成功释放
	}

	return false, nil // 锁不存在或不属于当前持有者
}
