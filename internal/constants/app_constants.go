package constants

import "time"

const (
	// DefaultScoringVersion 当前评分算法版本，落库时随结果一起记录
	DefaultScoringVersion = "1.0"

	// JobVectorCacheDuration 岗位向量缓存的默认过期时间
	JobVectorCacheDuration = 24 * time.Hour
	// MatchResultCacheDuration 匹配结果缓存的默认过期时间
	MatchResultCacheDuration = 30 * time.Minute
)
