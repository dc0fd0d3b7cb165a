package ratelimit

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RateLimitedLLMModel 给LLM调用套上令牌桶限流和重试的代理
type RateLimitedLLMModel struct {
	original    model.ToolCallingChatModel
	rateLimiter *TokenBucket
}

// NewRateLimitedLLMModel 创建限流LLM代理，桶容量取QPM的一半
func NewRateLimitedLLMModel(original model.ToolCallingChatModel, qpm int) *RateLimitedLLMModel {
	if qpm <= 0 {
		qpm = 30
	}
	return &RateLimitedLLMModel{
		original:    original,
		rateLimiter: NewTokenBucket(qpm, qpm/2),
	}
}

// WithRetryPolicy 设置重试策略
func (rl *RateLimitedLLMModel) WithRetryPolicy(waitTime time.Duration, maxRetries int) *RateLimitedLLMModel {
	rl.rateLimiter.WithRetryPolicy(waitTime, maxRetries)
	return rl
}

// Generate 代理Generate，调用前取令牌，可重试错误按退避重试
func (rl *RateLimitedLLMModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	var response *schema.Message

	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var genErr error
		response, genErr = rl.original.Generate(ctx, messages, options...)
		return genErr
	})

	return response, err
}

// Stream 代理Stream，同样受限流约束
func (rl *RateLimitedLLMModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var stream *schema.StreamReader[*schema.Message]

	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var streamErr error
		stream, streamErr = rl.original.Stream(ctx, messages, options...)
		return streamErr
	})

	return stream, err
}

// WithTools 代理WithTools，新代理共享同一个限流桶
func (rl *RateLimitedLLMModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	newModel, err := rl.original.WithTools(tools)
	if err != nil {
		return nil, err
	}

	return &RateLimitedLLMModel{
		original:    newModel,
		rateLimiter: rl.rateLimiter,
	}, nil
}

var _ model.ToolCallingChatModel = (*RateLimitedLLMModel)(nil)
