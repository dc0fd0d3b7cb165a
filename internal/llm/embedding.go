package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"talent-match-go/internal/config"

	"github.com/cloudwego/eino/components/embedding"
)

// AliyunEmbedder 调用阿里云DashScope的OpenAI兼容embedding接口，
// 实现 cloudwego/eino 的 embedding.Embedder 接口。
type AliyunEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	baseURL    string
	logger     *log.Logger
}

// EmbedderOption 配置AliyunEmbedder
type EmbedderOption func(*AliyunEmbedder)

// WithEmbedderHTTPClient 替换HTTP客户端，测试时注入mock
func WithEmbedderHTTPClient(client *http.Client) EmbedderOption {
	return func(e *AliyunEmbedder) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithEmbedderLogger 替换默认logger
func WithEmbedderLogger(logger *log.Logger) EmbedderOption {
	return func(e *AliyunEmbedder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewAliyunEmbedder 创建阿里云Embedder
func NewAliyunEmbedder(apiKey string, embeddingCfg config.EmbeddingConfig, opts ...EmbedderOption) (*AliyunEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := embeddingCfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}

	embedder := &AliyunEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: embeddingCfg.Dimensions,
		httpClient: &http.Client{},
		baseURL:    baseURL,
		logger:     log.New(io.Discard, "", 0),
	}

	for _, opt := range opts {
		opt(embedder)
	}

	return embedder, nil
}

// GetDimensions 返回嵌入器配置的维度
func (a *AliyunEmbedder) GetDimensions() int {
	return a.dimensions
}

type embeddingRequest struct {
	Input          interface{} `json:"input"` // string 或 []string
	Model          string      `json:"model"`
	Dimensions     int         `json:"dimensions,omitempty"`
	EncodingFormat string      `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Object string               `json:"object"`
	Data   []embeddingDataEntry `json:"data"`
	Model  string               `json:"model"`
	Usage  embeddingUsage       `json:"usage"`
	ID     string               `json:"id,omitempty"`
	Error  *embeddingAPIError   `json:"error,omitempty"`
}

type embeddingDataEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type embeddingAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

// EmbedStrings 将一批文本转换为向量，实现 embedding.Embedder 接口。
// 返回的向量顺序按响应里的Index重排，与输入文本一一对应。
func (a *AliyunEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)

	effectiveModel := a.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var inputBody interface{}
	if len(texts) == 1 {
		inputBody = texts[0]
	} else {
		inputBody = texts
	}

	reqBody := embeddingRequest{
		Input: inputBody,
		Model: effectiveModel,
	}
	if a.dimensions > 0 {
		reqBody.Dimensions = a.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化embedding请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送embedding请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取embedding响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding接口返回异常状态 %d: %s", resp.StatusCode, string(body))
	}

	var apiResp embeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("解析embedding响应失败: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("embedding接口错误: %s (code=%s)", apiResp.Error.Message, apiResp.Error.Code)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding数量不匹配: 期望%d个, 实际%d个", len(texts), len(apiResp.Data))
	}

	a.logger.Printf("embedding完成, model: %s, 文本数: %d, tokens: %d",
		apiResp.Model, len(texts), apiResp.Usage.TotalTokens)

	// 按Index重排，保证与输入顺序一致
	result := make([][]float64, len(texts))
	for _, entry := range apiResp.Data {
		if entry.Index < 0 || entry.Index >= len(texts) {
			return nil, fmt.Errorf("embedding响应索引越界: %d", entry.Index)
		}
		result[entry.Index] = entry.Embedding
	}
	for i, vec := range result {
		if len(vec) == 0 {
			return nil, fmt.Errorf("第%d个文本的embedding为空", i)
		}
	}

	return result, nil
}

// EmbedQuery 将单个查询文本转换为向量，空文本直接返回nil
func (a *AliyunEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vectors, err := a.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}

var _ embedding.Embedder = (*AliyunEmbedder)(nil)
