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

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// DashScope的OpenAI兼容端点
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// --- OpenAI Compatible Structures ---

type OpenAIToolFunctionParamsProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type OpenAIToolFunctionParams struct {
	Type       string                                      `json:"type"` // Typically "object"
	Properties map[string]OpenAIToolFunctionParamsProperty `json:"properties"`
	Required   []string                                    `json:"required,omitempty"`
}

type OpenAIFunction struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Parameters  OpenAIToolFunctionParams `json:"parameters"`
}

type OpenAITool struct {
	Type     string         `json:"type"` // Must be "function"
	Function OpenAIFunction `json:"function"`
}

type OpenAIChatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	Tools       []OpenAITool      `json:"tools,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type OpenAIMessage struct {
	Role      string               `json:"role"`
	Content   *string              `json:"content"` // Content can be null if tool_calls are present
	ToolCalls []OpenAIToolCallData `json:"tool_calls,omitempty"`
}

type OpenAIToolCallData struct {
	Id       string `json:"id"`
	Type     string `json:"type"` // Should be "function"
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON string of arguments
	} `json:"function"`
}

type OpenAIChatChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAICompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIChatChoice `json:"choices"`
}

// AliyunQwenChatModel 实现 model.ToolCallingChatModel 接口，用于与阿里云通义千问模型交互。
// 深度评估走的是纯文本补全，工具绑定保留为通用实现。
type AliyunQwenChatModel struct {
	apiKey           string
	modelName        string
	apiURL           string
	httpClient       *http.Client
	temperature      *float64
	maxTokens        int
	boundOpenAITools []OpenAITool
}

// QwenOption 模型构造选项
type QwenOption func(*AliyunQwenChatModel)

// WithTemperature 设置采样温度
func WithTemperature(t float64) QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.temperature = &t
	}
}

// WithMaxTokens 设置最大生成token数
func WithMaxTokens(n int) QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.maxTokens = n
	}
}

// WithHTTPClient 替换底层HTTP客户端
func WithHTTPClient(c *http.Client) QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.httpClient = c
	}
}

// NewAliyunQwenChatModel 创建一个新的 AliyunQwenChatModel 实例。
func NewAliyunQwenChatModel(apiKey string, modelName string, apiURL string, opts ...QwenOption) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultQwenModelName
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = openAICompatibleQwenAPIURL
	}

	m := &AliyunQwenChatModel{
		apiKey:           apiKey,
		modelName:        mn,
		apiURL:           url,
		httpClient:       &http.Client{},
		boundOpenAITools: make([]OpenAITool, 0),
	}
	for _, opt := range opts {
		opt(m)
	}

	log.Printf("使用阿里云通义千问 LLM 客户端，API URL: %s, 模型: %s", url, mn)
	return m, nil
}

// Generate 实现 model.ChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	for _, opt := range options {
		_ = opt // 通用调用选项由上层配置，此处不做转换
	}

	reqPayload := OpenAIChatCompletionRequest{
		Model:       aq.modelName,
		Messages:    messages,
		Temperature: aq.temperature,
		MaxTokens:   aq.maxTokens,
	}

	if len(aq.boundOpenAITools) > 0 {
		reqPayload.Tools = aq.boundOpenAITools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var openAIResp OpenAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	apiMessage := openAIResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}

	if len(apiMessage.ToolCalls) > 0 {
		resultMessage.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			resultMessage.ToolCalls[i] = schema.ToolCall{
				ID: tc.Id,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	if resultMessage.Role == "" {
		resultMessage.Role = schema.RoleType("assistant")
	}

	return resultMessage, nil
}

// Stream 实现 model.ChatModel 接口 (未实现)
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel (OpenAI 兼容) 的 Stream 方法未实现")
}

// BindTools 实现 model.ChatModel 接口。
// 深度评估不依赖工具调用，这里对参数schema做通用的空对象处理。
func (aq *AliyunQwenChatModel) BindTools(tools []*schema.ToolInfo) error {
	aq.boundOpenAITools = make([]OpenAITool, 0, len(tools))
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}
		aq.boundOpenAITools = append(aq.boundOpenAITools, OpenAITool{
			Type: "function",
			Function: OpenAIFunction{
				Name:        toolInfo.Name,
				Description: toolInfo.Desc,
				Parameters:  OpenAIToolFunctionParams{Type: "object", Properties: map[string]OpenAIToolFunctionParamsProperty{}},
			},
		})
	}
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (aq *AliyunQwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := aq.BindTools(tools); err != nil {
		return nil, err
	}
	return aq, nil
}

var _ model.ChatModel = (*AliyunQwenChatModel)(nil)
var _ model.ToolCallingChatModel = (*AliyunQwenChatModel)(nil)
