package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/tracing"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// 定义Qdrant的专用tracer
var qdrantTracer = otel.Tracer("talent-match-go/storage/qdrant")

// QdrantPointIDNamespace is a dedicated namespace for generating deterministic
// Qdrant point IDs for candidate profile chunks. Same candidate and chunk always
// yield the same point ID, which keeps writes idempotent.
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("fd6c72c2-5a33-4b53-8e7c-8298f3f5a7e1"))

// CandidateChunk 候选人档案的一个可向量化分块
type CandidateChunk struct {
	ChunkID   int    // 候选人内的分块序号
	ChunkType string // experience / skills / summary 等
	Content   string
}

// CandidateHit 向量召回的单个候选人结果。
// 同一候选人的多个分块命中会被聚合：取最高相似度，并记录证据条数。
type CandidateHit struct {
	CandidateID   string
	Similarity    float64 // 最高分块的余弦相似度 [0,1]
	EvidenceCount int     // 命中的分块数
}

// VectorDatabase 向量数据库接口
type VectorDatabase interface {
	// StoreCandidateVectors 存储候选人档案分块的向量
	StoreCandidateVectors(ctx context.Context, candidateID string, chunks []CandidateChunk, embeddings [][]float64) ([]string, error)

	// SearchSimilarCandidates 按查询向量召回候选人，低于floor的命中被丢弃
	SearchSimilarCandidates(ctx context.Context, queryVector []float64, limit int, floor float64) ([]CandidateHit, error)
}

// 确保Qdrant实现了VectorDatabase接口
var _ VectorDatabase = (*Qdrant)(nil)

// Qdrant 提供向量数据库功能
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	distanceMetric string
	httpClient     *http.Client
}

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithDistanceMetric 设置距离度量
func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distanceMetric = metric
	}
}

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建Qdrant客户端
func NewQdrant(cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:6333"
	}

	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = "candidate_chunks"
	}

	vectorSize := cfg.Dimension
	if vectorSize <= 0 {
		vectorSize = 1024 // 默认向量维度，与阿里云Embedding一致
	}

	q := &Qdrant{
		endpoint:       endpoint,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		distanceMetric: "Cosine",
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(q)
	}

	// 确保集合存在
	if err := q.ensureCollectionExists(context.Background()); err != nil {
		return nil, fmt.Errorf("确保集合 '%s' 存在失败: %w", collectionName, err)
	}

	log.Printf("成功连接到Qdrant服务器: %s，并确保集合 '%s' 存在", endpoint, collectionName)
	return q, nil
}

// ensureCollectionExists 确保向量集合存在
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "check_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
	)

	// 先检查集合是否已存在
	url := fmt.Sprintf("%s/collections/%s", q.endpoint, q.collectionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("创建检查集合请求失败: %w", err)
	}

	// 注入OpenTelemetry追踪上下文到HTTP请求
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	span.SetAttributes(
		attribute.String("http.method", http.MethodGet),
		attribute.String("http.url", url),
	)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("发送检查集合请求失败: %w", err)
	}
	defer resp.Body.Close()

	// 如果集合不存在，则创建它
	if resp.StatusCode == http.StatusNotFound {
		span.AddEvent("collection_not_found", trace.WithAttributes(
			attribute.String("action", "create_collection"),
		))
		log.Printf("集合 '%s' 不存在，将创建新集合", q.collectionName)
		return q.createCollection(ctx)
	} else if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("检查集合失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// 检查集合配置是否匹配当前配置
	var collectionInfo struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("读取集合信息响应失败: %w", err)
	}

	if err := json.Unmarshal(body, &collectionInfo); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("解析集合信息失败: %w", err)
	}

	existingSize := collectionInfo.Result.Config.Params.Vectors.Size
	existingDistance := collectionInfo.Result.Config.Params.Vectors.Distance

	span.SetAttributes(
		attribute.Int("collection.existing_vector_size", existingSize),
		attribute.String("collection.existing_distance", existingDistance),
	)

	if existingSize != q.vectorSize || existingDistance != q.distanceMetric {
		log.Printf("警告: 现有集合配置与当前配置不匹配。现有: 维度=%d, 距离=%s; 当前: 维度=%d, 距离=%s",
			existingSize, existingDistance, q.vectorSize, q.distanceMetric)

		span.AddEvent("collection_config_mismatch", trace.WithAttributes(
			attribute.Int("expected_vector_size", q.vectorSize),
			attribute.String("expected_distance", q.distanceMetric),
		))
	}

	span.SetStatus(codes.Ok, "")
	log.Printf("已发现现有Qdrant集合: %s，维度: %d", q.collectionName, existingSize)
	return nil
}

// createCollection 创建新的向量集合
func (q *Qdrant) createCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CreateCollection",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "create_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
		attribute.String("db.vector.distance", q.distanceMetric),
	)

	createReqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
		"optimizers_config": map[string]interface{}{
			"default_segment_number": 2,
		},
	}

	jsonData, err := json.Marshal(createReqBody)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("序列化创建集合请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", q.endpoint, q.collectionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewBuffer(jsonData))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("创建集合请求对象失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	span.SetAttributes(
		attribute.String("http.method", http.MethodPut),
		attribute.String("http.url", url),
		attribute.Int("http.request_content_length", len(jsonData)),
	)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("发送创建集合请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("创建集合失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	log.Printf("已成功创建Qdrant集合: %s，维度: %d", q.collectionName, q.vectorSize)
	return nil
}

// StoreCandidateVectors 存储候选人档案分块的向量。
// 点ID由候选人ID和分块序号确定性生成，重复写入是幂等的。
func (q *Qdrant) StoreCandidateVectors(ctx context.Context, candidateID string, chunks []CandidateChunk, embeddings [][]float64) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.StoreCandidateVectors",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "store_vectors"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("candidate.id", candidateID),
		attribute.Int("vectors.count", len(embeddings)),
	)

	if len(chunks) != len(embeddings) {
		err := fmt.Errorf("chunks数量(%d)与embeddings数量(%d)不匹配", len(chunks), len(embeddings))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(embeddings) == 0 {
		span.SetStatus(codes.Ok, "no vectors to store")
		return []string{}, nil
	}

	points := make([]interface{}, 0, len(chunks))
	ids := make([]string, 0, len(chunks))

	for i, embedding := range embeddings {
		if len(embedding) != q.vectorSize {
			err := fmt.Errorf("向量维度(%d)与配置维度(%d)不匹配", len(embedding), q.vectorSize)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		chunk := chunks[i]
		// 基于候选人ID和分块序号生成确定性的点ID，保证幂等
		idSource := fmt.Sprintf("candidate_id:%s_chunk_id:%d", candidateID, chunk.ChunkID)
		pointID := uuid.NewV5(QdrantPointIDNamespace, idSource).String()
		ids = append(ids, pointID)

		payload := map[string]interface{}{
			"chunk_id":     chunk.ChunkID,
			"chunk_type":   chunk.ChunkType,
			"candidate_id": candidateID,
			"content_text": truncateString(chunk.Content, 1000), // 限制内容长度
		}

		points = append(points, map[string]interface{}{
			"id":      pointID,
			"vector":  embedding,
			"payload": payload,
		})
	}

	requestBody := map[string]interface{}{
		"points": points,
	}

	var response struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName), requestBody, &response)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("qdrant.response_status", response.Status),
		attribute.Float64("qdrant.response_time", response.Time),
	)
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// SearchSimilarCandidates 按岗位查询向量召回候选人。
// Qdrant 返回分块级命中，这里聚合成候选人级结果：同一候选人取最高相似度，
// 命中的分块数作为证据条数。结果按相似度降序，相同相似度按首次出现顺序。
func (q *Qdrant) SearchSimilarCandidates(ctx context.Context, queryVector []float64, limit int, floor float64) ([]CandidateHit, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.SearchSimilarCandidates",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "search_vectors"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("search.limit", limit),
		attribute.Float64("search.score_threshold", floor),
		attribute.Int("query_vector.size", len(queryVector)),
	)

	if len(queryVector) != q.vectorSize {
		err := fmt.Errorf("查询向量维度(%d)与配置维度(%d)不匹配", len(queryVector), q.vectorSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if limit <= 0 {
		limit = 10
	}

	searchReq := map[string]interface{}{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if floor > 0 {
		// 由Qdrant在服务端直接丢弃低于下限的命中
		searchReq["score_threshold"] = floor
	}

	var result struct {
		Result []struct {
			ID      string                 `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collectionName), searchReq, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 分块命中聚合到候选人
	byCandidate := make(map[string]*CandidateHit)
	order := make([]string, 0)
	for _, point := range result.Result {
		candidateID, _ := point.Payload["candidate_id"].(string)
		if candidateID == "" {
			continue
		}
		hit, ok := byCandidate[candidateID]
		if !ok {
			byCandidate[candidateID] = &CandidateHit{
				CandidateID:   candidateID,
				Similarity:    point.Score,
				EvidenceCount: 1,
			}
			order = append(order, candidateID)
			continue
		}
		hit.EvidenceCount++
		if point.Score > hit.Similarity {
			hit.Similarity = point.Score
		}
	}

	hits := make([]CandidateHit, 0, len(order))
	for _, id := range order {
		hits = append(hits, *byCandidate[id])
	}
	// Qdrant按分块分数降序返回，聚合后的候选人最高分可能乱序，重排一次。
	// 稳定排序保持相同相似度候选人的首次出现顺序。
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})

	span.SetAttributes(
		attribute.Int("search.chunk_hits", len(result.Result)),
		attribute.Int("search.candidate_hits", len(hits)),
		attribute.String("qdrant.response_status", result.Status),
		attribute.Float64("qdrant.response_time", result.Time),
	)
	span.SetStatus(codes.Ok, "")
	return hits, nil
}

// GetVectorsByCandidateID 通过候选人ID获取其全部向量点，用于诊断
func (q *Qdrant) GetVectorsByCandidateID(ctx context.Context, candidateID string) ([]CandidateHit, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.GetVectorsByCandidateID",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("db.operation", "scroll"),
			attribute.String("db.collection", q.collectionName),
			attribute.String("candidate.id", candidateID),
		),
	)
	defer span.End()

	scrollReqBody := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{
					"key": "candidate_id",
					"match": map[string]interface{}{
						"value": candidateID,
					},
				},
			},
		},
		"with_payload": true,
		"limit":        100, // 一个候选人档案通常不会超过100个分块
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				ID      string                 `json:"id"`
				Payload map[string]interface{} `json:"payload"`
			} `json:"points"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", q.collectionName), scrollReqBody, &scrollResp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scroll points by candidate_id")
		return nil, err
	}

	count := len(scrollResp.Result.Points)
	span.SetAttributes(attribute.Int("retrieved_points_count", count))
	span.SetStatus(codes.Ok, "")
	if count == 0 {
		return nil, nil
	}
	return []CandidateHit{{CandidateID: candidateID, EvidenceCount: count}}, nil
}

// DeletePoints 删除指定ID的向量点
func (q *Qdrant) DeletePoints(ctx context.Context, pointIDs []string) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.DeletePoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "delete_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("points.count", len(pointIDs)),
	)

	if len(pointIDs) == 0 {
		span.SetStatus(codes.Ok, "no points to delete")
		return nil
	}

	reqBody := map[string]interface{}{
		"points": pointIDs,
	}

	var result struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName), reqBody, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(
		attribute.String("qdrant.response_status", result.Status),
		attribute.Float64("qdrant.response_time", result.Time),
	)
	span.SetStatus(codes.Ok, "")
	return nil
}

// CountPoints 获取集合中的点数量
func (q *Qdrant) CountPoints(ctx context.Context) (int64, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CountPoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "count_points"),
		attribute.String("db.collection", q.collectionName),
	)

	countReqBody := map[string]interface{}{
		"exact": true, // 精确计数
	}

	var result struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}

	err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", q.collectionName), countReqBody, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(
		attribute.String("qdrant.response_status", result.Status),
		attribute.Float64("qdrant.response_time", result.Time),
		attribute.Int64("qdrant.points.count", result.Result.Count),
	)

	span.SetStatus(codes.Ok, "")
	return result.Result.Count, nil
}

// 辅助函数 - 截断字符串
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen > 3 {
		return s[:maxLen-3] + "..."
	}
	return s[:maxLen]
}

func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	baseURL := q.endpoint

	var req *http.Request
	var err error

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}

		req, err = http.NewRequestWithContext(ctx, method, baseURL+path, bytes.NewBuffer(jsonBody))
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, baseURL+path, nil)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	// 注入trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}

	span.SetAttributes(attribute.Int("http.response.body.size", len(respBody)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, string(respBody))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
