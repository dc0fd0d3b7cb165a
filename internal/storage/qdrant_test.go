package storage_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQdrant_NewQdrant 测试Qdrant客户端初始化
func TestQdrant_NewQdrant(t *testing.T) {
	// 创建一个模拟的HTTP服务器来模拟Qdrant API
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 检查请求路径
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			// 返回集合存在的响应
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{
				"result": {
					"config": {
						"params": {
							"vectors": {
								"size": 1024,
								"distance": "Cosine"
							}
						}
					}
				}
			}`))
			return
		}
		// 默认返回404
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	// 创建Qdrant配置
	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  1024,
	}

	// 使用选项模式创建客户端
	client, err := storage.NewQdrant(cfg,
		storage.WithDistanceMetric("Cosine"),
		storage.WithHttpTimeout(5*time.Second))

	require.NoError(t, err, "应该成功创建Qdrant客户端")
	require.NotNil(t, client, "客户端不应为nil")
}

// TestQdrant_StoreCandidateVectors 测试存储候选人分块向量
func TestQdrant_StoreCandidateVectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 1024, "distance": "Cosine"}}}}}`))
			return
		}

		if r.URL.Path == "/collections/test_collection/points" && r.Method == "PUT" {
			// 返回存储成功响应
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"status": "completed"}, "status": "ok"}`))
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  1024,
	}

	client, err := storage.NewQdrant(cfg)
	require.NoError(t, err, "应该成功创建Qdrant客户端")

	candidateID := "cand-123"
	chunks := []storage.CandidateChunk{
		{ChunkID: 1, ChunkType: "experience", Content: "五年Go后端开发经验"},
		{ChunkID: 2, ChunkType: "skills", Content: "Go, MySQL, Redis, Kafka"},
	}

	embeddings := make([][]float64, len(chunks))
	for i := range embeddings {
		embeddings[i] = make([]float64, 1024)
		for j := 0; j < 1024; j++ {
			embeddings[i][j] = float64(j) / 1024.0
		}
	}

	ctx := context.Background()
	pointIDs, err := client.StoreCandidateVectors(ctx, candidateID, chunks, embeddings)

	require.NoError(t, err, "向量存储应成功")
	require.Len(t, pointIDs, 2, "应返回两个点ID")
	// 点ID是确定性生成的，重复写入应得到相同ID
	pointIDs2, err := client.StoreCandidateVectors(ctx, candidateID, chunks, embeddings)
	require.NoError(t, err)
	assert.Equal(t, pointIDs, pointIDs2, "相同候选人和分块的点ID应保持不变")
}

// TestQdrant_StoreCandidateVectors_LengthMismatch 测试分块与向量数量不一致
func TestQdrant_StoreCandidateVectors_LengthMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  4,
	}

	client, err := storage.NewQdrant(cfg)
	require.NoError(t, err)

	chunks := []storage.CandidateChunk{{ChunkID: 1, ChunkType: "summary"}}
	embeddings := [][]float64{{0.1, 0.2, 0.3, 0.4}, {0.5, 0.6, 0.7, 0.8}}

	_, err = client.StoreCandidateVectors(context.Background(), "cand-1", chunks, embeddings)
	require.Error(t, err, "数量不匹配时应返回错误")
}

// TestQdrant_SearchSimilarCandidates 测试候选人召回与分块聚合
func TestQdrant_SearchSimilarCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`))
			return
		}

		if r.URL.Path == "/collections/test_collection/points/search" && r.Method == "POST" {
			// 同一候选人的两个分块命中加另一候选人的单个分块
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{
				"result": [
					{"id": "p1", "score": 0.92, "payload": {"candidate_id": "cand-a", "chunk_id": 1}},
					{"id": "p2", "score": 0.88, "payload": {"candidate_id": "cand-b", "chunk_id": 3}},
					{"id": "p3", "score": 0.71, "payload": {"candidate_id": "cand-a", "chunk_id": 2}},
					{"id": "p4", "score": 0.40, "payload": {"chunk_id": 9}}
				],
				"status": "ok",
				"time": 0.001
			}`))
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  4,
	}

	client, err := storage.NewQdrant(cfg)
	require.NoError(t, err, "应该成功创建Qdrant客户端")

	ctx := context.Background()
	hits, err := client.SearchSimilarCandidates(ctx, []float64{0.1, 0.2, 0.3, 0.4}, 10, 0.35)

	require.NoError(t, err, "向量搜索应成功")
	// 缺少candidate_id的点被丢弃，剩余分块聚合为两个候选人
	require.Len(t, hits, 2, "应聚合为两个候选人")

	assert.Equal(t, "cand-a", hits[0].CandidateID)
	assert.InDelta(t, 0.92, hits[0].Similarity, 0.001, "应取候选人最高分块的相似度")
	assert.Equal(t, 2, hits[0].EvidenceCount, "命中分块数应作为证据条数")

	assert.Equal(t, "cand-b", hits[1].CandidateID)
	assert.InDelta(t, 0.88, hits[1].Similarity, 0.001)
	assert.Equal(t, 1, hits[1].EvidenceCount)
}

// TestQdrant_SearchSimilarCandidates_DimensionMismatch 测试查询向量维度校验
func TestQdrant_SearchSimilarCandidates_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  4,
	}

	client, err := storage.NewQdrant(cfg)
	require.NoError(t, err)

	_, err = client.SearchSimilarCandidates(context.Background(), []float64{0.1, 0.2}, 10, 0.35)
	require.Error(t, err, "维度不匹配时应返回错误")
}

// TestQdrant_GetVectorsByCandidateID 测试按候选人ID滚动拉取向量点
func TestQdrant_GetVectorsByCandidateID(t *testing.T) {
	var gotFilterValue string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`))
			return
		}

		if r.URL.Path == "/collections/test_collection/points/scroll" && r.Method == "POST" {
			var req struct {
				Filter struct {
					Must []struct {
						Key   string `json:"key"`
						Match struct {
							Value string `json:"value"`
						} `json:"match"`
					} `json:"must"`
				} `json:"filter"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if len(req.Filter.Must) > 0 {
				gotFilterValue = req.Filter.Must[0].Match.Value
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{
				"result": {
					"points": [
						{"id": "p1", "payload": {"candidate_id": "cand-7", "chunk_id": 1}},
						{"id": "p2", "payload": {"candidate_id": "cand-7", "chunk_id": 2}},
						{"id": "p3", "payload": {"candidate_id": "cand-7", "chunk_id": 3}}
					]
				},
				"status": "ok",
				"time": 0.001
			}`))
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  4,
	}

	client, err := storage.NewQdrant(cfg)
	require.NoError(t, err)

	hits, err := client.GetVectorsByCandidateID(context.Background(), "cand-7")
	require.NoError(t, err, "滚动查询应成功")
	require.Len(t, hits, 1, "同一候选人的点应聚合为一条")
	assert.Equal(t, "cand-7", hits[0].CandidateID)
	assert.Equal(t, 3, hits[0].EvidenceCount, "应统计该候选人全部向量点")
	assert.Equal(t, "cand-7", gotFilterValue, "滚动请求应按candidate_id过滤")
}

// TestQdrant_GetVectorsByCandidateID_NoPoints 测试候选人没有向量点时返回空
func TestQdrant_GetVectorsByCandidateID_NoPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`))
			return
		}
		if r.URL.Path == "/collections/test_collection/points/scroll" && r.Method == "POST" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"points": []}, "status": "ok", "time": 0.001}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  4,
	}

	client, err := storage.NewQdrant(cfg)
	require.NoError(t, err)

	hits, err := client.GetVectorsByCandidateID(context.Background(), "cand-none")
	require.NoError(t, err)
	assert.Empty(t, hits, "没有向量点时应返回空结果")
}

// TestQdrant_DeletePoints 测试删除指定向量点
func TestQdrant_DeletePoints(t *testing.T) {
	var gotPointIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`))
			return
		}

		if r.URL.Path == "/collections/test_collection/points/delete" && r.Method == "POST" {
			var req struct {
				Points []string `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			gotPointIDs = req.Points

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"status": "completed"}, "status": "ok", "time": 0.001}`))
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  4,
	}

	client, err := storage.NewQdrant(cfg)
	require.NoError(t, err)

	err = client.DeletePoints(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err, "删除向量点应成功")
	assert.Equal(t, []string{"p1", "p2"}, gotPointIDs, "删除请求应携带指定的点ID")
}

// TestQdrant_DeletePoints_Empty 测试空ID列表时不发起删除请求
func TestQdrant_DeletePoints_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`))
			return
		}
		if r.URL.Path == "/collections/test_collection/points/delete" {
			t.Error("空ID列表不应触发删除请求")
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  4,
	}

	client, err := storage.NewQdrant(cfg)
	require.NoError(t, err)

	err = client.DeletePoints(context.Background(), nil)
	require.NoError(t, err, "空ID列表应直接成功返回")
}

// TestQdrant_CountPoints 测试集合点数量统计
func TestQdrant_CountPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/test_collection" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`))
			return
		}

		if r.URL.Path == "/collections/test_collection/points/count" && r.Method == "POST" {
			var req struct {
				Exact bool `json:"exact"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.Exact, "应请求精确计数")

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"result": {"count": 4213}, "status": "ok", "time": 0.002}`))
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "test_collection",
		Dimension:  4,
	}

	client, err := storage.NewQdrant(cfg)
	require.NoError(t, err)

	count, err := client.CountPoints(context.Background())
	require.NoError(t, err, "计数查询应成功")
	assert.Equal(t, int64(4213), count)
}
