package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

func completionServer(t *testing.T, status int, content string, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		assert.Len(t, body.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIRecommender_Recommend(t *testing.T) {
	var hits int32
	server := completionServer(t, http.StatusOK, `{"recommended_model":"exp_smoothing","confidence":0.8,"reason":"seasonal"}`, &hits)
	defer server.Close()

	rec := NewOpenAIRecommender(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Model: "gpt-4o-mini"}, server.Client(), nil)
	d := New(rec, nil).Recommend(context.Background(), Request{
		DefaultModel:     contracts.ModelEWMA,
		CandidateMetrics: metrics,
		HistoryMonths:    24,
	})

	assert.Equal(t, contracts.ModelExpSmoothing, d.RecommendedModel)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, "seasonal", d.Reason)
	assert.True(t, d.AdvisorEnabled)
	assert.False(t, d.FallbackUsed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOpenAIRecommender_BreakerOpens(t *testing.T) {
	var hits int32
	server := completionServer(t, http.StatusBadRequest, "", &hits)
	defer server.Close()

	rec := NewOpenAIRecommender(OpenAIConfig{
		APIKey:          "test-key",
		BaseURL:         server.URL + "/v1",
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
	}, server.Client(), nil)
	adv := New(rec, nil)

	for i := 0; i < 4; i++ {
		d := adv.Recommend(context.Background(), Request{DefaultModel: contracts.ModelEWMA})
		require.Equal(t, contracts.ModelEWMA, d.RecommendedModel)
		assert.Equal(t, []string{WarnRuntimeError}, d.Warnings)
	}

	// 2회 실패 후 breaker open → 이후 요청은 서버에 도달하지 않음
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, gobreaker.StateOpen, rec.State())
}

func TestOpenAIRecommender_Compare(t *testing.T) {
	var hits int32
	server := completionServer(t, http.StatusOK, `{"recommended_model":"arima","confidence":0.7,"reason":"balanced"}`, &hits)
	defer server.Close()

	rec := NewOpenAIRecommender(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"}, server.Client(), nil)
	c := New(rec, nil).CompareOptions(context.Background(), CompareRequest{
		DefaultModel: contracts.ModelEWMA,
		Options: []Option{
			{ModelID: contracts.ModelEWMA, Metric: &metrics[0]},
			{ModelID: contracts.ModelARIMA, Metric: &metrics[1]},
		},
	})
	assert.Equal(t, contracts.ModelARIMA, c.RecommendedModel)
	assert.Equal(t, "balanced", c.Reason)
	assert.Equal(t, []contracts.ModelID{contracts.ModelEWMA, contracts.ModelARIMA}, c.Ranked)
}
