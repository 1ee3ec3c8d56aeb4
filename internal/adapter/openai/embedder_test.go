package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdani7777/Soothsayer/internal/adapter/openai"
)

func embeddingsServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openai.DefaultModel, req.Model)

		// Reverse order to check vectors are placed by index.
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			idx := len(req.Input) - 1 - i
			data[i] = map[string]any{"index": idx, "embedding": []float32{float32(idx), 0.5}}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	var calls atomic.Int32
	ts := embeddingsServer(t, &calls)
	defer ts.Close()

	e := openai.NewEmbedder("sk-test", ts.URL, "", 0)

	texts := make([]string, 120)
	for i := range texts {
		texts[i] = fmt.Sprintf("race %d", i)
	}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 120)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, float32(0), vecs[0][0])
	assert.Equal(t, float32(99), vecs[99][0])
	assert.Equal(t, float32(19), vecs[119][0])
}

func TestEmbedder_Embed(t *testing.T) {
	var calls atomic.Int32
	ts := embeddingsServer(t, &calls)
	defer ts.Close()

	e := openai.NewEmbedder("sk-test", ts.URL, "", 0)
	vec, err := e.Embed(context.Background(), "trail race")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, vec)
}

func TestEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"message":"bad key"}}`))
			},
			wantErr: "openai api error: 401",
		},
		{
			name: "count mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
			},
			wantErr: "got 0 embeddings for 1 inputs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			e := openai.NewEmbedder("sk-test", ts.URL, "", 0)
			_, err := e.Embed(context.Background(), "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmbedder_MissingKey(t *testing.T) {
	e := openai.NewEmbedder("", "", "", 0)
	_, err := e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
