package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kdani7777/Soothsayer/internal/retrieval"
)

const (
	cohereURL = "https://api.cohere.ai/v1/rerank"
	jinaURL   = "https://api.jina.ai/v1/rerank"

	DefaultCohereModel = "rerank-english-v3.0"
	DefaultJinaModel   = "jina-reranker-v1-base-en"
)

type Client struct {
	provider string
	apiKey   string
	model    string
	client   *http.Client
	baseURL  string
}

func NewClient(provider, apiKey, model string) *Client {
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Rerank scores docs against query and returns at most topN results sorted
// by relevance. Provider "none" keeps the incoming order.
func (c *Client) Rerank(ctx context.Context, query string, docs []string, topN int) ([]retrieval.Ranked, error) {
	switch c.provider {
	case "cohere":
		return c.call(ctx, "cohere", c.endpoint(cohereURL), c.modelOr(DefaultCohereModel), query, docs, topN)
	case "jina":
		return c.call(ctx, "jina", c.endpoint(jinaURL), c.modelOr(DefaultJinaModel), query, docs, topN)
	}

	n := min(topN, len(docs))
	ranked := make([]retrieval.Ranked, n)
	for i := range ranked {
		ranked[i] = retrieval.Ranked{Index: i, Score: float64(len(docs) - i)}
	}
	return ranked, nil
}

func (c *Client) endpoint(def string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return def
}

func (c *Client) modelOr(def string) string {
	if c.model != "" {
		return c.model
	}
	return def
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

func (c *Client) call(ctx context.Context, name, url, model, query string, docs []string, topN int) ([]retrieval.Ranked, error) {
	reqBody := map[string]any{
		"model":            model,
		"query":            query,
		"documents":        docs,
		"top_n":            topN,
		"return_documents": false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s api error: %d: %s", name, resp.StatusCode, bytes.TrimSpace(body))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%s api: decode response: %w", name, err)
	}

	ranked := make([]retrieval.Ranked, 0, len(result.Results))
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < len(docs) {
			ranked = append(ranked, retrieval.Ranked{Index: r.Index, Score: r.Score})
		}
	}
	return ranked, nil
}
