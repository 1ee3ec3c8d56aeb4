package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultLLMModel = "gemini-1.5-flash"

var ErrEmptyAnswer = errors.New("model returned no answer")

// Answerer turns a finished prompt into the model's text reply.
type Answerer struct {
	apiKey     string
	model      string
	clientOpts []option.ClientOption

	mu     sync.Mutex
	client *genai.Client
}

func NewAnswerer(apiKey, model string, opts ...option.ClientOption) *Answerer {
	if model == "" {
		model = DefaultLLMModel
	}
	return &Answerer{apiKey: apiKey, model: model, clientOpts: opts}
}

func (a *Answerer) Answer(ctx context.Context, prompt string) (string, error) {
	a.mu.Lock()
	if a.client == nil {
		client, err := newClient(ctx, a.apiKey, a.clientOpts)
		if err != nil {
			a.mu.Unlock()
			return "", err
		}
		a.client = client
	}
	client := a.client
	a.mu.Unlock()

	resp, err := client.GenerativeModel(a.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", ErrEmptyAnswer
	}
	return sb.String(), nil
}

func (a *Answerer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}
