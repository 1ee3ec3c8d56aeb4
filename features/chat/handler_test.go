package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kdani7777/Soothsayer/features/chat"
)

type MockContextService struct{ mock.Mock }

func (m *MockContextService) Context(ctx context.Context, query string, filters map[string]string) ([]string, error) {
	args := m.Called(ctx, query, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockAnswerer struct{ mock.Mock }

func (m *MockAnswerer) Answer(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func TestHandler_Chat_Table(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(*MockContextService, *MockAnswerer)
		wantStatus int
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			body: `{"query": "flat 10K near Burbank?", "filters": {"state": "CA"}}`,
			setupMocks: func(c *MockContextService, a *MockAnswerer) {
				c.On("Context", mock.Anything, "flat 10K near Burbank?", map[string]string{"state": "CA"}).
					Return([]string{"Burbank 10K"}, nil)
				a.On("Answer", mock.Anything, mock.MatchedBy(func(p string) bool {
					return strings.Contains(p, "Burbank 10K") && strings.Contains(p, "Question: flat 10K near Burbank?")
				})).Return("Run the Burbank 10K.", nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "flat 10K near Burbank?", body["query"])
				assert.Equal(t, "Run the Burbank 10K.", body["answer"])
			},
		},
		{
			name:       "Empty Query",
			body:       `{"query": "   "}`,
			setupMocks: func(c *MockContextService, a *MockAnswerer) {},
			wantStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "No query provided", errObj["message"])
			},
		},
		{
			name:       "Invalid JSON",
			body:       `{`,
			setupMocks: func(c *MockContextService, a *MockAnswerer) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Retrieval Error",
			body: `{"query": "q"}`,
			setupMocks: func(c *MockContextService, a *MockAnswerer) {
				c.On("Context", mock.Anything, "q", map[string]string(nil)).Return(nil, errors.New("weaviate down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "Answer Error",
			body: `{"query": "q"}`,
			setupMocks: func(c *MockContextService, a *MockAnswerer) {
				c.On("Context", mock.Anything, "q", map[string]string(nil)).Return([]string{}, nil)
				a.On("Answer", mock.Anything, mock.Anything).Return("", errors.New("quota"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := new(MockContextService)
			a := new(MockAnswerer)
			tt.setupMocks(c, a)

			h := chat.NewHandler(c, a)
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			h.Chat(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.checkBody != nil {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				tt.checkBody(t, body)
			}
			c.AssertExpectations(t)
			a.AssertExpectations(t)
		})
	}
}
