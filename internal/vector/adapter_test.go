package vector_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/kdani7777/Soothsayer/internal/vector"
)

// fakeSchema serves the weaviate schema endpoints for a fixed set of classes
// and records every non-meta request as "METHOD path".
type fakeSchema struct {
	mu      sync.Mutex
	classes map[string]bool
	calls   []string
}

func (f *fakeSchema) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/meta" {
		w.Write([]byte(`{"version": "1.24.0"}`))
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost:
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/v1/schema/RaceChunk" && f.classes["RaceChunk"]:
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(&models.Class{Class: "RaceChunk"})
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeSchema) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newAdapter(t *testing.T, classes ...string) (*vector.WeaviateClientAdapter, *fakeSchema) {
	t.Helper()
	fake := &fakeSchema{classes: map[string]bool{}}
	for _, c := range classes {
		fake.classes[c] = true
	}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	client, err := weaviate.NewClient(weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"})
	require.NoError(t, err)
	return vector.NewWeaviateClientAdapter(client), fake
}

func TestWeaviateClientAdapter_ClassExists(t *testing.T) {
	tests := []struct {
		name    string
		classes []string
		want    bool
	}{
		{name: "Exists", classes: []string{"RaceChunk"}, want: true},
		{name: "Missing", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, _ := newAdapter(t, tt.classes...)
			exists, err := adapter.ClassExists(context.Background(), "RaceChunk")
			require.NoError(t, err)
			assert.Equal(t, tt.want, exists)
		})
	}
}

func TestWeaviateClientAdapter_CreateAndAddProperty(t *testing.T) {
	adapter, fake := newAdapter(t)

	require.NoError(t, adapter.CreateClass(context.Background(), &models.Class{Class: "RaceChunk"}))
	require.NoError(t, adapter.AddProperty(context.Background(), "RaceChunk", &models.Property{
		Name:     "distances",
		DataType: []string{"text[]"},
	}))

	assert.Equal(t, []string{
		"POST /v1/schema",
		"POST /v1/schema/RaceChunk/properties",
	}, fake.Calls())
}

func TestWeaviateClientAdapter_GetClass(t *testing.T) {
	adapter, _ := newAdapter(t, "RaceChunk")

	class, err := adapter.GetClass(context.Background(), "RaceChunk")
	require.NoError(t, err)
	require.NotNil(t, class)
	assert.Equal(t, "RaceChunk", class.Class)
}

func TestWeaviateClientAdapter_DeleteClass(t *testing.T) {
	tests := []struct {
		name      string
		classes   []string
		wantCalls []string
	}{
		{
			name:      "Existing",
			classes:   []string{"RaceChunk"},
			wantCalls: []string{"GET /v1/schema/RaceChunk", "DELETE /v1/schema/RaceChunk"},
		},
		{
			name:      "Missing is a no-op",
			wantCalls: []string{"GET /v1/schema/RaceChunk"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, fake := newAdapter(t, tt.classes...)
			require.NoError(t, adapter.DeleteClass(context.Background(), "RaceChunk"))
			assert.Equal(t, tt.wantCalls, fake.Calls())
		})
	}
}
