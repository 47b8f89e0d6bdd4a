package embedding_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/kgforge/internal/embedding"
	"github.com/raphaelgruber/kgforge/internal/metrics"
)

// fakeOllama answers /api/embed with one vector of dim values per input.
func fakeOllama(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			vectors[i] = make([]float32, dim)
			vectors[i][0] = float32(i + 1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": vectors})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOllamaClientDefaults(t *testing.T) {
	client, err := embedding.NewOllamaClient("", "", 0)
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultOllamaModel, client.Model())
	assert.Equal(t, embedding.DefaultOllamaDimension, client.Dimension())
}

func TestNewOllamaClientCustomModel(t *testing.T) {
	client, err := embedding.NewOllamaClient("http://localhost:11434", "custom-model", 512)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", client.Model())
	assert.Equal(t, 512, client.Dimension())
}

func TestOllamaEmbedBatch(t *testing.T) {
	srv := fakeOllama(t, 4)
	client, err := embedding.NewOllamaClient(srv.URL, "m", 4)
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Len(t, v, 4)
		assert.Equal(t, float32(i+1), v[0], "order preserved")
	}

	v, err := client.Embed(context.Background(), "single")
	require.NoError(t, err)
	assert.Len(t, v, 4)
}

func TestOllamaSplitsLargeBatches(t *testing.T) {
	var requests atomic.Int32
	inner := fakeOllama(t, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		inner.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := embedding.NewOllamaClient(srv.URL, "m", 2, embedding.WithBatchSize(2))
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	assert.Equal(t, int32(3), requests.Load())

	// each request numbers its own inputs from 1
	var firsts []float32
	for _, v := range vectors {
		firsts = append(firsts, v[0])
	}
	assert.Equal(t, []float32{1, 2, 1, 2, 1}, firsts)
}

func TestOllamaDimensionMismatch(t *testing.T) {
	srv := fakeOllama(t, 3)
	client, err := embedding.NewOllamaClient(srv.URL, "m", 4)
	require.NoError(t, err)

	_, err = client.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestOllamaEmbedBatchEmpty(t *testing.T) {
	client, err := embedding.NewOllamaClient("", "", 0)
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestNewEmbedderFactory(t *testing.T) {
	e, err := embedding.New(embedding.Config{Provider: embedding.ProviderOllama})
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultOllamaModel, e.Model())

	e, err = embedding.New(embedding.Config{Provider: embedding.ProviderHash, Dimension: 16})
	require.NoError(t, err)
	assert.Equal(t, 16, e.Dimension())

	_, err = embedding.New(embedding.Config{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	h := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	a, err := h.Embed(ctx, "Tencent was founded in 1998")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "tencent WAS founded in 1998!")
	require.NoError(t, err)
	c, err := h.Embed(ctx, "Shenzhen is a city")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float32
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	empty, err := h.Embed(ctx, "")
	require.NoError(t, err)
	assert.Len(t, empty, 32)
}

func TestLazyBuildsOnce(t *testing.T) {
	builds := 0
	lazy := embedding.NewLazy(func() (embedding.Embedder, error) {
		builds++
		return embedding.NewHashEmbedder(8), nil
	}, metrics.NewCollector())

	assert.Equal(t, 0, builds)
	assert.Zero(t, lazy.Dimension(), "no dimension before the backend is built")

	_, err := lazy.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	_, err = lazy.Embed(context.Background(), "c")
	require.NoError(t, err)

	assert.Equal(t, 1, builds)
	assert.Equal(t, 8, lazy.Dimension())
}

func TestLazyRetriesFailedBuild(t *testing.T) {
	calls := 0
	lazy := embedding.NewLazy(func() (embedding.Embedder, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("model server down")
		}
		return embedding.NewHashEmbedder(8), nil
	}, nil)

	_, err := lazy.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)

	_, err = lazy.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
