package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// capturedRequest holds the decoded body of the last /embeddings call.
type capturedRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
}

func newServer(t *testing.T, vec []float32, got *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}

		resp := embeddingResponse{Object: "list", Model: "clip"}
		resp.Data = []embeddingData{{Object: "embedding", Embedding: vec}}
		resp.Usage.PromptTokens = 7
		resp.Usage.TotalTokens = 7

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEmbedder(url, format string, dims int) *Embedder {
	return NewEmbedder(&Config{
		APIKey:           "test-key",
		BaseURL:          url,
		Model:            "clip",
		Dimensions:       dims,
		Provider:         "test",
		ImageInputFormat: format,
		Logger:           zap.NewNop(),
	})
}

func TestEmbedder_EmbedText(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3, 0.4}
	var req capturedRequest
	srv := newServer(t, want, &req)

	res, err := newTestEmbedder(srv.URL, "", 4).Embed(context.Background(), "a dog on a beach")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(res.Embedding) != len(want) {
		t.Fatalf("expected %d dimensions, got %d", len(want), len(res.Embedding))
	}
	for i, v := range res.Embedding {
		if v != want[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, want[i])
		}
	}
	if res.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", res.TotalTokens)
	}

	var input []string
	if err := json.Unmarshal(req.Input, &input); err != nil || len(input) != 1 || input[0] != "a dog on a beach" {
		t.Errorf("input = %s", req.Input)
	}
}

func TestEmbedder_EmbedImage_DataURI(t *testing.T) {
	var req capturedRequest
	srv := newServer(t, []float32{1, 0}, &req)

	_, err := newTestEmbedder(srv.URL, ImageInputDataURI, 2).EmbedImage(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("EmbedImage failed: %v", err)
	}

	var input []string
	if err := json.Unmarshal(req.Input, &input); err != nil {
		t.Fatalf("input is not a string array: %s", req.Input)
	}
	if input[0] != "data:image/jpeg;base64,AQID" {
		t.Errorf("input = %q", input[0])
	}
}

func TestEmbedder_EmbedImage_Jina(t *testing.T) {
	var req capturedRequest
	srv := newServer(t, []float32{1, 0}, &req)

	_, err := newTestEmbedder(srv.URL, ImageInputJina, 2).EmbedImage(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("EmbedImage failed: %v", err)
	}

	var input []map[string]string
	if err := json.Unmarshal(req.Input, &input); err != nil {
		t.Fatalf("input is not an object array: %s", req.Input)
	}
	if input[0]["image"] != "AQID" {
		t.Errorf("input = %v", input)
	}
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	srv := newServer(t, []float32{1, 2, 3}, nil)

	_, err := newTestEmbedder(srv.URL, "", 512).Embed(context.Background(), "cat")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedder_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"clip"}`))
	}))
	defer srv.Close()

	_, err := newTestEmbedder(srv.URL, "", 0).Embed(context.Background(), "cat")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedder_APIErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		rateLimited bool
		contains    string
	}{
		{
			name:        "upstream rate limit",
			status:      http.StatusTooManyRequests,
			body:        `{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`,
			rateLimited: true,
			contains:    "rate limit exceeded",
		},
		{
			name:     "detail body",
			status:   http.StatusUnprocessableEntity,
			body:     `{"detail":"image could not be decoded"}`,
			contains: "image could not be decoded",
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"model not loaded"}}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestEmbedder(srv.URL, "", 0).Embed(context.Background(), "hello")
			if !errors.Is(err, domain.ErrEmbeddingProviderError) {
				t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
			}
			if got := errors.Is(err, domain.ErrRateLimited); got != tc.rateLimited {
				t.Errorf("rate limited = %v, want %v (%v)", got, tc.rateLimited, err)
			}
			if tc.contains != "" && !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("error %q does not contain %q", err, tc.contains)
			}
		})
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"clip","object":"model"}]}`))
	}))
	defer srv.Close()

	if err := newTestEmbedder(srv.URL, "", 0).HealthCheck(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEmbedder_HealthCheckDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := newTestEmbedder(srv.URL, "", 0).HealthCheck(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestExtractDetail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail":"bad"}`)); got != "bad" {
		t.Errorf("got %q", got)
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("got %q", got)
	}
}
