package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type mockEmbedder struct {
	result     domain.EmbeddingResult
	err        error
	calls      int
	imageCalls int
	healthErr  error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockEmbedder) EmbedImage(_ context.Context, _ []byte) (domain.EmbeddingResult, error) {
	m.imageCalls++
	return m.result, m.err
}

func (m *mockEmbedder) HealthCheck(_ context.Context) error { return m.healthErr }

// plainMockEmbedder implements only Embedder.
type plainMockEmbedder struct {
	result domain.EmbeddingResult
}

func (m *plainMockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, nil
}

type mockLimiter struct {
	err   error
	calls int
}

func (m *mockLimiter) Acquire(_ context.Context) error {
	m.calls++
	return m.err
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	p := NewInstrumentedEmbedder(inner, inner, "test", "test-model", nil, zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
}

func TestInstrumentedEmbedder_Image(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.5, 0.5}}}
	lim := &mockLimiter{}
	p := NewInstrumentedEmbedder(inner, inner, "test", "test-model", lim, zap.NewNop())

	if _, err := p.EmbedImage(context.Background(), []byte{0xff, 0xd8}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.imageCalls != 1 || inner.calls != 0 {
		t.Errorf("image calls = %d, text calls = %d", inner.imageCalls, inner.calls)
	}
	if lim.calls != 1 {
		t.Errorf("limiter calls = %d, want 1", lim.calls)
	}
}

func TestInstrumentedEmbedder_ImageUnsupported(t *testing.T) {
	p := NewInstrumentedEmbedder(&plainMockEmbedder{}, nil, "test", "m", nil, zap.NewNop())

	_, err := p.EmbedImage(context.Background(), []byte{1})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	inner := &mockEmbedder{err: fmt.Errorf("api: %w", domain.ErrEmbeddingProviderError)}
	p := NewInstrumentedEmbedder(inner, inner, "test-err", "test-model-e", nil, zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestInstrumentedEmbedder_RateLimited(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	lim := &mockLimiter{err: domain.ErrRateLimited}
	p := NewInstrumentedEmbedder(inner, inner, "test", "m", lim, zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if inner.calls != 0 {
		t.Error("provider must not be called when rate limited")
	}
}

func TestInstrumentedEmbedder_HealthCheck(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, inner, "test", "m", nil, zap.NewNop())
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inner.healthErr = errors.New("down")
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	plain := NewInstrumentedEmbedder(&plainMockEmbedder{}, nil, "test", "m", nil, zap.NewNop())
	if err := plain.HealthCheck(context.Background()); err != nil {
		t.Fatalf("embedder without health check should pass, got %v", err)
	}
}
