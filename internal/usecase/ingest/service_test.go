package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/clipsearch/internal/dataset"
	"github.com/kailas-cloud/clipsearch/internal/domain"
)

func annotations(n int) []dataset.Annotation {
	out := make([]dataset.Annotation, n)
	for i := range out {
		out[i] = dataset.Annotation{ID: int64(1000 + i), ImageID: int64(i / 2), Caption: "caption"}
	}
	return out
}

func TestRun_Batches(t *testing.T) {
	repo := newMockRepo()
	emb := &mockEmbedder{}
	svc := newTestService(t, repo, &mockImages{}, emb, Config{BatchSize: 4})

	rep, err := svc.Run(context.Background(), annotations(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Processed != 10 || rep.Skipped() != 0 {
		t.Errorf("report = %+v", rep)
	}
	if len(repo.batches) != 3 {
		t.Fatalf("batches = %d, want 3 (4+4+2)", len(repo.batches))
	}
	if len(repo.batches[2]) != 2 {
		t.Errorf("final partial batch = %d, want 2", len(repo.batches[2]))
	}
	if rep.Stored != 10 {
		t.Errorf("stored = %d", rep.Stored)
	}
	if repo.markCalls != 1 || repo.marked != 10 {
		t.Errorf("marker calls = %d, records = %d", repo.markCalls, repo.marked)
	}
	if rep.SuccessRate() != 1 {
		t.Errorf("success rate = %v", rep.SuccessRate())
	}
}

func TestRun_RecordFields(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockImages{}, &mockEmbedder{}, Config{})

	anns := []dataset.Annotation{{ID: 42, ImageID: 139, Caption: "a man riding a bike"}}
	if _, err := svc.Run(context.Background(), anns); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, ok := repo.stored["42"]
	if !ok {
		t.Fatal("record 42 not stored")
	}
	if rec.ImageID != "139" || rec.Caption != "a man riding a bike" || rec.ImagePath != "data/val2017/139.jpg" {
		t.Errorf("record = %+v", rec)
	}
}

func TestRun_SkipsMissingAndFailed(t *testing.T) {
	repo := newMockRepo()
	imgs := &mockImages{
		missing: map[string]bool{"/img/0.jpg": true},
		broken:  map[string]bool{"/img/1.jpg": true},
	}
	emb := &mockEmbedder{failOn: "/img/2.jpg"}
	svc := newTestService(t, repo, imgs, emb, Config{BatchSize: 50})

	// image ids 0,0,1,1,2,2,3,3
	rep, err := svc.Run(context.Background(), annotations(8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Missing != 2 || rep.Failed != 4 || rep.Processed != 2 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Skipped() != 6 {
		t.Errorf("skipped = %d", rep.Skipped())
	}
	if got := rep.SuccessRate(); got != 0.25 {
		t.Errorf("success rate = %v, want 0.25", got)
	}
	if len(repo.stored) != 2 {
		t.Errorf("stored = %d", len(repo.stored))
	}
}

func TestRun_SkipsWhenMarked(t *testing.T) {
	repo := newMockRepo()
	repo.marker = &domain.IngestMarker{Records: 3}
	repo.stored["1"] = domain.Record{ID: "1"}
	emb := &mockEmbedder{}
	svc := newTestService(t, repo, &mockImages{}, emb, Config{})

	rep, err := svc.Run(context.Background(), annotations(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rep.AlreadyIngested || rep.Stored != 1 {
		t.Errorf("report = %+v", rep)
	}
	if emb.calls != 0 || len(repo.batches) != 0 || repo.ensured != 0 || repo.markCalls != 0 {
		t.Error("a marked collection must see zero writes")
	}
}

func TestRun_StaleMarker(t *testing.T) {
	tests := []struct {
		name     string
		countErr error
	}{
		{"collection dropped", domain.ErrCollectionNotFound},
		{"collection empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			repo.marker = &domain.IngestMarker{Records: 3}
			repo.countErr = tt.countErr
			svc := newTestService(t, repo, &mockImages{}, &mockEmbedder{}, Config{})

			rep, err := svc.Run(context.Background(), annotations(3))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rep.AlreadyIngested {
				t.Error("a stale marker must not skip ingestion")
			}
			if repo.ensured != 1 || rep.Processed != 3 || rep.Stored != 3 || repo.marked != 3 {
				t.Errorf("report = %+v, ensured = %d, marked = %d", rep, repo.ensured, repo.marked)
			}
		})
	}
}

func TestRun_MarkedCountError(t *testing.T) {
	repo := newMockRepo()
	repo.marker = &domain.IngestMarker{Records: 3}
	repo.countErr = errors.New("conn refused")
	svc := newTestService(t, repo, &mockImages{}, &mockEmbedder{}, Config{})

	if _, err := svc.Run(context.Background(), annotations(1)); err == nil {
		t.Fatal("expected error")
	}
	if repo.ensured != 0 {
		t.Error("an unreachable store must not be written to")
	}
}

func TestRun_Idempotent(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockImages{}, &mockEmbedder{}, Config{})
	ctx := context.Background()

	first, err := svc.Run(ctx, annotations(6))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := svc.Run(ctx, annotations(6))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.AlreadyIngested || second.Stored != first.Stored {
		t.Errorf("second run = %+v, first stored %d", second, first.Stored)
	}
}

func TestRun_ForceReingestsWithoutDuplicates(t *testing.T) {
	repo := newMockRepo()
	repo.marker = &domain.IngestMarker{Records: 6}
	svc := newTestService(t, repo, &mockImages{}, &mockEmbedder{}, Config{Force: true})

	if _, err := svc.Run(context.Background(), annotations(6)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rep, err := svc.Run(context.Background(), annotations(6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.AlreadyIngested {
		t.Error("force must not skip")
	}
	if len(repo.stored) != 6 {
		t.Errorf("stored = %d, want 6", len(repo.stored))
	}
}

func TestRun_BatchWriteAborts(t *testing.T) {
	repo := newMockRepo()
	repo.upsertErr = errors.New("OOM")
	svc := newTestService(t, repo, &mockImages{}, &mockEmbedder{}, Config{BatchSize: 2})

	if _, err := svc.Run(context.Background(), annotations(4)); err == nil {
		t.Fatal("expected error")
	}
	if repo.markCalls != 0 {
		t.Error("marker must not be written after a failed batch")
	}
}

func TestRun_Canceled(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockImages{}, &mockEmbedder{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Run(ctx, annotations(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if repo.markCalls != 0 {
		t.Error("marker must not be written after cancellation")
	}
}

func TestRun_Empty(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockImages{}, &mockEmbedder{}, Config{})

	rep, err := svc.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.SuccessRate() != 0 || rep.Total != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRun_MarkerReadError(t *testing.T) {
	repo := newMockRepo()
	repo.markerErr = errors.New("conn refused")
	svc := newTestService(t, repo, &mockImages{}, &mockEmbedder{}, Config{})

	if _, err := svc.Run(context.Background(), annotations(1)); err == nil {
		t.Fatal("expected error")
	}
}
