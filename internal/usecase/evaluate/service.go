// Package evaluate measures text-to-image Recall@K over the dataset captions.
package evaluate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/dataset"
	"github.com/kailas-cloud/clipsearch/internal/metrics"
)

// Defaults for Config.
const (
	DefaultK             = 10
	DefaultProgressEvery = 100
)

// Config controls one evaluation run.
type Config struct {
	Collection    string
	K             int
	ProgressEvery int
	// Limit caps the number of queries; 0 means all annotations.
	Limit int
}

// Report holds the outcome of an evaluation run.
type Report struct {
	Queries  int
	Hits     int
	K        int
	Duration time.Duration
}

// Recall returns Hits / Queries, or 0 when no queries ran.
func (r Report) Recall() float64 {
	if r.Queries == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Queries)
}

// Service runs caption queries and checks the ground-truth image is retrieved.
type Service struct {
	repo   Repository
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates an evaluation service.
func New(repo Repository, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	return &Service{repo: repo, embed: embed, cfg: cfg, logger: logger}
}

// Run queries every annotation caption and counts a hit when the annotation's
// image id is among the top K raw candidates. Any query failure aborts the run.
func (s *Service) Run(ctx context.Context, anns []dataset.Annotation) (Report, error) {
	start := time.Now()
	rep := Report{K: s.cfg.K}
	if s.cfg.Limit > 0 && len(anns) > s.cfg.Limit {
		anns = anns[:s.cfg.Limit]
	}
	gauge := metrics.EvalRecall.WithLabelValues(strconv.Itoa(s.cfg.K))

	s.logger.Info("Evaluation started",
		zap.String("collection", s.cfg.Collection),
		zap.Int("queries", len(anns)),
		zap.Int("k", s.cfg.K),
	)

	for i := range anns {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("evaluation interrupted: %w", err)
		}

		hit, err := s.query(ctx, &anns[i])
		if err != nil {
			return rep, err
		}
		rep.Queries++
		if hit {
			rep.Hits++
		}

		if rep.Queries%s.cfg.ProgressEvery == 0 {
			gauge.Set(rep.Recall())
			s.logger.Info("Evaluation progress",
				zap.Int("queries", rep.Queries),
				zap.Int("total", len(anns)),
				zap.Float64("recall", rep.Recall()),
			)
		}
	}

	gauge.Set(rep.Recall())
	rep.Duration = time.Since(start)
	s.logger.Info("Evaluation complete",
		zap.String("collection", s.cfg.Collection),
		zap.Int("queries", rep.Queries),
		zap.Int("hits", rep.Hits),
		zap.Int("k", rep.K),
		zap.Float64("recall", rep.Recall()),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (s *Service) query(ctx context.Context, ann *dataset.Annotation) (bool, error) {
	emb, err := s.embed.Embed(ctx, ann.Caption)
	if err != nil {
		return false, fmt.Errorf("embed caption %d: %w", ann.ID, err)
	}

	cands, err := s.repo.Query(ctx, s.cfg.Collection, emb.Embedding, s.cfg.K)
	if err != nil {
		return false, fmt.Errorf("query caption %d: %w", ann.ID, err)
	}

	want := strconv.FormatInt(ann.ImageID, 10)
	for _, c := range cands {
		if c.ImageID == want {
			return true, nil
		}
	}
	return false, nil
}
