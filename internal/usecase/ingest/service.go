// Package ingest embeds dataset images and stores them as searchable records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/dataset"
	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/metrics"
)

// Defaults for Config.
const (
	DefaultBatchSize       = 50
	DefaultLogMissingEvery = 100
)

// Config controls one ingestion run.
type Config struct {
	Collection string
	BatchSize  int
	// Force ignores an existing completion marker.
	Force bool
	// LogMissingEvery logs every n-th missing image.
	LogMissingEvery int
}

// Report summarizes an ingestion run.
type Report struct {
	Total           int
	Processed       int
	Missing         int
	Failed          int
	Stored          int
	Duration        time.Duration
	AlreadyIngested bool
}

// Skipped returns annotations that produced no record.
func (r Report) Skipped() int { return r.Missing + r.Failed }

// SuccessRate returns Processed / (Processed + Skipped), or 0 when nothing was handled.
func (r Report) SuccessRate() float64 {
	n := r.Processed + r.Skipped()
	if n == 0 {
		return 0
	}
	return float64(r.Processed) / float64(n)
}

// Service runs the ingestion pipeline sequentially.
type Service struct {
	repo   Repository
	paths  PathResolver
	images ImageLoader
	embed  ImageEmbedder
	cfg    Config
	logger *zap.Logger
}

// New creates an ingestion service.
func New(
	repo Repository, paths PathResolver, images ImageLoader, embed ImageEmbedder,
	cfg Config, logger *zap.Logger,
) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LogMissingEvery <= 0 {
		cfg.LogMissingEvery = DefaultLogMissingEvery
	}
	return &Service{repo: repo, paths: paths, images: images, embed: embed, cfg: cfg, logger: logger}
}

// Run ingests annotations in order. It is a no-op when the collection carries
// a completion marker, unless Force is set. Records are keyed by annotation
// id, so rerunning after a crash overwrites instead of duplicating.
func (s *Service) Run(ctx context.Context, anns []dataset.Annotation) (Report, error) {
	start := time.Now()
	rep := Report{Total: len(anns)}
	col := s.cfg.Collection

	if !s.cfg.Force {
		marker, err := s.repo.IngestMarker(ctx, col)
		if err != nil {
			return rep, fmt.Errorf("read ingest marker: %w", err)
		}
		if marker != nil {
			n, err := s.repo.Count(ctx, col)
			switch {
			case errors.Is(err, domain.ErrCollectionNotFound) || (err == nil && n == 0):
				// stale marker: the collection was dropped or emptied
				s.logger.Warn("Ingest marker found but collection is missing or empty, re-ingesting",
					zap.String("collection", col),
					zap.Time("completed_at", marker.CompletedAt),
				)
			case err != nil:
				return rep, fmt.Errorf("count %s: %w", col, err)
			default:
				rep.AlreadyIngested = true
				rep.Stored = n
				s.logger.Info("Collection already ingested, skipping",
					zap.String("collection", col),
					zap.Int("documents", n),
					zap.Time("completed_at", marker.CompletedAt),
				)
				return rep, nil
			}
		}
	}

	if err := s.repo.EnsureCollection(ctx, col); err != nil {
		return rep, fmt.Errorf("ensure collection: %w", err)
	}

	s.logger.Info("Ingestion started",
		zap.String("collection", col),
		zap.Int("annotations", len(anns)),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Bool("force", s.cfg.Force),
	)

	batch := make([]domain.Record, 0, s.cfg.BatchSize)
	for i := range anns {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("ingestion interrupted: %w", err)
		}

		rec, err := s.buildRecord(ctx, &anns[i])
		switch {
		case errors.Is(err, domain.ErrImageNotFound):
			rep.Missing++
			metrics.IngestItemsTotal.WithLabelValues("missing").Inc()
			if rep.Missing%s.cfg.LogMissingEvery == 0 {
				s.logger.Warn("Images missing",
					zap.Int("missing", rep.Missing),
					zap.Int64("image_id", anns[i].ImageID),
				)
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return rep, fmt.Errorf("ingestion interrupted: %w", ctx.Err())
			}
			rep.Failed++
			metrics.IngestItemsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("Annotation failed",
				zap.Int64("annotation_id", anns[i].ID),
				zap.Int64("image_id", anns[i].ImageID),
				zap.Error(err),
			)
			continue
		}

		batch = append(batch, rec)
		rep.Processed++
		metrics.IngestItemsTotal.WithLabelValues("processed").Inc()

		if len(batch) >= s.cfg.BatchSize {
			if err := s.flush(ctx, batch); err != nil {
				return rep, err
			}
			batch = batch[:0]
			s.logger.Info("Ingestion progress",
				zap.Int("processed", rep.Processed),
				zap.Int("handled", i+1),
				zap.Int("total", rep.Total),
			)
		}
	}

	if err := s.flush(ctx, batch); err != nil {
		return rep, err
	}

	if err := s.repo.MarkIngested(ctx, col, rep.Processed); err != nil {
		return rep, fmt.Errorf("write ingest marker: %w", err)
	}

	n, err := s.repo.Count(ctx, col)
	if err != nil {
		s.logger.Warn("Count after ingestion failed", zap.String("collection", col), zap.Error(err))
		n = rep.Processed
	}
	rep.Stored = n
	rep.Duration = time.Since(start)

	s.logger.Info("Ingestion complete",
		zap.String("collection", col),
		zap.Int("total", rep.Total),
		zap.Int("processed", rep.Processed),
		zap.Int("missing", rep.Missing),
		zap.Int("failed", rep.Failed),
		zap.Float64("success_rate", rep.SuccessRate()),
		zap.Int("documents", rep.Stored),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (s *Service) buildRecord(ctx context.Context, ann *dataset.Annotation) (domain.Record, error) {
	img, err := s.images.File(s.paths.AbsPath(ann.ImageID))
	if err != nil {
		return domain.Record{}, fmt.Errorf("load image %d: %w", ann.ImageID, err)
	}

	emb, err := s.embed.EmbedImage(ctx, img)
	if err != nil {
		return domain.Record{}, fmt.Errorf("embed image %d: %w", ann.ImageID, err)
	}

	return domain.Record{
		ID:        strconv.FormatInt(ann.ID, 10),
		Embedding: emb.Embedding,
		Caption:   ann.Caption,
		ImageID:   strconv.FormatInt(ann.ImageID, 10),
		ImagePath: s.paths.WebPath(ann.ImageID),
	}, nil
}

func (s *Service) flush(ctx context.Context, batch []domain.Record) error {
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	if err := s.repo.UpsertBatch(ctx, s.cfg.Collection, batch); err != nil {
		return fmt.Errorf("write batch of %d: %w", len(batch), err)
	}
	metrics.IngestBatchesTotal.Inc()
	metrics.IngestBatchDuration.Observe(time.Since(start).Seconds())
	return nil
}
