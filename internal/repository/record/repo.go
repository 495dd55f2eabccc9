// Package record stores annotation records in a Redis or Valkey FT index.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/clipsearch/internal/db"
	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/candidate"
)

// store is the consumer interface for records (ISP).
//
//nolint:interfacebloat // record repo needs hash, kv, index and search operations
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index string) (int, error)
}

// Repo implements the ingest, search, evaluate and health repositories.
type Repo struct {
	store store
	cfg   domain.VectorConfig
	now   func() time.Time
}

// New creates a record repository.
func New(s store, cfg domain.VectorConfig) *Repo {
	return &Repo{store: s, cfg: cfg, now: time.Now}
}

// EnsureCollection creates the FT index if absent and reuses it otherwise.
func (r *Repo) EnsureCollection(ctx context.Context, collection string) error {
	exists, err := r.store.IndexExists(ctx, indexName(collection))
	if err != nil {
		return fmt.Errorf("check index %s: %w", collection, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(collection, r.cfg)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		// a concurrent ingest may have won the race
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", collection, err)
	}
	return nil
}

// UpsertBatch writes records in one pipelined round-trip. Records are keyed
// by annotation id, so rewriting an id replaces it.
func (r *Repo) UpsertBatch(ctx context.Context, collection string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(records))
	for i := range records {
		rec := &records[i]
		if err := rec.Validate(); err != nil {
			return err
		}
		if r.cfg.Dimensions > 0 && len(rec.Embedding) != r.cfg.Dimensions {
			return fmt.Errorf("record %s: embedding has %d dimensions, index expects %d",
				rec.ID, len(rec.Embedding), r.cfg.Dimensions)
		}
		items[i] = db.HashSetItem{
			Key:    recordKey(collection, rec.ID),
			Fields: buildHashFields(rec),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d records into %s: %w", len(records), collection, err)
	}
	return nil
}

// Count returns the number of stored records. A missing index yields
// domain.ErrCollectionNotFound.
func (r *Repo) Count(ctx context.Context, collection string) (int, error) {
	exists, err := r.store.IndexExists(ctx, indexName(collection))
	if err != nil {
		return 0, fmt.Errorf("check index %s: %w", collection, err)
	}
	if !exists {
		return 0, fmt.Errorf("%s: %w", collection, domain.ErrCollectionNotFound)
	}

	n, err := r.store.SearchCount(ctx, indexName(collection))
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, fmt.Errorf("%s: %w", collection, domain.ErrCollectionNotFound)
		}
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Query returns the n nearest records to vector in ascending distance order.
func (r *Repo) Query(
	ctx context.Context, collection string, vector []float32, n int,
) ([]candidate.Candidate, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName(collection),
		Vector:       vector,
		K:            n,
		ReturnFields: returnFields,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, fmt.Errorf("%s: %w", collection, domain.ErrCollectionNotFound)
		}
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return toCandidates(sr), nil
}

// IngestMarker returns the completed-ingestion marker, or nil if absent.
func (r *Repo) IngestMarker(ctx context.Context, collection string) (*domain.IngestMarker, error) {
	data, err := r.store.Get(ctx, markerKey(collection))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get marker %s: %w", collection, err)
	}

	var m domain.IngestMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse marker %s: %w", collection, err)
	}
	return &m, nil
}

// MarkIngested writes the completed-ingestion marker.
func (r *Repo) MarkIngested(ctx context.Context, collection string, records int) error {
	data, err := json.Marshal(domain.IngestMarker{Records: records, CompletedAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := r.store.Set(ctx, markerKey(collection), data); err != nil {
		return fmt.Errorf("set marker %s: %w", collection, err)
	}
	return nil
}
