package record

import (
	"fmt"

	"github.com/kailas-cloud/clipsearch/internal/db"
	"github.com/kailas-cloud/clipsearch/internal/domain"
)

// buildIndex creates the FT index definition for a record collection:
// the vector field aliased "vector" plus image_id as a TAG.
func buildIndex(collection string, cfg domain.VectorConfig) (*db.IndexDefinition, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}

	metric := db.DistanceCosine
	if cfg.DistanceMetric != "" {
		m, err := db.ParseDistanceMetric(cfg.DistanceMetric)
		if err != nil {
			return nil, err
		}
		metric = m
	}

	algo := db.VectorHNSW
	if cfg.Algorithm != "" {
		a, err := db.ParseVectorAlgorithm(cfg.Algorithm)
		if err != nil {
			return nil, err
		}
		algo = a
	}

	b := db.NewIndex(indexName(collection)).
		Prefix(collectionPrefix(collection)).
		Tag(fieldImageID)

	switch algo {
	case db.VectorFlat:
		b = b.VectorFlat(fieldVector, "vector", cfg.Dimensions, metric)
	default:
		b = b.VectorHNSW(fieldVector, "vector", cfg.Dimensions, metric, cfg.HNSWM, cfg.HNSWEFConstruct)
	}

	return b.Build()
}
