package domain

import (
	"fmt"
	"strings"
	"time"
)

// KeyPrefix namespaces every key clipsearch writes to a shared store.
const KeyPrefix = "clipsearch:"

// Record is one stored annotation: the embedding of its image plus the
// caption and image identity used for deduplication and display.
// ID is unique per annotation, not per image.
type Record struct {
	ID        string
	Embedding []float32
	Caption   string
	ImageID   string
	ImagePath string
}

// Validate checks the fields every backend requires.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if r.ImageID == "" {
		return fmt.Errorf("record %s: image id is required", r.ID)
	}
	if len(r.Embedding) == 0 {
		return fmt.Errorf("record %s: embedding is required", r.ID)
	}
	return nil
}

// CollectionName derives the collection for a dataset split ("val" -> "image_search_val").
func CollectionName(split string) string {
	return "image_search_" + strings.ToLower(split)
}

// IngestMarker records a completed ingestion run. Its presence, not the
// document count, is what makes ingestion skip a collection.
type IngestMarker struct {
	Records     int       `json:"records"`
	CompletedAt time.Time `json:"completed_at"`
}
