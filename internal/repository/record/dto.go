package record

import (
	"github.com/kailas-cloud/clipsearch/internal/db"
	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/domain/search/candidate"
)

// Hash field names of a stored record.
const (
	fieldVector    = "__vector"
	fieldCaption   = "__content"
	fieldImageID   = "image_id"
	fieldImagePath = "image_path"
)

// returnFields are fetched with every KNN hit; the vector itself is not.
var returnFields = []string{fieldCaption, fieldImageID, fieldImagePath}

// buildHashFields converts a Record into a flat map for HSET.
func buildHashFields(r *domain.Record) map[string]string {
	return map[string]string{
		fieldVector:    db.VectorToBlob(r.Embedding),
		fieldCaption:   r.Caption,
		fieldImageID:   r.ImageID,
		fieldImagePath: r.ImagePath,
	}
}

// toCandidates maps KNN hits to candidates, preserving order.
func toCandidates(sr *db.SearchResult) []candidate.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	out := make([]candidate.Candidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		out = append(out, candidate.Candidate{
			ImageID:   e.Fields[fieldImageID],
			ImagePath: e.Fields[fieldImagePath],
			Caption:   e.Fields[fieldCaption],
			Distance:  e.Score,
		})
	}
	return out
}
