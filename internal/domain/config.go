package domain

// VectorConfig holds the vector index settings shared by ingestion and search.
type VectorConfig struct {
	Model           string
	Dimensions      int
	DistanceMetric  string
	Algorithm       string
	HNSWM           int
	HNSWEFConstruct int
	// QueryInstruction is prepended to text queries before embedding.
	QueryInstruction string
}

// DefaultVectorConfig returns the default configuration for CLIP ViT-B/32.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:           "openai/clip-vit-base-patch32",
		Dimensions:      512,
		DistanceMetric:  "cosine",
		Algorithm:       "hnsw",
		HNSWM:           16,
		HNSWEFConstruct: 200,
	}
}
