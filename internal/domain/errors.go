package domain

import "errors"

var (
	// ErrCollectionNotFound signals that the vector collection is missing or empty.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrInvalidQuery signals a malformed search request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrImageNotFound signals that an annotation's image file is absent.
	ErrImageNotFound = errors.New("image not found")
	// ErrInvalidImage signals an image that cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")
)
