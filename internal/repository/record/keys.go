package record

import "github.com/kailas-cloud/clipsearch/internal/domain"

const markerSuffix = "__ingested"

// collectionPrefix is the hash key prefix covered by the collection's FT index.
func collectionPrefix(collection string) string {
	return domain.KeyPrefix + collection + ":"
}

func indexName(collection string) string {
	return collectionPrefix(collection) + "idx"
}

func recordKey(collection, id string) string {
	return collectionPrefix(collection) + id
}

// markerKey shares the record prefix but is a plain string key, which the
// HASH-backed index never picks up.
func markerKey(collection string) string {
	return collectionPrefix(collection) + markerSuffix
}
