package db

import (
	"encoding/binary"
	"fmt"
	"math"
)

// VectorToBlob encodes a vector as a little-endian FLOAT32 blob, the format
// FT vector fields expect both in hashes and in query PARAMS.
func VectorToBlob(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// BlobToVector decodes a little-endian FLOAT32 blob.
func BlobToVector(b string) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(b[i*4 : i*4+4])))
	}
	return v, nil
}
