// Package vector provides the binary vector payload codec and the similarity
// primitives used by the search engine.
//
// Stored payloads are length-prefixed: a little-endian uint32 dimension
// header followed by dimension little-endian float32 values. The encoding
// round-trips any finite vector losslessly and is self-describing, so readers
// never need out-of-band dimension metadata.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes v into the length-prefixed binary payload format.
func Encode(v []float32) []byte {
	buf := make([]byte, 4+4*len(v))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(v)))
	for i, val := range v {
		binary.LittleEndian.PutUint32(buf[4+i*4:], math.Float32bits(val))
	}
	return buf
}

// Decode parses a payload produced by Encode. It rejects truncated or
// malformed payloads instead of guessing.
func Decode(blob []byte) ([]float32, error) {
	if len(blob) < 4 {
		return nil, fmt.Errorf("vector payload too short: %d bytes", len(blob))
	}
	dim := binary.LittleEndian.Uint32(blob[0:4])
	want := 4 + 4*int(dim)
	if len(blob) != want {
		return nil, fmt.Errorf("vector payload size mismatch: dim %d wants %d bytes, have %d", dim, want, len(blob))
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4+i*4:]))
	}
	return v, nil
}

// Dot returns the plain dot product of a and b. The embedding space is
// defined so that dot product is the similarity metric; no normalization
// is applied. Mismatched lengths score zero.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Normalize returns v scaled to unit length. Zero vectors are returned
// unchanged. Converts dot-product scores into cosine similarity when a
// provider emits unnormalized vectors.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
