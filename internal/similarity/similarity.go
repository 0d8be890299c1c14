// Package similarity holds the vector math shared by the store and the
// indexing pipeline: cosine similarity and the float32 blob encoding used to
// persist embeddings.
package similarity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrLengthMismatch is returned when two vectors differ in dimension.
var ErrLengthMismatch = errors.New("vector length mismatch")

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Identical vectors score exactly 1 and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	identical := true
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		if a[i] != b[i] {
			identical = false
		}
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	if identical {
		return 1
	}
	return clamp(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// BlobDistance computes the cosine distance between two encoded vectors
// without decoding them into slices.
func BlobDistance(a, b []byte) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d and %d bytes", ErrLengthMismatch, len(a), len(b))
	}
	if len(a)%4 != 0 {
		return 0, fmt.Errorf("malformed vector blob of %d bytes", len(a))
	}
	if len(a) == 0 {
		return 1, nil
	}

	identical := true
	var dot, normA, normB float64
	for i := 0; i < len(a); i += 4 {
		ua, ub := binary.LittleEndian.Uint32(a[i:]), binary.LittleEndian.Uint32(b[i:])
		if ua != ub {
			identical = false
		}
		ai := float64(math.Float32frombits(ua))
		bi := float64(math.Float32frombits(ub))
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 1, nil
	}
	if identical {
		return 0, nil
	}
	return 1 - clamp(dot/(math.Sqrt(normA)*math.Sqrt(normB))), nil
}

// Encode serializes a vector as little-endian float32 values.
func Encode(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// Normalize scales vec to unit length in place and returns it.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
