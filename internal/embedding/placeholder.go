package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"

	"github.com/khanglvm/tool-finder-mcp/internal/similarity"
)

// Placeholder produces deterministic unit vectors seeded by a hash of the
// input text. Equal texts get equal vectors.
type Placeholder struct {
	model string
	dim   int
}

// NewPlaceholder creates a placeholder embedder.
func NewPlaceholder(model string, dimension int) *Placeholder {
	if model == "" {
		model = "placeholder"
	}
	if dimension <= 0 {
		dimension = defaultDimension
	}
	return &Placeholder{model: model, dim: dimension}
}

// Embed returns the vector for text.
func (p *Placeholder) Embed(_ context.Context, text string) ([]float32, error) {
	hash := sha256.Sum256([]byte(text))
	seed := int64(binary.LittleEndian.Uint64(hash[:8])) //nolint:gosec // seed only
	rng := rand.New(rand.NewSource(seed))               //nolint:gosec // not used for security

	vec := make([]float32, p.dim)
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}
	return similarity.Normalize(vec), nil
}

// Model returns the model identifier.
func (p *Placeholder) Model() string { return p.model }

// Dimension returns the vector length.
func (p *Placeholder) Dimension() int { return p.dim }
