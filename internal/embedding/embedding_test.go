package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingIsDeterministicAndNormalised(t *testing.T) {
	h := NewHashing(64)
	first, err := h.Embed(context.Background(), []string{"The quick brown fox", ""})
	require.NoError(t, err)
	second, err := h.Embed(context.Background(), []string{"the QUICK brown fox!"})
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Len(t, first[0], 64)
	assert.Equal(t, first[0], second[0])

	var norm float64
	for _, v := range first[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	for _, v := range first[1] {
		assert.Zero(t, v)
	}
}

func TestNewHashingDefaultsDimension(t *testing.T) {
	assert.Equal(t, DefaultDimension, NewHashing(0).Dimension)

	vectors, err := Hashing{}.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vectors[0], DefaultDimension)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Tokenize("Hello, world! 42"))
	assert.Empty(t, Tokenize("  ...  "))
}

type stubProvider struct{}

func (stubProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func TestFromProvider(t *testing.T) {
	_, err := FromProvider(nil)
	assert.ErrorIs(t, err, ErrNoProvider)

	e, err := FromProvider(stubProvider{})
	require.NoError(t, err)
	out, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
