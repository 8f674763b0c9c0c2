package embedder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGateway struct {
	calls int
}

func (g *countingGateway) Embed(ctx context.Context, text string, dimension int) ([]float32, error) {
	g.calls++
	v := make([]float32, dimension)
	for i := range v {
		v[i] = float32(len(text))
	}
	return v, nil
}

func TestCachingGatewayHitDeterminism(t *testing.T) {
	backend := &countingGateway{}
	c := NewCachingGateway(backend, 16, time.Hour)
	ctx := context.Background()

	first, err := c.Embed(ctx, "refund policy", 384)
	require.NoError(t, err)
	second, err := c.Embed(ctx, "refund policy", 384)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.calls, "second call must come from cache")
}

func TestCachingGatewayKeyedByDimension(t *testing.T) {
	backend := &countingGateway{}
	c := NewCachingGateway(backend, 16, time.Hour)
	ctx := context.Background()

	v384, err := c.Embed(ctx, "refund policy", 384)
	require.NoError(t, err)
	v768, err := c.Embed(ctx, "refund policy", 768)
	require.NoError(t, err)

	assert.Len(t, v384, 384)
	assert.Len(t, v768, 768)
	assert.Equal(t, 2, backend.calls)
	assert.Equal(t, 2, c.Len())
}

func TestCachingGatewayEvictsAtCapacity(t *testing.T) {
	backend := &countingGateway{}
	c := NewCachingGateway(backend, 2, time.Hour)
	ctx := context.Background()

	_, err := c.Embed(ctx, "a", 384)
	require.NoError(t, err)
	_, err = c.Embed(ctx, "b", 384)
	require.NoError(t, err)
	_, err = c.Embed(ctx, "c", 384)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
}

func TestContentKeyStable(t *testing.T) {
	assert.Equal(t, ContentKey("q", 384), ContentKey("q", 384))
	assert.NotEqual(t, ContentKey("q", 384), ContentKey("q", 768))
	assert.NotEqual(t, ContentKey("q", 384), ContentKey("p", 384))
}
