package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpwise/corpwise/internal/repository"
	"github.com/corpwise/corpwise/internal/tenant"
	"github.com/corpwise/corpwise/internal/vectorstore"
)

type fakeGateway struct{}

func (fakeGateway) Embed(ctx context.Context, text string, dimension int) ([]float32, error) {
	return make([]float32, dimension), nil
}

// fakeVectorStore serves canned results per collection key.
type fakeVectorStore struct {
	results map[string][]vectorstore.SearchResult
}

func (f *fakeVectorStore) CreateCollection(ctx context.Context, collection string, dimension int) error {
	return nil
}
func (f *fakeVectorStore) DeleteCollection(ctx context.Context, collection string) error { return nil }
func (f *fakeVectorStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	_, ok := f.results[collection]
	return ok, nil
}
func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]vectorstore.SearchResult, error) {
	return f.results[collection], nil
}
func (f *fakeVectorStore) DeleteByDocID(ctx context.Context, collection, docID string) error {
	return nil
}

type fakeKeywordRepo struct {
	matches map[string][]repository.KeywordMatch
}

func (f *fakeKeywordRepo) Search(ctx context.Context, namespace, query string, limit int) ([]repository.KeywordMatch, error) {
	return f.matches[namespace], nil
}

func newTestPipeline(store *fakeVectorStore, kw *fakeKeywordRepo, ce *fakeCrossEncoder) *Pipeline {
	semantic := NewSemanticRetriever(fakeGateway{}, store, 0.75, 0.60, nil)
	var keyword *KeywordRetriever
	if kw != nil {
		keyword = NewKeywordRetriever(kw, 3)
	}
	fuser := NewFuser(FuserConfig{}, nil)
	reranker := NewConditionalReranker(ce, RerankConfig{Timeout: time.Second}, nil)
	estimator := NewEstimator(EstimatorConfig{})
	return NewPipeline(semantic, keyword, fuser, reranker, estimator, nil)
}

func acmeNamespace() tenant.Namespace {
	return tenant.Namespace{Key: "acme", Dimension: 384}
}

func TestPipelineEmptyRetrievalIsEmptyResult(t *testing.T) {
	p := newTestPipeline(&fakeVectorStore{results: map[string][]vectorstore.SearchResult{}}, nil, &fakeCrossEncoder{})

	q := NewQuery("what is the refund policy", acmeNamespace(), 8)
	result, err := p.Retrieve(context.Background(), &q)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Empty(t, result.Context)
	assert.Empty(t, result.Sources)
	assert.False(t, result.CEUsed)
	assert.Zero(t, result.Confidence)
}

func TestPipelineDualFloors(t *testing.T) {
	ns := acmeNamespace()
	store := &fakeVectorStore{results: map[string][]vectorstore.SearchResult{
		ns.CollectionKey(): {
			{Text: "uploaded content", Source: "upload.pdf", DocID: "d1", Score: 0.65},
			{Text: "baseline content", Source: "handbook", Score: 0.70},
		},
	}}
	p := newTestPipeline(store, nil, &fakeCrossEncoder{scores: []float32{8}})

	q := NewQuery("uploaded content question", ns, 8)
	result, err := p.Retrieve(context.Background(), &q)
	require.NoError(t, err)

	// The uploaded chunk clears its 0.60 floor; the baseline chunk misses
	// its 0.75 floor and is dropped.
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "upload.pdf", result.Chunks[0].Source)
	assert.True(t, result.Chunks[0].Uploaded())
}

func TestPipelineTenantIsolation(t *testing.T) {
	acme := tenant.Namespace{Key: "acme", Dimension: 384}
	globex := tenant.Namespace{Key: "globex", Dimension: 768}

	store := &fakeVectorStore{results: map[string][]vectorstore.SearchResult{
		acme.CollectionKey(): {
			{Text: "acme secret policy", Source: "acme-docs", Score: 0.9},
		},
		globex.CollectionKey(): {
			{Text: "globex secret policy", Source: "globex-docs", Score: 0.9},
		},
	}}
	kw := &fakeKeywordRepo{matches: map[string][]repository.KeywordMatch{
		"acme":   {{Text: "acme keyword chunk", Source: "acme-kw", Score: 1.0}},
		"globex": {{Text: "globex keyword chunk", Source: "globex-kw", Score: 1.0}},
	}}
	p := newTestPipeline(store, kw, &fakeCrossEncoder{scores: []float32{8, 7, 6, 5}})

	q := NewQuery("secret policy", acme, 8)
	result, err := p.Retrieve(context.Background(), &q)
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)

	for _, c := range result.Chunks {
		assert.NotContains(t, c.Text, "globex", "evidence crossed tenant boundary")
		assert.NotContains(t, c.Source, "globex")
	}
}

func TestPipelineSkipHeuristicEndToEnd(t *testing.T) {
	// A boosted uploaded chunk dominates the ranking, so the skip
	// heuristic fires and the cross encoder never runs.
	ns := acmeNamespace()
	store := &fakeVectorStore{results: map[string][]vectorstore.SearchResult{
		ns.CollectionKey(): {
			{Text: "dominant uploaded chunk", Source: "upload.pdf", DocID: "d1", Score: 0.95},
			{Text: "weaker chunk", Source: "faq", Score: 0.80},
		},
	}}
	ce := &fakeCrossEncoder{scores: []float32{1, 2}}
	p := newTestPipeline(store, nil, ce)

	q := NewQuery("dominant question", ns, 8)
	result, err := p.Retrieve(context.Background(), &q)
	require.NoError(t, err)

	assert.False(t, result.CEUsed)
	assert.Equal(t, 0, ce.calls)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "upload.pdf", result.Chunks[0].Source)
}

func TestPipelineRerankDisabled(t *testing.T) {
	ns := acmeNamespace()
	store := &fakeVectorStore{results: map[string][]vectorstore.SearchResult{
		ns.CollectionKey(): {
			{Text: "first chunk", Source: "handbook", Score: 0.80},
			{Text: "second chunk", Source: "faq", Score: 0.78},
		},
	}}
	ce := &fakeCrossEncoder{scores: []float32{1, 9}}
	p := newTestPipeline(store, nil, ce)

	q := NewQuery("refund question", ns, 8)
	q.DisableRerank = true
	result, err := p.Retrieve(context.Background(), &q)
	require.NoError(t, err)

	assert.False(t, result.CEUsed)
	assert.Equal(t, 0, ce.calls)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "handbook", result.Chunks[0].Source, "fused order stands when reranking is off")
}

func TestPipelineQueryNormalizationStripsTenantName(t *testing.T) {
	q := NewQuery("What is the Acme refund policy?", acmeNamespace(), 8)
	assert.Equal(t, "what is the refund policy?", q.NormalizedText)
	assert.Equal(t, "What is the Acme refund policy?", q.RawText)

	// Idempotent: normalizing the normalized text changes nothing.
	q2 := NewQuery(q.NormalizedText, acmeNamespace(), 8)
	assert.Equal(t, q.NormalizedText, q2.NormalizedText)
}

func TestPipelineSemanticOnlyEvidence(t *testing.T) {
	ns := acmeNamespace()
	store := &fakeVectorStore{results: map[string][]vectorstore.SearchResult{
		ns.CollectionKey(): {
			{Text: "semantic only", Source: "handbook", Score: 0.9},
		},
	}}
	p := newTestPipeline(store, &fakeKeywordRepo{}, &fakeCrossEncoder{scores: []float32{8}})

	q := NewQuery("semantic only question", ns, 8)
	result, err := p.Retrieve(context.Background(), &q)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "handbook", result.Chunks[0].Source)
}
