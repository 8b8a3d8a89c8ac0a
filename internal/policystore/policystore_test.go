package policystore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChunks = []Chunk{
	{PolicyName: "Standard Home Policy v2", Section: "Flood Exclusions", Content: "Flood Risk Zone 3 properties are declined for standard coverage."},
	{PolicyName: "Standard Home Policy v2", Section: "Pre-1900 Property Conditions", Content: "Properties constructed before 1900 require a structural survey."},
	{PolicyName: "Standard Home Policy v2", Section: "Modern Construction Discount", Content: "Properties built after 2000 with good EPC ratings earn a discount."},
	{PolicyName: "Standard Home Policy v2", Section: "High Development Density Conditions", Content: "High planning activity areas carry construction and subsidence risk."},
}

// stubEmbedder returns canned vectors, or an error when broken. Safe for
// concurrent use, like the real client.
type stubEmbedder struct {
	vectors map[string][]float32

	mu     sync.Mutex
	broken bool
	calls  int
}

func (s *stubEmbedder) CreateEmbeddings(_ context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	s.mu.Lock()
	s.calls++
	broken := s.broken
	s.mu.Unlock()
	if broken {
		return openai.EmbeddingResponse{}, errors.New("embedding backend down")
	}
	texts := req.Convert().Input.([]string)
	resp := openai.EmbeddingResponse{}
	for i, text := range texts {
		v, ok := s.vectors[text]
		if !ok {
			v = []float32{0, 0, 1}
		}
		resp.Data = append(resp.Data, openai.Embedding{Index: i, Embedding: v})
	}
	return resp, nil
}

func TestRetrieve_KeywordFallbackRanksByOverlap(t *testing.T) {
	s := NewStore(testChunks, WithTopK(2))

	got := s.Retrieve(context.Background(), "flood zone 3 declined coverage")
	require.Len(t, got, 2)
	assert.Equal(t, "Flood Exclusions", got[0].Section)
}

func TestRetrieve_KeywordFallbackIsDeterministic(t *testing.T) {
	s := NewStore(testChunks, WithTopK(3))

	first := s.Retrieve(context.Background(), "planning activity construction")
	for range 5 {
		assert.Equal(t, first, s.Retrieve(context.Background(), "planning activity construction"))
	}
}

func TestRetrieve_EmbeddingRanksByCosine(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"flood zone query":   {1, 0, 0},
		testChunks[0].Text(): {0.9, 0.1, 0},
		testChunks[1].Text(): {0, 1, 0},
		testChunks[2].Text(): {0, 0.5, 0.5},
		testChunks[3].Text(): {0.1, 0.9, 0},
	}}
	s := NewStore(testChunks, WithEmbedder(emb, "test-embed"), WithTopK(1))

	got := s.Retrieve(context.Background(), "flood zone query")
	require.Len(t, got, 1)
	assert.Equal(t, "Flood Exclusions", got[0].Section)
}

func TestRetrieve_CorpusEmbeddedOnce(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	s := NewStore(testChunks, WithEmbedder(emb, "test-embed"))

	s.Retrieve(context.Background(), "first")
	s.Retrieve(context.Background(), "second")

	// one corpus embed plus one query embed per call
	assert.Equal(t, 3, emb.calls)
}

func TestRetrieve_ConcurrentCallsShareOneCorpusEmbed(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"flood zone query":   {1, 0, 0},
		testChunks[0].Text(): {0.9, 0.1, 0},
	}}
	s := NewStore(testChunks, WithEmbedder(emb, "test-embed"), WithTopK(1))

	const callers = 8
	results := make([][]Chunk, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.Retrieve(context.Background(), "flood zone query")
		}()
	}
	wg.Wait()

	for _, got := range results {
		require.Len(t, got, 1)
		assert.Equal(t, "Flood Exclusions", got[0].Section)
	}
	// one corpus embed plus one query embed per caller
	assert.Equal(t, callers+1, emb.calls)
}

func TestRetrieve_RetriesCorpusEmbedAfterFailure(t *testing.T) {
	emb := &stubEmbedder{broken: true, vectors: map[string][]float32{
		"flood zone query":   {1, 0, 0},
		testChunks[0].Text(): {0.9, 0.1, 0},
	}}
	s := NewStore(testChunks, WithEmbedder(emb, "test-embed"), WithTopK(1))

	// first call degrades to keyword ranking
	got := s.Retrieve(context.Background(), "flood zone query")
	require.NotEmpty(t, got)

	emb.mu.Lock()
	emb.broken = false
	emb.mu.Unlock()

	got = s.Retrieve(context.Background(), "flood zone query")
	require.Len(t, got, 1)
	assert.Equal(t, "Flood Exclusions", got[0].Section)
}

func TestRetrieve_FallsBackWhenEmbedderFails(t *testing.T) {
	emb := &stubEmbedder{broken: true}
	s := NewStore(testChunks, WithEmbedder(emb, "test-embed"), WithTopK(2))

	got := s.Retrieve(context.Background(), "flood zone declined")
	require.Len(t, got, 2)
	assert.Equal(t, "Flood Exclusions", got[0].Section)
}

func TestLoad_ParsesYAMLCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	body := `policies:
  - policy_name: "Test Policy"
    section: "Flood"
    content: "Zone 3 declined."
  - policy_name: "Test Policy"
    section: "Age"
    content: "Pre-1900 surveyed."
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	got := s.Retrieve(context.Background(), "zone declined")
	require.NotEmpty(t, got)
	assert.Equal(t, "Test Policy - Flood", got[0].Citation())
}

func TestLoad_DirectoryMergesFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := `policies:
  - policy_name: "Commercial Conversion Policy v1"
    section: "Mixed Use"
    content: "Refer mixed-use conversions."
`
	second := `policies:
  - policy_name: "Standard Home Policy v2"
    section: "Flood Exclusions"
    content: "Zone 3 excluded."
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "commercial.yaml"), []byte(first), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "standard.yaml"), []byte(second), 0o644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	// lexical file order keeps the corpus deterministic
	assert.Equal(t, "Commercial Conversion Policy v1 - Mixed Use", s.chunks[0].Citation())
}

func TestLoad_RejectsEmptyCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies: []\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, cosine(nil, nil))
}
