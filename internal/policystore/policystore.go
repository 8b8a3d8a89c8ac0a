// Package policystore holds the underwriting policy corpus and retrieves the
// guideline chunks most relevant to an assessment. Ranking uses embedding
// cosine similarity when an embedding endpoint is configured, with a
// deterministic keyword-overlap fallback otherwise.
package policystore

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/aurea-hq/underwriting/internal/ctxlog"
	"github.com/aurea-hq/underwriting/internal/fsutil"
)

// Chunk is one retrievable section of a policy document.
type Chunk struct {
	PolicyName string `yaml:"policy_name"`
	Section    string `yaml:"section"`
	Content    string `yaml:"content"`
}

// Citation renders the chunk reference used in assessment output.
func (c Chunk) Citation() string {
	return fmt.Sprintf("%s - %s", c.PolicyName, c.Section)
}

// Text renders the chunk as prompt context.
func (c Chunk) Text() string {
	return fmt.Sprintf("[%s] %s:\n%s", c.PolicyName, c.Section, c.Content)
}

// Embedder produces embedding vectors for texts. *openai.Client satisfies it.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Store is the in-memory policy corpus. It is safe for concurrent use.
type Store struct {
	chunks   []Chunk
	embedder Embedder
	model    openai.EmbeddingModel
	topK     int

	mu      sync.Mutex
	vectors [][]float32 // parallel to chunks, nil until first embed
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedder enables embedding-based ranking using the given client and
// model.
func WithEmbedder(e Embedder, model string) Option {
	return func(s *Store) {
		s.embedder = e
		s.model = openai.EmbeddingModel(model)
	}
}

// WithTopK overrides the number of chunks returned per query.
func WithTopK(k int) Option {
	return func(s *Store) { s.topK = k }
}

// Load reads the policy corpus from a YAML file, or from every YAML file
// under a directory. Chunks keep file order; directories are walked in
// lexical order so retrieval stays deterministic.
func Load(path string, opts ...Option) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy corpus: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = fsutil.FindFilesByExtension(path, ".yaml")
		if err != nil {
			return nil, fmt.Errorf("scanning policy corpus dir %q: %w", path, err)
		}
	}

	var chunks []Chunk
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading policy corpus: %w", err)
		}
		var doc struct {
			Policies []Chunk `yaml:"policies"`
		}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing policy corpus %q: %w", file, err)
		}
		chunks = append(chunks, doc.Policies...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("policy corpus %q contains no policies", path)
	}
	return NewStore(chunks, opts...), nil
}

// NewStore builds a Store over the given chunks.
func NewStore(chunks []Chunk, opts ...Option) *Store {
	s := &Store{chunks: chunks, topK: 3}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len reports the corpus size.
func (s *Store) Len() int { return len(s.chunks) }

// Retrieve returns the topK chunks most relevant to the query, best first.
// When embedding fails or no embedder is configured, ranking falls back to
// keyword overlap so retrieval never errors out with a non-empty corpus.
func (s *Store) Retrieve(ctx context.Context, query string) []Chunk {
	logger := ctxlog.FromContext(ctx)

	if s.embedder != nil {
		chunks, err := s.retrieveByEmbedding(ctx, query)
		if err == nil {
			return chunks
		}
		logger.Warn("Embedding retrieval failed, falling back to keyword ranking.", "error", err)
	}
	return s.retrieveByKeywords(query)
}

func (s *Store) retrieveByEmbedding(ctx context.Context, query string) ([]Chunk, error) {
	if err := s.ensureVectors(ctx); err != nil {
		return nil, err
	}
	qv, err := s.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(s.chunks))
	for i, v := range s.vectors {
		scores[i] = cosine(qv[0], v)
	}
	return s.topChunks(scores), nil
}

// ensureVectors embeds the corpus once, lazily on first retrieval. One Store
// is shared by every concurrent assessment, so the lazy initialization is
// serialized; a failed embed leaves vectors unset and the next retrieval
// retries.
func (s *Store) ensureVectors(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectors != nil {
		return nil
	}
	texts := make([]string, len(s.chunks))
	for i, c := range s.chunks {
		texts[i] = c.Text()
	}
	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return err
	}
	s.vectors = vectors
	return nil
}

func (s *Store) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := s.embedder.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: s.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors, want %d", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (s *Store) retrieveByKeywords(query string) []Chunk {
	queryTerms := terms(query)
	scores := make([]float64, len(s.chunks))
	for i, c := range s.chunks {
		chunkTerms := terms(c.Text())
		for term := range queryTerms {
			if chunkTerms[term] {
				scores[i]++
			}
		}
	}
	return s.topChunks(scores)
}

// topChunks returns the topK highest-scoring chunks. Ties keep corpus order
// so fallback ranking stays deterministic.
func (s *Store) topChunks(scores []float64) []Chunk {
	idx := make([]int, len(s.chunks))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	k := s.topK
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]Chunk, 0, k)
	for _, i := range idx[:k] {
		out = append(out, s.chunks[i])
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// terms lowercases and splits text into a set of words, dropping short stop
// tokens that would dominate overlap counts.
func terms(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,:;()[]\"'")
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}
