package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/llm"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/retry"
)

const (
	embedBatchSize = 64
	// DefaultMaxVersions bounds how many dataset versions stay indexed.
	DefaultMaxVersions = 4
)

type document struct {
	id     string
	text   string
	scope  Scope
	vector []float32
	norm   float64
}

// EmbeddingIndex keeps row documents and their embeddings in memory, one
// slice per dataset version. Older versions are dropped once maxVersions is
// exceeded.
type EmbeddingIndex struct {
	client      llm.LLMClient
	model       string
	maxVersions int
	logger      *zap.Logger

	mu       sync.RWMutex
	versions map[uuid.UUID][]document
	order    []uuid.UUID // oldest first
}

var (
	_ Retriever = (*EmbeddingIndex)(nil)
	_ Indexer   = (*EmbeddingIndex)(nil)
)

// NewEmbeddingIndex creates an index that embeds with client and model.
func NewEmbeddingIndex(client llm.LLMClient, model string, maxVersions int, logger *zap.Logger) *EmbeddingIndex {
	if maxVersions <= 0 {
		maxVersions = DefaultMaxVersions
	}
	return &EmbeddingIndex{
		client:      client,
		model:       model,
		maxVersions: maxVersions,
		logger:      logger.Named("retrieval"),
		versions:    make(map[uuid.UUID][]document),
	}
}

// RowDocument renders a row as "column: value" pairs in schema order,
// skipping blank cells.
func RowDocument(columns []string, row models.RowRecord) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		v := row.Field(col)
		if v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			continue
		}
		parts = append(parts, col+": "+s)
	}
	return strings.Join(parts, "; ")
}

// Index embeds every row of version. Transient embedding failures are
// retried with backoff; a permanent failure leaves the version unindexed.
func (x *EmbeddingIndex) Index(ctx context.Context, version *models.DatasetVersion, rows []models.RowRecord) error {
	docs := make([]document, 0, len(rows))
	for _, row := range rows {
		text := RowDocument(version.ColumnNames, row)
		if text == "" {
			continue
		}
		docs = append(docs, document{
			id:   fmt.Sprintf("%s_%d", version.ID, row.RowIndex),
			text: text,
			scope: Scope{
				DatasetVersionID: version.ID,
				Tag:              row.Tag,
				RowDate:          row.RowDate,
				UploadDate:       version.CreatedAt,
			},
		})
	}

	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = docs[start+i].text
		}

		var vectors [][]float32
		err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
			var err error
			vectors, err = x.client.CreateEmbeddings(ctx, texts, x.model)
			return err
		})
		if err != nil {
			return fmt.Errorf("embed rows %d-%d of version %s: %w", start, end, version.ID, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embed rows %d-%d: got %d vectors for %d documents", start, end, len(vectors), len(texts))
		}
		for i, v := range vectors {
			docs[start+i].vector = v
			docs[start+i].norm = vectorNorm(v)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.versions[version.ID]; !exists {
		x.order = append(x.order, version.ID)
	}
	x.versions[version.ID] = docs
	for len(x.order) > x.maxVersions {
		delete(x.versions, x.order[0])
		x.order = x.order[1:]
	}

	x.logger.Info("Indexed dataset version",
		zap.String("dataset_version_id", version.ID.String()),
		zap.Int("documents", len(docs)))
	return nil
}

// QuerySimilar ranks the documents of the filter's version by cosine
// similarity to text and returns the best topK that satisfy the filter.
func (x *EmbeddingIndex) QuerySimilar(ctx context.Context, text string, filter ScopeFilter, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	x.mu.RLock()
	docs := x.versions[filter.DatasetVersionID]
	x.mu.RUnlock()
	if len(docs) == 0 {
		return nil, nil
	}

	query, err := x.client.CreateEmbedding(ctx, text, x.model)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qNorm := vectorNorm(query)

	matches := make([]Match, 0, len(docs))
	for _, d := range docs {
		if !filter.Matches(d.scope) {
			continue
		}
		matches = append(matches, Match{
			ID:       d.id,
			Document: d.text,
			Score:    cosine(query, qNorm, d.vector, d.norm),
			Scope:    d.scope,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Versions returns the indexed dataset versions, oldest first.
func (x *EmbeddingIndex) Versions() []uuid.UUID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]uuid.UUID(nil), x.order...)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine is 0 for zero or mismatched vectors.
func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if len(a) != len(b) || aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
