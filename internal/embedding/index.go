// Package embedding wraps the external vector index consumed by
// semantic search.
//
// Vectors are produced by an external pipeline (one row per entity id,
// field, provider and model) and only ingested and queried here;
// recalld never generates embeddings. Each (field, provider, model)
// triple maps to one chromem collection so queries always compare
// vectors from the same embedding space.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/vecmath"
)

// ErrNoEmbedder is returned if chromem ever asks for text embedding;
// vectors are always supplied pre-computed.
var ErrNoEmbedder = errors.New("embeddings are produced externally; no embedder configured")

// Config holds vector index configuration.
type Config struct {
	// Path is the chromem persistence directory. Empty means a purely
	// in-memory index that is rebuilt by re-ingestion.
	Path string

	// Compress enables gzip compression of persisted vectors.
	Compress bool
}

// Vector is one externally-produced embedding row, unique per
// (entity id, field, provider, model).
type Vector struct {
	EntityID uuid.UUID
	Field    string
	Provider string
	Model    string
	Values   []float32
}

// Validate checks the fields required for ingestion.
func (v *Vector) Validate() error {
	if v.EntityID == uuid.Nil {
		return fmt.Errorf("entity id is required")
	}
	if v.Field == "" || v.Provider == "" || v.Model == "" {
		return fmt.Errorf("field, provider and model are required")
	}
	if len(v.Values) == 0 {
		return fmt.Errorf("vector values are required")
	}
	return nil
}

// QueryParams selects the embedding space and the query vector.
type QueryParams struct {
	Vector   []float32
	Field    string
	Provider string
	Model    string
	K        int
}

// Hit is one vector index match.
type Hit struct {
	EntityID   uuid.UUID
	Similarity float32
}

// Index is the chromem-backed vector index.
type Index struct {
	db     *chromem.DB
	mu     sync.Mutex // serializes collection creation
	logger *zap.Logger
}

// NewIndex opens the vector index. An empty path opens an in-memory
// index.
func NewIndex(cfg Config, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector index: %w", err)
		}
	}

	return &Index{db: db, logger: logger}, nil
}

// noEmbedder rejects any attempt to embed text. Every document and
// query carries a pre-computed vector, so chromem never needs it.
func noEmbedder(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNoEmbedder
}

// Upsert ingests one vector, replacing any previous vector for the
// same (entity id, field, provider, model). Vectors are L2-normalized
// on ingest so cosine and inner-product ranking coincide regardless of
// the producing provider's convention.
func (ix *Index) Upsert(ctx context.Context, v Vector) error {
	if err := v.Validate(); err != nil {
		return err
	}

	col, err := ix.collection(v.Field, v.Provider, v.Model)
	if err != nil {
		return err
	}

	values := v.Values
	if !vecmath.IsNormalized(values) {
		values = vecmath.Normalize(values)
	}

	doc := chromem.Document{
		ID:        v.EntityID.String(),
		Embedding: values,
		Metadata: map[string]string{
			"entity_id": v.EntityID.String(),
			"field":     v.Field,
			"provider":  v.Provider,
			"model":     v.Model,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to ingest vector for entity %s: %w", v.EntityID, err)
	}
	return nil
}

// Query returns up to K hits from the embedding space identified by
// (field, provider, model), ordered by descending similarity. An
// unknown space returns no hits: a missing collection means no vectors
// were ever ingested, which is a legitimate empty result.
func (ix *Index) Query(ctx context.Context, q QueryParams) ([]Hit, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}
	if q.K < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", q.K)
	}

	col := ix.db.GetCollection(collectionName(q.Field, q.Provider, q.Model), noEmbedder)
	if col == nil {
		return nil, nil
	}

	// chromem requires nResults <= document count.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	k := q.K
	if k > count {
		k = count
	}

	vector := q.Vector
	if !vecmath.IsNormalized(vector) {
		vector = vecmath.Normalize(vector)
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			ix.logger.Warn("vector index holds non-uuid document id",
				zap.String("id", r.ID))
			continue
		}
		hits = append(hits, Hit{EntityID: id, Similarity: r.Similarity})
	}
	return hits, nil
}

// Remove drops every vector belonging to the entity, across all
// embedding spaces. Called when an entity is deleted.
func (ix *Index) Remove(ctx context.Context, entityID uuid.UUID) error {
	where := map[string]string{"entity_id": entityID.String()}
	for name, col := range ix.db.ListCollections() {
		if err := col.Delete(ctx, where, nil); err != nil {
			return fmt.Errorf("failed to remove vectors from %s: %w", name, err)
		}
	}
	return nil
}

// collection returns the collection for one embedding space, creating
// it on first ingestion.
func (ix *Index) collection(field, provider, model string) (*chromem.Collection, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	name := collectionName(field, provider, model)
	col, err := ix.db.GetOrCreateCollection(name, nil, noEmbedder)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
	}
	return col, nil
}

// collectionName builds a stable collection name for one embedding
// space. Characters outside [a-z0-9_-] are replaced so provider/model
// ids like "text-embedding-3-small@v2" stay valid names.
func collectionName(field, provider, model string) string {
	raw := strings.ToLower(fmt.Sprintf("vec_%s_%s_%s", field, provider, model))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, raw)
}
