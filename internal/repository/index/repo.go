package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/vistry-ai/vistry/internal/db"
	"github.com/vistry-ai/vistry/internal/domain"
)

// store is the consumer interface for index operations (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) []error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config holds index schema parameters.
type Config struct {
	Name            string
	KeyPrefix       string
	VectorDim       int
	HNSWM           int
	HNSWEFConstruct int
}

// Repo stores product documents in the vector index and runs k-NN queries
// over them. Document keys are derived from the image path, so repeated
// indexing of the same batch overwrites rather than duplicates.
type Repo struct {
	store store
	cfg   Config
}

// New creates an index repository.
func New(s store, cfg Config) *Repo {
	if cfg.VectorDim <= 0 {
		cfg.VectorDim = domain.DefaultVectorDim
	}
	return &Repo{store: s, cfg: cfg}
}

// ItemError is a per-document failure inside a bulk submission.
type ItemError struct {
	ID  string
	Err error
}

// BulkResult summarizes one bulk index call.
type BulkResult struct {
	Succeeded int
	Failed    []ItemError
}

// Ensure creates the FT index if it does not exist yet.
func (r *Repo) Ensure(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.cfg.Name)
	if err != nil {
		return fmt.Errorf("index exists %s: %w", r.cfg.Name, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.cfg.Name,
		Prefixes: []string{r.keyPrefix()},
		Fields: []db.IndexField{
			{Name: fieldBrand, Type: db.IndexFieldTag},
			{Name: fieldClass, Type: db.IndexFieldTag},
			{Name: fieldDescription, Type: db.IndexFieldText},
			{Name: fieldImageURL, Type: db.IndexFieldText, NoIndex: true},
			{Name: fieldImagePath, Type: db.IndexFieldText, NoIndex: true},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorDim:         r.cfg.VectorDim,
				VectorM:           r.cfg.HNSWM,
				VectorEFConstruct: r.cfg.HNSWEFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.cfg.Name, err)
	}
	return nil
}

// BulkUpsert submits all documents as one pipelined call and reports
// per-document outcomes. Documents whose vector length does not match the
// index schema are rejected locally; the bulk call is still issued for the
// rest.
func (r *Repo) BulkUpsert(ctx context.Context, docs []domain.ProductDocument) (*BulkResult, error) {
	result := &BulkResult{}
	if len(docs) == 0 {
		return result, nil
	}

	items := make([]db.HashSetItem, 0, len(docs))
	submitted := make([]string, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Vector) != r.cfg.VectorDim {
			result.Failed = append(result.Failed, ItemError{
				ID: doc.ID(),
				Err: fmt.Errorf("vector length %d, schema expects %d: %w",
					len(doc.Vector), r.cfg.VectorDim, domain.ErrVectorDimMismatch),
			})
			continue
		}
		items = append(items, db.HashSetItem{
			Key:    r.docKey(doc.ID()),
			Fields: docToFields(doc),
		})
		submitted = append(submitted, doc.ID())
	}

	if len(items) == 0 {
		return result, nil
	}

	outcomes := r.store.HSetMulti(ctx, items)
	for i, err := range outcomes {
		if err != nil {
			result.Failed = append(result.Failed, ItemError{ID: submitted[i], Err: err})
			continue
		}
		result.Succeeded++
	}

	return result, nil
}

// SearchKNN runs a k-nearest-neighbor query and returns hits in the engine's
// ranking order with the fixed field projection.
func (r *Repo) SearchKNN(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	q := &db.KNNQuery{
		IndexName:    r.cfg.Name,
		Field:        fieldVector,
		Vector:       vector,
		K:            k,
		ReturnFields: projection,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.cfg.Name, err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	hits := make([]domain.Hit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		hits = append(hits, entryToHit(entry))
	}
	return hits, nil
}

func (r *Repo) keyPrefix() string {
	return r.cfg.KeyPrefix + "product:"
}

func (r *Repo) docKey(id string) string {
	return r.keyPrefix() + id
}
