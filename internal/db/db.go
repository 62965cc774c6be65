package db

import (
	"context"
	"time"
)

// Store is the vector database contract consumed by the index repository.
type Store interface {
	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()

	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)

	// HSetMulti writes all hashes in one pipelined round-trip (the bulk
	// submission). The returned slice holds one outcome per item, so callers
	// can inspect partial failures inside the bulk call.
	HSetMulti(ctx context.Context, items []HashSetItem) []error

	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// IndexDefinition describes an FT index over hash keys.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// IndexFieldType enumerates supported FT schema field types.
type IndexFieldType string

// Index field types.
const (
	IndexFieldTag    IndexFieldType = "TAG"
	IndexFieldText   IndexFieldType = "TEXT"
	IndexFieldVector IndexFieldType = "VECTOR"
)

// IndexField is one schema field of an FT index.
type IndexField struct {
	Name    string
	Type    IndexFieldType
	NoIndex bool // stored and returnable, excluded from inverted index

	// Vector attributes (Type == IndexFieldVector). HNSW with cosine distance.
	VectorDim         int
	VectorM           int
	VectorEFConstruct int
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Field        string // vector field name
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search. Score is cosine
// similarity in [0,1], descending order as returned by the engine.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
