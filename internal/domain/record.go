package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// DefaultBatchSize is the number of input records per pipeline batch.
const DefaultBatchSize = 500

// DefaultVectorDim is the embedding dimensionality the index schema expects.
// A document with any other vector length is rejected before indexing.
const DefaultVectorDim = 1024

// InputRecord is one row of the catalog export, as uploaded to the ingest
// bucket. Field names follow the export format.
type InputRecord struct {
	ClassLabel   string `json:"class_label"`
	ImageURL     string `json:"image_url"`
	Brand        string `json:"brand"`
	ImagePath    string `json:"image_path"`
	ProductTitle string `json:"product_title"`
}

// ProductDocument is an embedded catalog record, stored as a document in the
// vector index. Field names match the index schema.
type ProductDocument struct {
	ImagePath   string    `json:"image_path"`
	ImageURL    string    `json:"image_url"`
	Brand       string    `json:"image_brand"`
	Class       string    `json:"image_class"`
	Description string    `json:"image_product_description"`
	Vector      []float32 `json:"multimodal_vector,omitempty"`
}

// ID returns the stable document identifier, derived from the image path so
// that re-indexing the same record overwrites rather than duplicates.
func (d ProductDocument) ID() string {
	return DocumentID(d.ImagePath)
}

// DocumentID derives a stable index document ID from a storage object key.
func DocumentID(imagePath string) string {
	sum := sha256.Sum256([]byte(imagePath))
	return hex.EncodeToString(sum[:])[:32]
}

// FailedEmbedding records a single item that could not be embedded. It is
// logged for observability and never retried within the same invocation.
type FailedEmbedding struct {
	ImagePath string `json:"image_path"`
	Error     string `json:"error"`
}

// Hit is one ranked search result. Source carries the stored document with
// the vector omitted and the image path replaced by a presigned URL.
type Hit struct {
	Score  float64         `json:"score"`
	Source ProductDocument `json:"source"`
}
