package index

import (
	"github.com/vistry-ai/vistry/internal/db"
	dbredis "github.com/vistry-ai/vistry/internal/db/redis"
	"github.com/vistry-ai/vistry/internal/domain"
)

// Hash field names. These match the document JSON keys so the index schema
// and the stored batches stay aligned.
const (
	fieldImagePath   = "image_path"
	fieldImageURL    = "image_url"
	fieldBrand       = "image_brand"
	fieldClass       = "image_class"
	fieldDescription = "image_product_description"
	fieldVector      = "multimodal_vector"
)

// projection is the fixed field set returned by search queries. The vector
// itself is never projected back.
var projection = []string{
	fieldDescription,
	fieldImagePath,
	fieldBrand,
	fieldClass,
	fieldImageURL,
}

// docToFields flattens a document into hash fields, with the vector stored
// as a little-endian float32 blob.
func docToFields(doc domain.ProductDocument) map[string]string {
	return map[string]string{
		fieldImagePath:   doc.ImagePath,
		fieldImageURL:    doc.ImageURL,
		fieldBrand:       doc.Brand,
		fieldClass:       doc.Class,
		fieldDescription: doc.Description,
		fieldVector:      dbredis.VectorToBytes(doc.Vector),
	}
}

// entryToHit converts a search entry back into a ranked hit.
func entryToHit(entry db.SearchEntry) domain.Hit {
	return domain.Hit{
		Score: entry.Score,
		Source: domain.ProductDocument{
			ImagePath:   entry.Fields[fieldImagePath],
			ImageURL:    entry.Fields[fieldImageURL],
			Brand:       entry.Fields[fieldBrand],
			Class:       entry.Fields[fieldClass],
			Description: entry.Fields[fieldDescription],
		},
	}
}
