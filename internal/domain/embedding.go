package domain

import "context"

// EmbedRequest pairs image data with text for a multimodal embedding call.
// Either field may be empty, but not both. InputImage is base64-encoded.
type EmbedRequest struct {
	InputImage string `json:"inputImage,omitempty"`
	InputText  string `json:"inputText,omitempty"`
}

// Validate checks that the request carries at least one input.
func (r EmbedRequest) Validate() error {
	if r.InputImage == "" && r.InputText == "" {
		return ErrEmptyEmbedRequest
	}
	return nil
}

// Embedder produces a fixed-length multimodal vector for an image+text pair.
// Both the ingestion pipeline and the search path go through this interface,
// so query vectors and document vectors come from the same model call.
type Embedder interface {
	Embed(ctx context.Context, req EmbedRequest) ([]float32, error)
}
