package domain

import "errors"

var (
	// ErrMissingTextInput signals a text search without textInput.
	ErrMissingTextInput = errors.New("missing query parameter - textInput")
	// ErrMissingImageInput signals an image search without imageInput.
	ErrMissingImageInput = errors.New("missing query parameter - imageInput")
	// ErrVectorDimMismatch signals an embedding whose length does not match the index schema.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrImageInputNotSupported signals an image request sent to a text-only provider.
	ErrImageInputNotSupported = errors.New("image input not supported by embedding provider")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmptyEmbedRequest signals an embed call with neither image nor text.
	ErrEmptyEmbedRequest = errors.New("embed request requires image or text input")
)
