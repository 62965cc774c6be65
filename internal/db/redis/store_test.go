package redis

import (
	"strings"
	"testing"

	"github.com/vistry-ai/vistry/internal/db"
)

func TestBuildCreateArgs(t *testing.T) {
	def := &db.IndexDefinition{
		Name:     "products",
		Prefixes: []string{"vistry:product:"},
		Fields: []db.IndexField{
			{Name: "image_brand", Type: db.IndexFieldTag},
			{Name: "image_class", Type: db.IndexFieldTag},
			{Name: "image_product_description", Type: db.IndexFieldText},
			{Name: "image_url", Type: db.IndexFieldText, NoIndex: true},
			{Name: "image_path", Type: db.IndexFieldText, NoIndex: true},
			{Name: "multimodal_vector", Type: db.IndexFieldVector, VectorDim: 1024, VectorM: 32, VectorEFConstruct: 400},
		},
	}

	args, err := buildCreateArgs(def)
	if err != nil {
		t.Fatalf("buildCreateArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	wantParts := []string{
		"products ON HASH PREFIX 1 vistry:product: SCHEMA",
		"image_brand TAG",
		"image_url TEXT NOINDEX",
		"multimodal_vector VECTOR HNSW 10 TYPE FLOAT32 DIM 1024 DISTANCE_METRIC COSINE M 32 EF_CONSTRUCTION 400",
	}
	for _, part := range wantParts {
		if !strings.Contains(joined, part) {
			t.Errorf("args missing %q\ngot: %s", part, joined)
		}
	}
}

func TestBuildCreateArgs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  *db.IndexDefinition
	}{
		{"no name", &db.IndexDefinition{Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}}}},
		{"no fields", &db.IndexDefinition{Name: "idx"}},
		{"unnamed field", &db.IndexDefinition{Name: "idx", Fields: []db.IndexField{{Type: db.IndexFieldTag}}}},
		{"zero dim vector", &db.IndexDefinition{Name: "idx", Fields: []db.IndexField{{Name: "v", Type: db.IndexFieldVector}}}},
		{"unknown type", &db.IndexDefinition{Name: "idx", Fields: []db.IndexField{{Name: "f", Type: "GEO"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildCreateArgs(tt.def); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestVectorBytesRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.0, 0}

	blob := VectorToBytes(vec)
	if len(blob) != len(vec)*4 {
		t.Fatalf("blob length = %d, want %d", len(blob), len(vec)*4)
	}

	got := BytesToVector(blob)
	if len(got) != len(vec) {
		t.Fatalf("round trip length = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("vec[%d] = %f, want %f", i, got[i], vec[i])
		}
	}
}

func TestBytesToVector_Misaligned(t *testing.T) {
	if v := BytesToVector("abc"); v != nil {
		t.Errorf("expected nil for misaligned blob, got %v", v)
	}
}

func TestScoreAttr(t *testing.T) {
	if got := scoreAttr("multimodal_vector"); got != "__multimodal_vector_score" {
		t.Errorf("scoreAttr = %q", got)
	}
}
