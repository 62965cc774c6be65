package embedder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
	"github.com/vistry-ai/vistry/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

type fakeStore struct {
	objects map[string][]byte // "bucket/key" -> body
	puts    map[string][]byte
}

func (f *fakeStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return body, nil
}

func (f *fakeStore) Put(_ context.Context, bucket, key string, body []byte, _ string) error {
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[bucket+"/"+key] = body
	return nil
}

type fakeProvider struct {
	vector   []float32
	err      error
	requests []domain.EmbedRequest
}

func (f *fakeProvider) Embed(_ context.Context, req domain.EmbedRequest) ([]float32, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func batchBody(t *testing.T, records []domain.InputRecord) []byte {
	t.Helper()
	body, err := json.Marshal(records)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestRun_EmbedsBatch(t *testing.T) {
	records := []domain.InputRecord{
		{ClassLabel: "dress", ImageURL: "https://cdn/a.jpg", Brand: "acme", ImagePath: "images/a.jpg", ProductTitle: "Red dress"},
		{ClassLabel: "shoe", ImageURL: "https://cdn/b.jpg", Brand: "acme", ImagePath: "images/b.jpg", ProductTitle: "Blue shoe"},
	}
	store := &fakeStore{objects: map[string][]byte{
		"catalog/batch/batch_1.json": batchBody(t, records),
		"catalog/images/a.jpg":       []byte("jpeg-a"),
		"catalog/images/b.jpg":       []byte("jpeg-b"),
	}}
	p := &fakeProvider{vector: []float32{1, 2, 3, 4}}
	svc := New(store, p, "embeddings", 4, zap.NewNop())

	err := svc.Run(context.Background(), domain.ObjectEvent{Bucket: "catalog", Key: "batch/batch_1.json"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out, ok := store.puts["embeddings/batch/batch_1.json"]
	if !ok {
		t.Fatal("embeddings object not written under the batch key")
	}

	var docs []domain.ProductDocument
	if err := json.Unmarshal(out, &docs); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].ImagePath != "images/a.jpg" || docs[0].Class != "dress" || docs[0].Description != "Red dress" {
		t.Errorf("docs[0] = %+v", docs[0])
	}
	if len(docs[0].Vector) != 4 {
		t.Errorf("docs[0].Vector length = %d", len(docs[0].Vector))
	}

	if len(p.requests) != 2 {
		t.Fatalf("expected 2 embed requests, got %d", len(p.requests))
	}
	wantImage := base64.StdEncoding.EncodeToString([]byte("jpeg-a"))
	if p.requests[0].InputImage != wantImage {
		t.Errorf("request image = %q, expected base64 of the fetched object", p.requests[0].InputImage)
	}
	if p.requests[0].InputText != "Red dress" {
		t.Errorf("request text = %q", p.requests[0].InputText)
	}
}

func TestRun_MissingImageSkipsRecord(t *testing.T) {
	records := []domain.InputRecord{
		{ImagePath: "images/missing.jpg", ProductTitle: "Ghost"},
		{ImagePath: "images/b.jpg", ProductTitle: "Blue shoe"},
	}
	store := &fakeStore{objects: map[string][]byte{
		"catalog/batch/batch_1.json": batchBody(t, records),
		"catalog/images/b.jpg":       []byte("jpeg-b"),
	}}
	p := &fakeProvider{vector: []float32{1, 2, 3, 4}}
	svc := New(store, p, "embeddings", 4, zap.NewNop())

	if err := svc.Run(context.Background(), domain.ObjectEvent{Bucket: "catalog", Key: "batch/batch_1.json"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var docs []domain.ProductDocument
	if err := json.Unmarshal(store.puts["embeddings/batch/batch_1.json"], &docs); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(docs) != 1 || docs[0].ImagePath != "images/b.jpg" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestRun_AllFailedStillWritesOutput(t *testing.T) {
	records := []domain.InputRecord{
		{ImagePath: "images/a.jpg", ProductTitle: "Red dress"},
	}
	store := &fakeStore{objects: map[string][]byte{
		"catalog/batch/batch_1.json": batchBody(t, records),
		"catalog/images/a.jpg":       []byte("jpeg-a"),
	}}
	p := &fakeProvider{err: errors.New("model not ready")}
	svc := New(store, p, "embeddings", 4, zap.NewNop())

	if err := svc.Run(context.Background(), domain.ObjectEvent{Bucket: "catalog", Key: "batch/batch_1.json"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out, ok := store.puts["embeddings/batch/batch_1.json"]
	if !ok {
		t.Fatal("output must be written even when every record fails")
	}
	if string(out) != "[]" {
		t.Errorf("output = %s, expected empty JSON array", out)
	}
}

func TestRun_DimensionMismatchIsFailure(t *testing.T) {
	records := []domain.InputRecord{
		{ImagePath: "images/a.jpg", ProductTitle: "Red dress"},
	}
	store := &fakeStore{objects: map[string][]byte{
		"catalog/batch/batch_1.json": batchBody(t, records),
		"catalog/images/a.jpg":       []byte("jpeg-a"),
	}}
	p := &fakeProvider{vector: []float32{1, 2, 3}} // schema expects 4
	svc := New(store, p, "embeddings", 4, zap.NewNop())

	if err := svc.Run(context.Background(), domain.ObjectEvent{Bucket: "catalog", Key: "batch/batch_1.json"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if string(store.puts["embeddings/batch/batch_1.json"]) != "[]" {
		t.Error("record with mismatched vector length must not be emitted")
	}
}

func TestRun_MissingBatchObject(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{}}
	svc := New(store, &fakeProvider{}, "embeddings", 4, zap.NewNop())

	err := svc.Run(context.Background(), domain.ObjectEvent{Bucket: "catalog", Key: "batch/batch_9.json"})
	if err == nil {
		t.Fatal("expected error for missing batch object")
	}
}
