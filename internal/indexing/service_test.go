package indexing

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

type deleteCall struct {
	field  string
	value  string
	filter interfaces.IndexFilter
}

type fakeIndexStore struct {
	exists   bool
	inserted []*models.Chunk
	deletes  []deleteCall
	keys     []string
}

func (f *fakeIndexStore) EnsureIndex(ctx context.Context, name string) error {
	f.exists = true
	return nil
}

func (f *fakeIndexStore) BulkInsert(ctx context.Context, name string, chunks []*models.Chunk) error {
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func (f *fakeIndexStore) DeleteByKey(ctx context.Context, name string, keyField, value string, filter interfaces.IndexFilter) error {
	if !f.exists {
		return interfaces.ErrIndexNotFound
	}
	f.deletes = append(f.deletes, deleteCall{keyField, value, filter})
	return nil
}

func (f *fakeIndexStore) ScrollKeys(ctx context.Context, name string, keyField string, filter interfaces.IndexFilter, fn func(string) error) error {
	if !f.exists {
		return interfaces.ErrIndexNotFound
	}
	for _, k := range f.keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeIndexStore) Ping(ctx context.Context) error { return nil }

type fakeEmbedder struct {
	calls [][]string
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

func newTestService(index *fakeIndexStore, embedder *fakeEmbedder) *Service {
	config := &common.IndexingConfig{
		IndexName:    "docs",
		ChunkSize:    50,
		ChunkOverlap: 10,
		ChunkPrefix:  "passage: ",
	}
	return NewService(index, embedder, config, arbor.NewLogger())
}

func TestIndexDocumentsDeletesOncePerDocument(t *testing.T) {
	index := &fakeIndexStore{}
	embedder := &fakeEmbedder{}
	svc := newTestService(index, embedder)

	job := &models.Job{ID: "j1", Datasource: "KBASE", ConnectionID: "conn-1"}
	step := &models.JobStep{ID: "s1"}

	long := strings.Repeat("text body ", 30)
	docs := []*models.Document{
		{Content: long, Metadata: models.DocumentMetadata{DocID: "KA-1"}},
		{Content: "second part", Metadata: models.DocumentMetadata{DocID: "KA-1"}},
		{Content: "other doc", Metadata: models.DocumentMetadata{DocID: "KA-2"}},
	}
	require.NoError(t, svc.IndexDocuments(context.Background(), job, step, docs, interfaces.DeleteDocByID))

	// KA-1 appears twice but must be deleted exactly once.
	require.Len(t, index.deletes, 2)
	assert.Equal(t, "metadata.doc_id", index.deletes[0].field)
	assert.Equal(t, "KA-1", index.deletes[0].value)
	assert.Equal(t, "KA-2", index.deletes[1].value)
	assert.Equal(t, interfaces.IndexFilter{Datasource: "KBASE", ConnectionID: "conn-1"}, index.deletes[0].filter)

	require.NotEmpty(t, index.inserted)
	for _, chunk := range index.inserted {
		assert.True(t, strings.HasPrefix(chunk.Text, "passage: "))
		assert.Equal(t, "KBASE", chunk.Metadata.Datasource)
		assert.Equal(t, "conn-1", chunk.Metadata.ConnectionID)
		assert.NotNil(t, chunk.Embedding)
	}

	// Multi-chunk documents number their chunks from zero.
	var ka1Chunks []int
	for _, chunk := range index.inserted {
		if chunk.Metadata.DocID == "KA-1" && chunk.Metadata.ChunkID >= 0 {
			ka1Chunks = append(ka1Chunks, chunk.Metadata.ChunkID)
		}
	}
	assert.Contains(t, ka1Chunks, 0)
	assert.Greater(t, len(ka1Chunks), 1)
}

func TestIndexDocumentsByDisplayID(t *testing.T) {
	index := &fakeIndexStore{}
	svc := newTestService(index, &fakeEmbedder{})

	job := &models.Job{ID: "j1", Datasource: "WIKI"}
	docs := []*models.Document{
		{Content: "page body", Metadata: models.DocumentMetadata{DocDisplayID: "Page-1"}},
	}
	require.NoError(t, svc.IndexDocuments(context.Background(), job, &models.JobStep{ID: "s1"}, docs, interfaces.DeleteDocByDisplayID))

	require.Len(t, index.deletes, 1)
	assert.Equal(t, "metadata.doc_display_id", index.deletes[0].field)
	assert.Equal(t, "Page-1", index.deletes[0].value)
}

func TestIndexDocumentsKeylessDocumentStillStored(t *testing.T) {
	index := &fakeIndexStore{}
	svc := newTestService(index, &fakeEmbedder{})

	job := &models.Job{ID: "j1", Datasource: "KBASE"}
	docs := []*models.Document{
		{Content: "body", Metadata: models.DocumentMetadata{Title: "untitled"}},
		{Content: "keyed body", Metadata: models.DocumentMetadata{DocID: "KA-1"}},
	}
	require.NoError(t, svc.IndexDocuments(context.Background(), job, &models.JobStep{ID: "s1"}, docs, interfaces.DeleteDocByID))

	// Only the keyed document gets its old chunks replaced; the keyless one
	// is stored as-is.
	require.Len(t, index.deletes, 1)
	assert.Equal(t, "KA-1", index.deletes[0].value)
	assert.Len(t, index.inserted, 2)
}

func TestIndexDocumentsEmptyInput(t *testing.T) {
	index := &fakeIndexStore{}
	svc := newTestService(index, &fakeEmbedder{})

	require.NoError(t, svc.IndexDocuments(context.Background(), &models.Job{}, &models.JobStep{}, nil, interfaces.DeleteDocByID))
	assert.False(t, index.exists, "no documents must not touch the index")
}

func TestDeleteDocumentToleratesMissingIndex(t *testing.T) {
	index := &fakeIndexStore{exists: false}
	svc := newTestService(index, &fakeEmbedder{})

	job := &models.Job{ID: "j1", Datasource: "KBASE"}
	step := &models.JobStep{ID: "s1", DocID: "KA-9"}
	require.NoError(t, svc.DeleteDocument(context.Background(), job, step, interfaces.DeleteDocByID))
	assert.Empty(t, index.deletes)
}

func TestDeleteDocumentRequiresKey(t *testing.T) {
	svc := newTestService(&fakeIndexStore{exists: true}, &fakeEmbedder{})

	job := &models.Job{ID: "j1", Datasource: "KBASE"}
	err := svc.DeleteDocument(context.Background(), job, &models.JobStep{ID: "s1"}, interfaces.DeleteDocByID)
	require.Error(t, err)
}

func TestScrollKeysToleratesMissingIndex(t *testing.T) {
	svc := newTestService(&fakeIndexStore{exists: false}, &fakeEmbedder{})

	err := svc.ScrollKeys(context.Background(), &models.Job{Datasource: "WIKI"}, "metadata.doc_id", func(string) error {
		return fmt.Errorf("must not be called")
	})
	require.NoError(t, err)
}
