// -----------------------------------------------------------------------
// Indexing service - delete-then-insert document indexing
// -----------------------------------------------------------------------

package indexing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/chunking"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service chunks, embeds and stores documents. Indexing is idempotent:
// existing chunks of a document are deleted before the fresh ones go in, so
// a step executed twice converges on the same index state.
type Service struct {
	index     interfaces.IndexStore
	embedder  interfaces.Embedder
	splitter  *chunking.Splitter
	logger    arbor.ILogger
	indexName string
	prefix    string
}

func NewService(index interfaces.IndexStore, embedder interfaces.Embedder, config *common.IndexingConfig, logger arbor.ILogger) *Service {
	return &Service{
		index:     index,
		embedder:  embedder,
		splitter:  chunking.NewSplitter(config.ChunkSize, config.ChunkOverlap),
		logger:    logger,
		indexName: config.IndexName,
		prefix:    config.ChunkPrefix,
	}
}

// IndexName returns the target index name.
func (s *Service) IndexName() string {
	return s.indexName
}

func (s *Service) filterFor(job *models.Job) interfaces.IndexFilter {
	return interfaces.IndexFilter{
		Datasource:   job.Datasource,
		ConnectionID: job.ConnectionID,
	}
}

// keyForDoc returns the key field and value identifying the document's
// existing chunks under the given key mode.
func keyForDoc(deleteBy interfaces.DeleteDocBy, doc *models.Document) (string, string) {
	if deleteBy == interfaces.DeleteDocByDisplayID {
		return "metadata.doc_display_id", doc.Metadata.DocDisplayID
	}
	return "metadata.doc_id", doc.Metadata.DocID
}

// IndexDocuments replaces the index content of the given documents. The
// documents are chunked, each chunk prefixed and embedded, old chunks are
// deleted once per distinct document key, and the new chunks bulk inserted.
func (s *Service) IndexDocuments(ctx context.Context, job *models.Job, step *models.JobStep, docs []*models.Document, deleteBy interfaces.DeleteDocBy) error {
	if len(docs) == 0 {
		return nil
	}

	if err := s.index.EnsureIndex(ctx, s.indexName); err != nil {
		return fmt.Errorf("failed to ensure index: %w", err)
	}

	var texts []string
	var chunks []*models.Chunk
	type docKey struct{ field, value string }
	seen := make(map[docKey]struct{})
	var deleteKeys []docKey

	for _, doc := range docs {
		field, value := keyForDoc(deleteBy, doc)
		if value == "" {
			// Without a key the previous chunks cannot be found; store the
			// fresh ones anyway.
			s.logger.Warn().
				Str("job_id", job.ID).
				Str("title", doc.Metadata.Title).
				Str("key_field", field).
				Msg("Document carries no deletion key, skipping chunk replacement")
		} else {
			key := docKey{field, value}
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				deleteKeys = append(deleteKeys, key)
			}
		}

		pieces := s.splitter.Split(doc.Content)
		for i, piece := range pieces {
			md := doc.Metadata
			md.Datasource = job.Datasource
			if md.ConnectionID == "" {
				md.ConnectionID = job.ConnectionID
			}
			md.ChunkID = i
			text := s.prefix + piece
			texts = append(texts, text)
			chunks = append(chunks, &models.Chunk{Text: text, Metadata: md})
		}
	}

	filter := s.filterFor(job)
	for _, key := range deleteKeys {
		if err := s.index.DeleteByKey(ctx, s.indexName, key.field, key.value, filter); err != nil {
			if errors.Is(err, interfaces.ErrIndexNotFound) {
				continue
			}
			return fmt.Errorf("failed to delete existing chunks of %s=%s: %w", key.field, key.value, err)
		}
	}

	if len(chunks) == 0 {
		s.logger.Debug().
			Str("job_id", job.ID).
			Int("documents", len(docs)).
			Msg("Documents produced no chunks, old content removed")
		return nil
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := s.index.BulkInsert(ctx, s.indexName, chunks); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("step_id", step.ID).
		Int("documents", len(docs)).
		Int("chunks", len(chunks)).
		Msg("Documents indexed")
	return nil
}

// DeleteDocument removes the step's document from the index. A missing
// index means there is nothing to delete.
func (s *Service) DeleteDocument(ctx context.Context, job *models.Job, step *models.JobStep, deleteBy interfaces.DeleteDocBy) error {
	field, value := deleteBy.PickKeyForDelete(step)
	if value == "" {
		return fmt.Errorf("delete step %s carries no %s", step.ID, field)
	}

	err := s.index.DeleteByKey(ctx, s.indexName, field, value, s.filterFor(job))
	if errors.Is(err, interfaces.ErrIndexNotFound) {
		s.logger.Debug().
			Str("step_id", step.ID).
			Msg("Index missing, nothing to delete")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete document %s=%s: %w", field, value, err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("step_id", step.ID).
		Str("key", value).
		Msg("Document deleted from index")
	return nil
}

// ScrollKeys streams the distinct key values of the job's indexed chunks.
// A missing index yields no keys.
func (s *Service) ScrollKeys(ctx context.Context, job *models.Job, keyField string, fn func(value string) error) error {
	err := s.index.ScrollKeys(ctx, s.indexName, keyField, s.filterFor(job), fn)
	if errors.Is(err, interfaces.ErrIndexNotFound) {
		return nil
	}
	return err
}
