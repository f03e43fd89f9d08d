package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// indexRecord marks an index as created. Search-side mapping lives with the
// consumer of the index, not here.
type indexRecord struct {
	Name      string
	CreatedAt time.Time
}

// indexedChunk is the persisted form of one chunk. The metadata key fields
// are lifted to top-level columns so badgerhold can filter on them.
type indexedChunk struct {
	ID           string
	Index        string
	Datasource   string
	ConnectionID string
	DocID        string
	DocDisplayID string
	Chunk        models.Chunk
}

const indexRecordKeyPrefix = "idx:"

// ensureLockTimeout bounds how long a writer waits for the index creation
// lock before giving up.
const ensureLockTimeout = 30 * time.Second

// IndexStore implements the IndexStore interface over Badger. It keeps the
// full embedded chunks locally, which is enough for the search sidecar that
// reads the same database.
type IndexStore struct {
	db         *BadgerDB
	logger     arbor.ILogger
	createLock chan struct{}
}

// NewIndexStore creates a new IndexStore instance
func NewIndexStore(db *BadgerDB, logger arbor.ILogger) *IndexStore {
	return &IndexStore{
		db:         db,
		logger:     logger,
		createLock: make(chan struct{}, 1),
	}
}

func (s *IndexStore) indexExists(name string) (bool, error) {
	var rec indexRecord
	err := s.db.Store().Get(indexRecordKeyPrefix+name, &rec)
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read index record: %w", err)
	}
	return true, nil
}

// EnsureIndex creates the index when missing. Creation is serialized within
// the process; a concurrent writer finishing first is treated as success.
func (s *IndexStore) EnsureIndex(ctx context.Context, name string) error {
	exists, err := s.indexExists(name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	timer := time.NewTimer(ensureLockTimeout)
	defer timer.Stop()
	select {
	case s.createLock <- struct{}{}:
		defer func() { <-s.createLock }()
	case <-timer.C:
		return fmt.Errorf("timed out waiting for index creation lock for %s", name)
	case <-ctx.Done():
		return ctx.Err()
	}

	// Re-check under the lock; another goroutine may have created it.
	exists, err = s.indexExists(name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	rec := indexRecord{Name: name, CreatedAt: time.Now().UTC()}
	if err := s.db.Store().Upsert(indexRecordKeyPrefix+name, &rec); err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	s.logger.Info().Str("index", name).Msg("Created index")
	return nil
}

func (s *IndexStore) BulkInsert(ctx context.Context, name string, chunks []*models.Chunk) error {
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := indexedChunk{
			ID:           uuid.New().String(),
			Index:        name,
			Datasource:   chunk.Metadata.Datasource,
			ConnectionID: chunk.Metadata.ConnectionID,
			DocID:        chunk.Metadata.DocID,
			DocDisplayID: chunk.Metadata.DocDisplayID,
			Chunk:        *chunk,
		}
		if err := s.db.Store().Upsert(rec.ID, &rec); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return nil
}

// keyColumn maps the public metadata key field to the lifted column name.
func keyColumn(keyField string) (string, error) {
	switch keyField {
	case "metadata.doc_id":
		return "DocID", nil
	case "metadata.doc_display_id":
		return "DocDisplayID", nil
	default:
		return "", fmt.Errorf("unsupported key field %q", keyField)
	}
}

// connectionScope widens the filter to chunks indexed without a connection.
// A document first indexed connection-less and later re-indexed under a
// connection must still have its old chunks replaced.
func connectionScope(c *badgerhold.Criterion, connectionID string) *badgerhold.Query {
	if connectionID == "" {
		return c.Eq("")
	}
	return c.In("", connectionID)
}

func (s *IndexStore) DeleteByKey(ctx context.Context, name string, keyField, value string, filter interfaces.IndexFilter) error {
	exists, err := s.indexExists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("index %s: %w", name, interfaces.ErrIndexNotFound)
	}

	column, err := keyColumn(keyField)
	if err != nil {
		return err
	}

	query := badgerhold.Where("Index").Eq(name).
		And(column).Eq(value).
		And("Datasource").Eq(filter.Datasource)
	query = connectionScope(query.And("ConnectionID"), filter.ConnectionID)
	if err := s.db.Store().DeleteMatching(&indexedChunk{}, query); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (s *IndexStore) ScrollKeys(ctx context.Context, name string, keyField string, filter interfaces.IndexFilter, fn func(value string) error) error {
	exists, err := s.indexExists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("index %s: %w", name, interfaces.ErrIndexNotFound)
	}

	column, err := keyColumn(keyField)
	if err != nil {
		return err
	}

	query := badgerhold.Where("Index").Eq(name).
		And("Datasource").Eq(filter.Datasource)
	query = connectionScope(query.And("ConnectionID"), filter.ConnectionID)

	seen := make(map[string]struct{})
	err = s.db.Store().ForEach(query, func(rec *indexedChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		value := rec.DocID
		if column == "DocDisplayID" {
			value = rec.DocDisplayID
		}
		if value == "" {
			return nil
		}
		if _, ok := seen[value]; ok {
			return nil
		}
		seen[value] = struct{}{}
		return fn(value)
	})
	if err != nil {
		return fmt.Errorf("failed to scroll index keys: %w", err)
	}
	return nil
}

func (s *IndexStore) Ping(ctx context.Context) error {
	_, err := s.indexExists("ping")
	return err
}
