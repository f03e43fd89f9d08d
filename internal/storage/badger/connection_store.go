package badger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ConnectionStore implements the ConnectionStore interface for Badger
type ConnectionStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewConnectionStore creates a new ConnectionStore instance
func NewConnectionStore(db *BadgerDB, logger arbor.ILogger) *ConnectionStore {
	return &ConnectionStore{
		db:     db,
		logger: logger,
	}
}

func (s *ConnectionStore) StoreConnection(conn *models.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	if err := s.db.Store().Upsert(conn.ID, conn); err != nil {
		return fmt.Errorf("failed to store connection: %w", err)
	}
	return nil
}

func (s *ConnectionStore) GetConnection(id string) (*models.Connection, error) {
	var conn models.Connection
	if err := s.db.Store().Get(id, &conn); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("connection %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

// GetDefaultConnection returns the first connection registered for the
// datasource.
func (s *ConnectionStore) GetDefaultConnection(datasource string) (*models.Connection, error) {
	var conns []models.Connection
	query := badgerhold.Where("Datasource").Eq(datasource).SortBy("ID").Limit(1)
	if err := s.db.Store().Find(&conns, query); err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("no connection for datasource %s: %w", datasource, interfaces.ErrNotFound)
	}
	return &conns[0], nil
}
