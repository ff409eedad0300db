package storage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/borderwars/server/internal/config"
	"github.com/borderwars/server/internal/database"
	"github.com/borderwars/server/internal/storage/gormstore"
	"github.com/borderwars/server/internal/storage/memory"
)

// NewBackend builds the backend named by the storage config. The gorm backend
// needs a connected database manager; the memory backend runs standalone.
func NewBackend(cfg config.StorageConfig, db *database.Manager, log zerolog.Logger, flushInterval time.Duration) (Backend, error) {
	switch cfg.Type {
	case "gorm":
		if db == nil {
			return nil, fmt.Errorf("gorm storage requires a database manager")
		}
		return gormstore.New(db, log, flushInterval), nil
	case "memory", "":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
