package storage

import (
	"fmt"

	"github.com/johnwmail/taskgrab/config"
)

// NewStore creates the configured storage backend
func NewStore(cfg *config.Config) (ListingStore, error) {
	switch cfg.StorageBackend {
	case "filesystem":
		return NewFilesystemStore(cfg.DataDir)
	case "mongodb":
		return NewMongoStore(cfg.MongoURL, cfg.MongoDB)
	case "dynamodb":
		return NewDynamoStore(cfg.DynamoTable, cfg.DynamoRegion)
	case "redis":
		return NewRedisStore(cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.StorageBackend)
	}
}
