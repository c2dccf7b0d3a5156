package tokenstore

import (
	"fmt"
	"time"

	"github.com/newsdesk/console/internal/domain"
	redisclient "github.com/newsdesk/console/internal/redis"
)

// Backend names accepted by NewFactory.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// FactoryDeps carries what the backends need. Only the fields used by the
// chosen backend must be set.
type FactoryDeps struct {
	Redis    redisclient.Cmdable
	Dynamo   tokensDynamoDB
	Table    string
	FilePath string
	TTL      time.Duration
	Clock    domain.Clock
}

// NewFactory returns a Factory for backend. The file backend keeps one
// document per client, named after the client ID, next to FilePath.
func NewFactory(backend string, deps FactoryDeps) (Factory, error) {
	if deps.Clock == nil {
		deps.Clock = domain.RealClock{}
	}

	switch backend {
	case BackendMemory:
		return NewMemoryFactory().For, nil

	case BackendFile:
		if deps.FilePath == "" {
			return nil, fmt.Errorf("%w: tokens.file_path (tokens.backend=file)", domain.ErrConfigRequired)
		}
		return func(clientID string) Store {
			return NewFileStore(clientFilePath(deps.FilePath, clientID))
		}, nil

	case BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("%w: redis client (tokens.backend=redis)", domain.ErrConfigRequired)
		}
		return func(clientID string) Store {
			return NewRedisStore(deps.Redis, clientID, deps.TTL)
		}, nil

	case BackendDynamoDB:
		if deps.Dynamo == nil || deps.Table == "" {
			return nil, fmt.Errorf("%w: dynamodb client and tokens.table (tokens.backend=dynamodb)", domain.ErrConfigRequired)
		}
		return func(clientID string) Store {
			return NewDynamoStore(deps.Dynamo, deps.Table, clientID, deps.TTL, deps.Clock)
		}, nil

	default:
		return nil, fmt.Errorf("unknown token backend %q: %w", backend, domain.ErrInvalidInput)
	}
}
