package memory

import (
	"context"
	"fmt"

	"github.com/nidhogg/nuka-mind/internal/config"
	"github.com/nidhogg/nuka-mind/internal/vectorstore"
	"go.uber.org/zap"
)

// OpenBackend connects the vector database selected in cfg.Memory.Backend.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Memory.Backend {
	case "", "chromem":
		return NewChromemBackend(cfg.Memory.PersistPath)
	case "qdrant":
		client, err := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if err != nil {
			return nil, err
		}
		return NewQdrantBackend(client), nil
	case "neo4j":
		n := cfg.Database.Neo4j
		return NewNeo4jBackend(ctx, n.URI, n.User, n.Password, logger)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}

// ScoringFromConfig converts the config section into Scoring.
func ScoringFromConfig(c config.ScoringConfig) Scoring {
	return Scoring{
		MinImportance:   c.MinImportance,
		MaxImportance:   c.MaxImportance,
		ImportanceFloor: c.ImportanceFloor,
		HalfLifeTicks:   c.HalfLifeTicks,
		Overfetch:       c.Overfetch,
	}
}
