package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const neo4jVectorIndex = "mind_memory_embedding"

// Neo4jBackend stores memories as (:Memory {agent_id}) nodes behind a single
// cosine vector index shared by all agents.
type Neo4jBackend struct {
	driver    neo4j.DriverWithContext
	indexOnce sync.Once
	indexErr  error
	logger    *zap.Logger
}

// NewNeo4jBackend creates a new Neo4j driver and verifies connectivity.
func NewNeo4jBackend(ctx context.Context, uri, user, password string, logger *zap.Logger) (*Neo4jBackend, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jBackend{driver: driver, logger: logger}, nil
}

func (b *Neo4jBackend) Name() string { return "neo4j" }

func (b *Neo4jBackend) Open(ctx context.Context, namespace string, dimension int) (Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("neo4j: dimension must be known to create the vector index")
	}
	b.indexOnce.Do(func() {
		b.indexErr = b.ensureIndex(ctx, dimension)
	})
	if b.indexErr != nil {
		return nil, b.indexErr
	}
	return &neo4jIndex{driver: b.driver, agentID: namespace}, nil
}

func (b *Neo4jBackend) ensureIndex(ctx context.Context, dimension int) error {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// Index options do not accept parameters.
	cypher := fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (m:Memory) ON (m.embedding) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
		neo4jVectorIndex, dimension)
	if _, err := session.Run(ctx, cypher, nil); err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	b.logger.Info("neo4j vector index ready", zap.Int("dimension", dimension))
	return nil
}

// Close shuts down the Neo4j driver.
func (b *Neo4jBackend) Close(ctx context.Context) error {
	return b.driver.Close(ctx)
}

type neo4jIndex struct {
	driver  neo4j.DriverWithContext
	agentID string
}

// Insert writes every memory in one transaction.
func (i *neo4jIndex) Insert(ctx context.Context, memories []Memory) error {
	rows := make([]interface{}, len(memories))
	for n, m := range memories {
		emb := make([]float64, len(m.Embedding))
		for j, v := range m.Embedding {
			emb[j] = float64(v)
		}
		row := map[string]interface{}{
			"id":         m.ID,
			"content":    m.Content,
			"timestamp":  m.Timestamp,
			"importance": m.Importance,
			"embedding":  emb,
			"x":          nil,
			"y":          nil,
		}
		if m.Location != nil {
			row["x"] = int64(m.Location.X)
			row["y"] = int64(m.Location.Y)
		}
		rows[n] = row
	}

	session := i.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx,
			`UNWIND $rows AS r
			 CREATE (m:Memory {
				id: r.id, agent_id: $agentId, content: r.content,
				timestamp: r.timestamp, importance: r.importance,
				x: r.x, y: r.y, embedding: r.embedding
			 })`,
			map[string]interface{}{"rows": rows, "agentId": i.agentID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("create memories: %w", err)
	}
	return nil
}

func (i *neo4jIndex) Query(ctx context.Context, vector []float32, n int) ([]Hit, error) {
	if n <= 0 {
		return nil, nil
	}
	vec := make([]float64, len(vector))
	for j, v := range vector {
		vec[j] = float64(v)
	}

	session := i.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	// The index is shared, so ask for more neighbours than needed and filter
	// down to this agent.
	result, err := session.Run(ctx,
		`CALL db.index.vector.queryNodes($index, $fetch, $vec) YIELD node, score
		 WHERE node.agent_id = $agentId
		 RETURN node.id AS id, node.content AS content, node.timestamp AS timestamp,
		        node.importance AS importance, node.x AS x, node.y AS y, score
		 ORDER BY score DESC LIMIT $limit`,
		map[string]interface{}{
			"index":   neo4jVectorIndex,
			"fetch":   n * 8,
			"vec":     vec,
			"agentId": i.agentID,
			"limit":   n,
		})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	var hits []Hit
	for result.Next(ctx) {
		rec := result.Record()
		id, _ := rec.Get("id")
		content, _ := rec.Get("content")
		ts, _ := rec.Get("timestamp")
		imp, _ := rec.Get("importance")
		score, _ := rec.Get("score")

		m := Memory{ID: id.(string), Content: content.(string), Timestamp: ts.(int64), Importance: imp.(float64)}
		x, _ := rec.Get("x")
		y, _ := rec.Get("y")
		if xi, ok := x.(int64); ok {
			if yi, ok := y.(int64); ok {
				m.Location = &Location{X: int(xi), Y: int(yi)}
			}
		}
		// Neo4j reports cosine as (1 + cos) / 2.
		hits = append(hits, Hit{Memory: m, Similarity: 2*score.(float64) - 1})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read vector query: %w", err)
	}
	return hits, nil
}

func (i *neo4jIndex) Count(ctx context.Context) (int, error) {
	session := i.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (m:Memory {agent_id: $agentId}) RETURN count(m) AS n`,
		map[string]interface{}{"agentId": i.agentID})
	if err != nil {
		return 0, err
	}
	rec, err := result.Single(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := rec.Get("n")
	return int(n.(int64)), nil
}

func (i *neo4jIndex) Drop(ctx context.Context) error {
	session := i.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (m:Memory {agent_id: $agentId}) DETACH DELETE m`,
		map[string]interface{}{"agentId": i.agentID})
	return err
}
