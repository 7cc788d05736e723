//go:build integration

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/nuka-mind/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	"go.uber.org/zap"
)

func startNeo4j(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	require.NoError(t, err, "start neo4j")
	t.Cleanup(func() { container.Terminate(ctx) })

	uri, err := container.BoltUrl(ctx)
	require.NoError(t, err, "neo4j bolt url")
	return uri
}

func TestNeo4jBackend_Namespaces(t *testing.T) {
	ctx := context.Background()
	uri := startNeo4j(t)

	backend, err := NewNeo4jBackend(ctx, uri, "", "", zap.NewNop())
	require.NoError(t, err)
	defer backend.Close(ctx)

	emb := embedding.NewHashProvider(64)
	adaIdx, err := backend.Open(ctx, "ada", emb.Dimension())
	require.NoError(t, err)
	bobIdx, err := backend.Open(ctx, "bob", emb.Dimension())
	require.NoError(t, err)

	ada := NewStore(adaIdx, emb, DefaultScoring(), zap.NewNop())
	bob := NewStore(bobIdx, emb, DefaultScoring(), zap.NewNop())

	_, err = ada.Add(ctx, []Candidate{
		{Content: "Fresh bread at the bakery", Importance: 7, FormedAt: 10, Location: &Location{X: 1, Y: 2}},
		{Content: "The river was cold", Importance: 3, FormedAt: 20},
	})
	require.NoError(t, err)
	_, err = bob.Add(ctx, []Candidate{{Content: "Fresh bread at the bakery", Importance: 7, FormedAt: 10}})
	require.NoError(t, err)

	n, err := ada.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The vector index is populated asynchronously.
	var results []Scored
	require.Eventually(t, func() bool {
		results, err = ada.Search(ctx, "Fresh bread at the bakery", 2, 30)
		return err == nil && len(results) == 2
	}, 30*time.Second, 500*time.Millisecond)

	assert.Equal(t, "Fresh bread at the bakery", results[0].Content)
	require.NotNil(t, results[0].Location)
	assert.Equal(t, 2, results[0].Location.Y)

	require.NoError(t, ada.Drop(ctx))
	n, err = ada.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = bob.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "dropping one namespace must not touch another")
}
