package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/quockhanh41/blog-microservice/internal/user/core/ports"
)

// Neo4jGraph stocke les arêtes FOLLOWS. Les noeuds ne portent que l'id :
// le username vit dans Postgres, le graphe ne fait que la topologie.
type Neo4jGraph struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraph(driver neo4j.DriverWithContext) *Neo4jGraph {
	return &Neo4jGraph{driver: driver}
}

var _ ports.SocialGraph = (*Neo4jGraph)(nil)

// EnsureSchema crée la contrainte d'unicité (et donc l'index) sur User.id
// pour que les lookups soient O(1). Idempotent, appelé au démarrage.
func (g *Neo4jGraph) EnsureSchema(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`
		_, err := tx.Run(ctx, query, nil)
		return nil, err
	})
	return err
}

// Follow : MERGE est idempotent, re-suivre un user déjà suivi est un no-op.
func (g *Neo4jGraph) Follow(ctx context.Context, followerID, followeeID string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (a:User {id: $followerId})
			MERGE (b:User {id: $followeeId})
			MERGE (a)-[r:FOLLOWS]->(b)
			ON CREATE SET r.created_at = datetime()
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"followerId": followerID,
			"followeeId": followeeID,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: follow: %w", err)
	}
	return nil
}

func (g *Neo4jGraph) Unfollow(ctx context.Context, followerID, followeeID string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (a:User {id: $followerId})-[r:FOLLOWS]->(b:User {id: $followeeId})
			DELETE r
		`
		_, err := tx.Run(ctx, query, map[string]any{"followerId": followerID, "followeeId": followeeID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: unfollow: %w", err)
	}
	return nil
}

func (g *Neo4jGraph) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `MATCH (a:User {id: $userId})-[:FOLLOWS]->(b:User) RETURN b.id as followeeId`
		res, err := tx.Run(ctx, query, map[string]any{"userId": userID})
		if err != nil {
			return nil, err
		}

		var ids []string
		for res.Next(ctx) {
			id, _ := res.Record().Get("followeeId")
			ids = append(ids, id.(string))
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph: following ids: %w", err)
	}
	return result.([]string), nil
}
