package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

const (
	LabelUser          = "M365User"
	LabelGroup         = "M365Group"
	LabelSecurityGroup = "M365SecurityGroup"
	LabelTeam          = "M365Team"

	EdgeMemberOf = "MEMBER_OF"
	EdgeOwns     = "OWNS"
)

// GraphWriter mirrors users, groups and teams and their membership edges
// into a graph database. The relational store stays authoritative.
type GraphWriter interface {
	CreateNode(ctx context.Context, node any) error
	CreateEdge(ctx context.Context, fromID, toID, edgeType string, fromLabel, toLabel string) error
}

// NopGraphWriter discards everything. It is used when no graph database is
// configured.
type NopGraphWriter struct{}

func (NopGraphWriter) CreateNode(context.Context, any) error { return nil }

func (NopGraphWriter) CreateEdge(context.Context, string, string, string, string, string) error {
	return nil
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jWriter writes tenant entities to Neo4j
type Neo4jWriter struct {
	driver    neo4j.DriverWithContext
	database  string
	nodeCount int
	mu        sync.Mutex
}

// NewNeo4jWriter connects, verifies connectivity and ensures indexes exist.
func NewNeo4jWriter(ctx context.Context, cfg Neo4jConfig) (*Neo4jWriter, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	w := &Neo4jWriter{driver: driver, database: database}
	if err := w.CreateIndexes(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return w, nil
}

func (w *Neo4jWriter) Close(ctx context.Context) error {
	return w.driver.Close(ctx)
}

// CreateIndexes creates Neo4j indexes for performance
func (w *Neo4jWriter) CreateIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS FOR (n:M365User) ON (n.id)",
		"CREATE INDEX IF NOT EXISTS FOR (n:M365User) ON (n.userPrincipalName)",
		"CREATE INDEX IF NOT EXISTS FOR (n:M365Group) ON (n.id)",
		"CREATE INDEX IF NOT EXISTS FOR (n:M365SecurityGroup) ON (n.id)",
		"CREATE INDEX IF NOT EXISTS FOR (n:M365Team) ON (n.id)",
	}

	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.database,
	})
	defer session.Close(ctx)

	for _, index := range indexes {
		if _, err := session.Run(ctx, index, nil); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// CreateNode merges one entity node by id.
func (w *Neo4jWriter) CreateNode(ctx context.Context, node any) error {
	var label, id string
	switch n := node.(type) {
	case *models.User:
		label, id = LabelUser, n.ID
	case *models.M365Group:
		label, id = LabelGroup, n.ID
	case *models.SecurityGroup:
		label, id = LabelSecurityGroup, n.ID
	case *models.Team:
		label, id = LabelTeam, n.ID
	default:
		return fmt.Errorf("unknown node type: %T", node)
	}

	w.mu.Lock()
	w.nodeCount++
	w.mu.Unlock()

	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.database,
	})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		SET n += $props
	`, label)
	_, err := session.Run(ctx, query, map[string]any{
		"id":    id,
		"props": nodeProperties(node),
	})
	return err
}

// CreateEdge merges a directed relationship between two existing nodes.
func (w *Neo4jWriter) CreateEdge(ctx context.Context, fromID, toID, edgeType string, fromLabel, toLabel string) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.database,
	})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (from:%s {id: $fromId})
		MATCH (to:%s {id: $toId})
		MERGE (from)-[r:%s]->(to)
	`, fromLabel, toLabel, edgeType)

	_, err := session.Run(ctx, query, map[string]any{
		"fromId": fromID,
		"toId":   toID,
	})
	return err
}

// NodeCount returns the number of nodes written so far
func (w *Neo4jWriter) NodeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nodeCount
}

// nodeProperties flattens an entity into Neo4j-compatible properties. Null
// fields are dropped.
func nodeProperties(s any) map[string]any {
	data, _ := json.Marshal(s)
	var result map[string]any
	json.Unmarshal(data, &result)

	for k, v := range result {
		switch v.(type) {
		case nil:
			delete(result, k)
		case map[string]any, []any:
			if jsonStr, err := json.Marshal(v); err == nil {
				result[k] = string(jsonStr)
			}
		}
	}
	return result
}
