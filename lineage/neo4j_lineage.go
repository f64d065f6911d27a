//go:build neo4j

package lineage

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"weave/tracker"
)

// Neo4jRecorder writes a provenance graph of
// (:Execution)-[:PRODUCES]->(:OutputFile) and
// (:Execution)-[:CONSUMES]->(:InputFile) relationships, built the same way
// hdn/memory/cypher_query.go opens a driver and session per call. Recording
// is best-effort: a write failure is logged, never propagated, since
// lineage is an optional side channel.
type Neo4jRecorder struct {
	URI, User, Pass string
	Timeout         time.Duration
}

// NewNeo4jRecorder returns a Recorder backed by a Neo4j graph.
func NewNeo4jRecorder(uri, user, pass string) *Neo4jRecorder {
	return &Neo4jRecorder{URI: uri, User: user, Pass: pass, Timeout: 5 * time.Second}
}

var _ Recorder = (*Neo4jRecorder)(nil)

func (r *Neo4jRecorder) RecordExecution(sessionID string, entry tracker.ExecutionEntry) {
	driver, err := neo4j.NewDriverWithContext(r.URI, neo4j.BasicAuth(r.User, r.Pass, ""))
	if err != nil {
		log.Printf("⚠️ [LINEAGE] connect failed (continuing without lineage): %v", err)
		return
	}
	defer driver.Close(context.Background())

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sess := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer sess.Close(ctx)

	_, err = sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (e:Execution {session_id: $session, index: $index})
			SET e.success = $success, e.timestamp = $timestamp
		`, map[string]any{
			"session":   sessionID,
			"index":     entry.ExecutionIndex,
			"success":   entry.Success,
			"timestamp": entry.Timestamp.Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}

		for _, out := range entry.OutputFiles {
			if _, err := tx.Run(ctx, `
				MERGE (f:OutputFile {path: $path})
				WITH f
				MATCH (e:Execution {session_id: $session, index: $index})
				MERGE (e)-[:PRODUCES]->(f)
			`, map[string]any{"path": filepath.Base(out), "session": sessionID, "index": entry.ExecutionIndex}); err != nil {
				return nil, err
			}
		}

		for _, in := range entry.InputFiles {
			if _, err := tx.Run(ctx, `
				MERGE (f:InputFile {path: $path})
				WITH f
				MATCH (e:Execution {session_id: $session, index: $index})
				MERGE (e)-[:CONSUMES]->(f)
			`, map[string]any{"path": filepath.Base(in), "session": sessionID, "index": entry.ExecutionIndex}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		log.Printf("⚠️ [LINEAGE] write failed (continuing without lineage): %v", err)
	}
}
