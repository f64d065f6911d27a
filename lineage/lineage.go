// Package lineage records provenance for synthesized workflows: which
// execution produced which output file, and which input files an execution
// consumed. The default build is a no-op; build with the "neo4j" tag to get
// a graph-backed implementation (see neo4j_lineage.go), grounded on
// hdn/memory/cypher_query.go's driver/session pattern.
package lineage

import "weave/tracker"

// Recorder matches preprocessor.Lineage's duck-typed interface; defined
// here too so callers can depend on a concrete type without importing
// preprocessor.
type Recorder interface {
	RecordExecution(sessionID string, entry tracker.ExecutionEntry)
}

// NoOp is the default Recorder: it does nothing, used whenever no graph
// backend is configured (every build that doesn't set the neo4j tag, or a
// neo4j build running without connection details).
type NoOp struct{}

func (NoOp) RecordExecution(string, tracker.ExecutionEntry) {}

var _ Recorder = NoOp{}
