//go:build !neo4j

package lineage

// FromConfig always returns NoOp in the default build; the Neo4j-backed
// Recorder only exists when built with -tags neo4j (see factory_neo4j.go).
func FromConfig(uri, user, pass string) Recorder {
	return NoOp{}
}
