//go:build neo4j

package lineage

// FromConfig returns a Neo4jRecorder when uri is set, or NoOp otherwise.
// Built with -tags neo4j; see factory_default.go for the untagged build.
func FromConfig(uri, user, pass string) Recorder {
	if uri == "" {
		return NoOp{}
	}
	return NewNeo4jRecorder(uri, user, pass)
}
