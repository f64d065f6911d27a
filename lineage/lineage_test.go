package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"weave/tracker"
)

func TestNoOpRecordExecutionNeverPanics(t *testing.T) {
	var r Recorder = NoOp{}
	assert.NotPanics(t, func() {
		r.RecordExecution("session-1", tracker.ExecutionEntry{ExecutionIndex: 0})
	})
}

func TestFromConfigReturnsNoOpInDefaultBuild(t *testing.T) {
	r := FromConfig("bolt://localhost:7687", "neo4j", "password")
	assert.IsType(t, NoOp{}, r)
}

func TestFromConfigReturnsNoOpWhenURIEmpty(t *testing.T) {
	r := FromConfig("", "", "")
	assert.IsType(t, NoOp{}, r)
}
