package preprocessor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weave/pyscan"
	"weave/tracker"
)

func noPythonEngine() *pyscan.Engine {
	return &pyscan.Engine{PythonBin: "python3-does-not-exist"}
}

func TestPreprocessAggregatesImportsAndOutputs(t *testing.T) {
	entries := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: "import pandas as pd\ndf = pd.read_csv('x.csv')\n", Timestamp: time.Now()},
		{ExecutionIndex: 1, Code: "import pandas\ndf.to_csv('y.csv')\n", OutputFiles: []string{"y.csv"}, Timestamp: time.Now()},
	}
	data := Preprocess(entries, noPythonEngine(), nil, "sess-1")

	require.Contains(t, data.OutputFileMapping, "y.csv")
	assert.Equal(t, []int{1}, data.OutputFileMapping["y.csv"])
	assert.Equal(t, "pd", data.ImportAliases["pandas"])
}

func TestPreprocessNormalizesBareImportToAlias(t *testing.T) {
	entries := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: "import pandas as pd\nprint(pd.DataFrame())\n"},
		{ExecutionIndex: 1, Code: "import pandas\n"},
	}
	data := Preprocess(entries, noPythonEngine(), nil, "sess-1")

	var found bool
	for _, imp := range data.Imports {
		if imp == "import pandas as pd" {
			found = true
		}
		assert.NotEqual(t, "import pandas", imp, "bare import should have been rewritten")
	}
	assert.True(t, found)
}

func TestPreprocessInfersCanonicalAliasFromAttributeAccess(t *testing.T) {
	entries := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: "np.array([1,2,3])\n"},
	}
	data := Preprocess(entries, noPythonEngine(), nil, "sess-1")
	assert.Equal(t, "np", data.ImportAliases["numpy"])
}

func TestPreprocessFailsClosedOnBadEntry(t *testing.T) {
	entries := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: "import os\n"},
	}
	// Should not panic even if engine is misconfigured.
	assert.NotPanics(t, func() {
		Preprocess(entries, nil, nil, "sess-1")
	})
}

type recordingLineage struct {
	calls int
}

func (r *recordingLineage) RecordExecution(sessionID string, entry tracker.ExecutionEntry) {
	r.calls++
}

func TestPreprocessCallsLineageWhenConfigured(t *testing.T) {
	lin := &recordingLineage{}
	entries := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: "import os\n"},
		{ExecutionIndex: 1, Code: "import sys\n"},
	}
	Preprocess(entries, noPythonEngine(), lin, "sess-1")
	assert.Equal(t, 2, lin.calls)
}

func TestSortedOutputBasenames(t *testing.T) {
	data := &PreprocessedData{OutputFileMapping: map[string][]int{"b.csv": {1}, "a.csv": {0}}}
	assert.Equal(t, []string{"a.csv", "b.csv"}, data.SortedOutputBasenames())
}
