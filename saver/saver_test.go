package saver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weave/llmprocessor"
	"weave/pyscan"
	"weave/tracker"
	"weave/validator"
)

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "my_workflow", sanitizeFilename("my workflow"))
	assert.Equal(t, "unnamed", sanitizeFilename("!!!"))
	assert.Equal(t, "unnamed", sanitizeFilename(""))
	long := ""
	for i := 0; i < 80; i++ {
		long += "a"
	}
	assert.Len(t, sanitizeFilename(long), 50)
}

func TestSaveReturnsNilOnEmptyHistory(t *testing.T) {
	artifact, err := Save(context.Background(), Options{Mode: ModeNotebook})
	require.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestSaveUnknownModeErrors(t *testing.T) {
	_, err := Save(context.Background(), Options{
		Mode:       Mode("bogus"),
		Executions: []tracker.ExecutionEntry{{ExecutionIndex: 0, Code: "x = 1", Success: true}},
	})
	assert.Error(t, err)
}

func TestSaveNotebookModeWritesIpynb(t *testing.T) {
	dir := t.TempDir()
	executions := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: "import pandas as pd\ndf = pd.read_csv('clinical_data.csv')", Timestamp: time.Now(), Success: true},
		{ExecutionIndex: 1, Code: "df.to_csv('results.csv')", Timestamp: time.Now().Add(time.Second), Success: true},
	}
	artifact, err := Save(context.Background(), Options{
		Mode:         ModeNotebook,
		WorkflowsDir: dir,
		WorkflowName: "clinical analysis",
		Executions:   executions,
	})
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.True(t, artifact.Finalized)
	assert.FileExists(t, artifact.Path)
	assert.Equal(t, ".ipynb", filepath.Ext(artifact.Path))

	var nb notebook
	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &nb))
	assert.GreaterOrEqual(t, len(nb.Cells), 3)
}

func TestSelectSuccessfulFiltersOutFailures(t *testing.T) {
	entries := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Success: true},
		{ExecutionIndex: 1, Success: false},
		{ExecutionIndex: 2, Success: true},
	}
	successful := selectSuccessful(entries)
	require.Len(t, successful, 2)
	assert.Equal(t, 0, successful[0].ExecutionIndex)
	assert.Equal(t, 2, successful[1].ExecutionIndex)
}

func TestIncludeOutputProducingFailuresMatchesOnBasename(t *testing.T) {
	successful := []tracker.ExecutionEntry{
		{ExecutionIndex: 1, InputFiles: []string{"/work/cleaned.csv"}, Success: true},
	}
	failed := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, OutputFiles: []string{"/tmp/cleaned.csv"}, Success: false},
		{ExecutionIndex: 2, OutputFiles: []string{"unrelated.csv"}, Success: false},
	}
	included := includeOutputProducingFailures(successful, failed)
	require.Len(t, included, 1)
	assert.Equal(t, 0, included[0].ExecutionIndex)
}

func TestCompleteDependenciesPullsInAssigningFailedBlock(t *testing.T) {
	engine := pyscan.NewEngine()
	opts := Options{Engine: engine}
	successful := []tracker.ExecutionEntry{
		{ExecutionIndex: 2, Code: "print(threshold)"},
	}
	failed := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: "unrelated = 1"},
		{ExecutionIndex: 1, Code: "threshold = 0.05"},
	}
	completion, unresolved := completeDependencies(successful, failed, opts)
	require.Len(t, completion, 1)
	assert.Equal(t, 1, completion[0].ExecutionIndex)
	assert.Empty(t, unresolved)
}

func TestCompleteDependenciesGivesUpOnUnresolvable(t *testing.T) {
	engine := pyscan.NewEngine()
	opts := Options{Engine: engine}
	successful := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: "print(never_defined)"},
	}
	completion, unresolved := completeDependencies(successful, nil, opts)
	assert.Empty(t, completion)
	assert.Contains(t, unresolved, "never_defined")
}

func TestParameterizePathsRewritesReadersAndWriters(t *testing.T) {
	code := "df = pd.read_csv('clinical_data.csv')\ndf.to_csv('results.csv')"
	rewritten, names := parameterizePaths(code, nil)
	require.Len(t, names, 1)
	assert.Equal(t, "input-clinical", names[0])
	assert.Contains(t, rewritten, "args.input_clinical")
	assert.Contains(t, rewritten, "os.path.join(output_dir")
}

func TestParameterizePathsLeavesInternalOutputsUnrewritten(t *testing.T) {
	code := "df = pd.read_csv('intermediate.csv')\ndf.to_csv('results.csv')"
	rewritten, names := parameterizePaths(code, map[string]bool{"intermediate.csv": true})
	assert.Empty(t, names)
	assert.Contains(t, rewritten, "read_csv('intermediate.csv')")
	assert.Contains(t, rewritten, "os.path.join(output_dir")
}

func TestSaveSimpleModeProducesValidatedArtifact(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	dir := t.TempDir()
	inputDir := t.TempDir()
	inputPath := filepath.Join(inputDir, "clinical_data.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte("a,b\n1,2\n"), 0o644))

	code := "import pandas as pd\n" +
		"df = pd.read_csv('clinical_data.csv')\n" +
		"df.to_csv('results.csv', index=False)\n"

	entries := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: code, Success: true, InputFiles: []string{inputPath}, Timestamp: time.Now()},
	}

	expectedData, err := os.ReadFile(inputPath)
	require.NoError(t, err)

	artifact, err := Save(context.Background(), Options{
		Mode:         ModeSimple,
		WorkflowsDir: dir,
		WorkflowName: "clinical",
		Executions:   entries,
		InputFiles:   []string{inputPath},
		ExpectedOutputs: []validator.ExpectedOutput{
			{Basename: "results.csv", Content: expectedData},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.True(t, artifact.Finalized)
	assert.FileExists(t, artifact.Path)
}

// TestSaveSimpleIncludesFileBasedDependency covers a failed block that
// writes an intermediate file consumed only by path (no shared variable) by
// a later successful block — completeDependencies' variable analysis alone
// would miss it, so saveSimple must also pull it in via
// includeOutputProducingFailures.
func TestSaveSimpleIncludesFileBasedDependency(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	dir := t.TempDir()

	producing := "import pandas as pd\n" +
		"pd.DataFrame({'x': [1, 2]}).to_csv('intermediate.csv', index=False)\n"
	consuming := "import pandas as pd\n" +
		"df = pd.read_csv('intermediate.csv')\n" +
		"df.to_csv('results.csv', index=False)\n"

	entries := []tracker.ExecutionEntry{
		{
			ExecutionIndex: 0, Code: producing, Success: false,
			OutputFiles: []string{"/tmp/intermediate.csv"}, Timestamp: time.Now(),
		},
		{
			ExecutionIndex: 1, Code: consuming, Success: true,
			InputFiles: []string{"/tmp/intermediate.csv"}, Timestamp: time.Now().Add(time.Second),
		},
	}

	artifact, err := Save(context.Background(), Options{
		Mode:         ModeSimple,
		WorkflowsDir: dir,
		WorkflowName: "intermediate",
		Executions:   entries,
		ExpectedOutputs: []validator.ExpectedOutput{
			{Basename: "results.csv", Content: []byte("x\n1\n2\n")},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Contains(t, artifact.Code, "intermediate.csv")
	assert.True(t, artifact.Finalized)
	assert.FileExists(t, artifact.Path)
}

type stubInvokerSaver struct {
	responses []string
	calls     int
	err       error
}

func (s *stubInvokerSaver) Invoke(messages []llmprocessor.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

func TestSaveLLMModeRequiresInvoker(t *testing.T) {
	_, err := Save(context.Background(), Options{
		Mode:       ModeLLM,
		Executions: []tracker.ExecutionEntry{{ExecutionIndex: 0, Code: "x=1", Success: true}},
	})
	assert.Error(t, err)
}

func TestSaveLLMModeSynthesisFailureErrors(t *testing.T) {
	inv := &stubInvokerSaver{err: errors.New("boom")}
	_, err := Save(context.Background(), Options{
		Mode:       ModeLLM,
		WorkflowsDir: t.TempDir(),
		Executions: []tracker.ExecutionEntry{{ExecutionIndex: 0, Code: "x=1", Success: true}},
		LLM:        llmprocessor.New(inv),
	})
	assert.Error(t, err)
}

func TestMissingRequiredOutputsDetectsWriterCalls(t *testing.T) {
	code := "df.to_csv('results.csv')"
	missing := missingRequiredOutputs(code, []string{"results.csv", "plot.png"})
	assert.Equal(t, []string{"plot.png"}, missing)
}

func TestForceIncludeMissingOutputsSplicesProducingBlock(t *testing.T) {
	executions := []tracker.ExecutionEntry{
		{ExecutionIndex: 0, Code: "# plot the thing\ndf.plot()\nplt.savefig('plot.png')", OutputFiles: []string{"plot.png"}},
	}
	result := forceIncludeMissingOutputs("import pandas as pd\n", []string{"plot.png"}, executions)
	assert.Contains(t, result, "plt.savefig('plot.png')")
	assert.NotContains(t, result, "# plot the thing")
}
