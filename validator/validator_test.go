package validator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}

func TestValidateSuccessfulRoundTrip(t *testing.T) {
	hasPython(t)

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "x.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte("a,b\n1,2\n"), 0o644))

	script := `import argparse, shutil

parser = argparse.ArgumentParser()
parser.add_argument("--input-x")
parser.add_argument("--output-csv")
args = parser.parse_args()

shutil.copyfile(args.input_x, args.output_csv)
`
	artifact := filepath.Join(dir, "workflow.py")
	require.NoError(t, os.WriteFile(artifact, []byte(script), 0o644))

	expectedContent := []byte("a,b\n1,2\n")
	result := Validate(context.Background(), artifact, []string{inputPath}, []ExpectedOutput{
		{Basename: "y.csv", Content: expectedContent},
	}, "python3")

	require.True(t, result.Valid, "stderr: %s", result.Stderr)
	assert.True(t, result.OutputFilesMatch["y.csv"].Match)
}

func TestValidateMissingOutputFails(t *testing.T) {
	hasPython(t)

	dir := t.TempDir()
	artifact := filepath.Join(dir, "workflow.py")
	require.NoError(t, os.WriteFile(artifact, []byte("print('did nothing')\n"), 0o644))

	result := Validate(context.Background(), artifact, nil, []ExpectedOutput{
		{Basename: "never.csv", Content: []byte("x")},
	}, "python3")

	assert.False(t, result.Valid)
	assert.False(t, result.OutputFilesMatch["never.csv"].Match)
}

func TestValidateMismatchedContentFails(t *testing.T) {
	hasPython(t)

	dir := t.TempDir()
	artifact := filepath.Join(dir, "workflow.py")
	script := `with open("out.csv", "w") as f:
    f.write("wrong content")
`
	require.NoError(t, os.WriteFile(artifact, []byte(script), 0o644))

	result := Validate(context.Background(), artifact, nil, []ExpectedOutput{
		{Basename: "out.csv", Content: []byte("expected content")},
	}, "python3")

	assert.False(t, result.Valid)
	assert.False(t, result.OutputFilesMatch["out.csv"].Match)
}

func TestCompareOneUsesDigestForLargeFiles(t *testing.T) {
	big := make([]byte, hashThreshold+10)
	match, _ := compareOne(ExpectedOutput{Content: big}, ExpectedOutput{Content: big})
	assert.True(t, match)

	other := make([]byte, hashThreshold+10)
	other[0] = 1
	match, diff := compareOne(ExpectedOutput{Content: big}, ExpectedOutput{Content: other})
	assert.False(t, match)
	assert.Contains(t, diff, "sha256")
}

func TestDetectArgsFindsAddArgumentNames(t *testing.T) {
	code := `parser.add_argument('--input-clinical')
parser.add_argument("--output-dir")
`
	args := detectArgs(code)
	assert.Contains(t, args, "input-clinical")
	assert.Contains(t, args, "output-dir")
}

func TestDetectArgsReturnsNilWithoutArgparse(t *testing.T) {
	assert.Nil(t, detectArgs("x = 1\n"))
}

func TestClassifyArg(t *testing.T) {
	assert.Equal(t, roleInput, classifyArg("input-clinical"))
	assert.Equal(t, roleOutputPlot, classifyArg("output-plot"))
	assert.Equal(t, roleOutputCSV, classifyArg("output-csv"))
}
