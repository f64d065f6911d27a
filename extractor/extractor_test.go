package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"weave/pyscan"
)

func newTestExtractor() *CodeExtractor {
	return &CodeExtractor{
		Engine: &pyscan.Engine{PythonBin: "python3-does-not-exist"},
		Probe:  pyscan.NewAvailabilityProbe("python3-does-not-exist"),
	}
}

func TestExtractImportsDedupeAndSort(t *testing.T) {
	c := newTestExtractor()
	code := "import os\nimport pandas as pd\nimport os\nfrom sys import path\n"
	imports := c.ExtractImports(code, false)
	assert.Equal(t, []string{"from sys import path", "import os", "import pandas as pd"}, imports)
}

func TestExtractImportsFiltersUnavailableStdlibAlwaysKept(t *testing.T) {
	c := newTestExtractor()
	code := "import os\nimport some_totally_fake_package_xyz\n"
	imports := c.ExtractImports(code, true)
	assert.Contains(t, imports, "import os")
	assert.NotContains(t, imports, "import some_totally_fake_package_xyz")
}

func TestExtractFunctionsRegexFallback(t *testing.T) {
	c := newTestExtractor()
	code := "def foo(a, b):\n    return a + b\n\ndef bar():\n    pass\n"
	fns := c.ExtractFunctions(code)
	if assert.Len(t, fns, 2) {
		assert.Equal(t, "foo", fns[0].Name)
		assert.Equal(t, "a, b", fns[0].Args)
		assert.Equal(t, "bar", fns[1].Name)
	}
}

func TestExtractFunctionsToleratesMalformedCode(t *testing.T) {
	c := newTestExtractor()
	assert.NotPanics(t, func() {
		c.ExtractFunctions("def broken(:\n  this is not python at all +++ ")
	})
}

func TestIdentifyHardcodedPaths(t *testing.T) {
	c := newTestExtractor()
	code := `df = pd.read_csv("data/clinical.csv")
print("hello world")
`
	paths := c.IdentifyHardcodedPaths(code)
	var found bool
	for _, p := range paths {
		if p.Value == "data/clinical.csv" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExtractFileOperationsReadAndWrite(t *testing.T) {
	c := newTestExtractor()
	code := `df = pd.read_csv("input.csv")
df.to_csv("output.csv")
f = open("notes.txt", "w")
g = open("notes.txt", "r")
`
	ops := c.ExtractFileOperations(code)
	var sawRead, sawWrite, sawOpenWrite bool
	for _, op := range ops {
		if op.Call == "read_csv" && op.Kind == "read" {
			sawRead = true
		}
		if op.Call == "to_csv" && op.Kind == "write" {
			sawWrite = true
		}
		if op.Call == "open" && op.Kind == "write" && op.Path == "notes.txt" {
			sawOpenWrite = true
		}
	}
	assert.True(t, sawRead)
	assert.True(t, sawWrite)
	assert.True(t, sawOpenWrite)
}

func TestExtractOutputFiles(t *testing.T) {
	c := newTestExtractor()
	code := `df.to_csv("results/summary.csv")
plt.savefig("plot.png")
`
	outs := c.ExtractOutputFiles(code)
	assert.Equal(t, []string{"plot.png", "summary.csv"}, outs)
}

func TestFindImportSection(t *testing.T) {
	c := newTestExtractor()
	code := "import os\nimport sys\n\nimport pandas as pd\n\ndef main():\n    pass\n"
	sec := c.FindImportSection(code, false)
	assert.Equal(t, 1, sec.StartLine)
	assert.Equal(t, 4, sec.EndLine)
}

func TestFindImportSectionNoImports(t *testing.T) {
	c := newTestExtractor()
	sec := c.FindImportSection("x = 1\ny = 2\n", false)
	assert.Equal(t, 0, sec.StartLine)
}

func TestMergeImports(t *testing.T) {
	got := MergeImports([]string{"import os", "import sys"}, []string{"import sys", "import json"})
	assert.Equal(t, []string{"import json", "import os", "import sys"}, got)
}

func TestGetCodeComplexity(t *testing.T) {
	c := newTestExtractor()
	code := "def a():\n    pass\n\ndef b():\n    pass\n\ndef c():\n    pass\n\ndef d():\n    pass\n"
	comp := c.GetCodeComplexity(code)
	assert.Equal(t, 4, comp.FunctionCount)
	assert.True(t, comp.IsComplex)
}
