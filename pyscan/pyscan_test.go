package pyscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func noPythonEngine() *Engine {
	return &Engine{PythonBin: "python3-definitely-does-not-exist"}
}

func TestScanFallsBackToRegexWhenNoInterpreter(t *testing.T) {
	e := noPythonEngine()
	assert.False(t, e.HasPython())

	scan := e.Scan("import os\nimport pandas as pd\n")
	assert.NotEmpty(t, scan.Imports)
}

func TestScanNeverErrorsOnMalformedSource(t *testing.T) {
	e := noPythonEngine()
	assert.NotPanics(t, func() {
		e.Scan("def broken(:\n    this is +++ not python")
	})
}

func TestScanRegexImports(t *testing.T) {
	e := noPythonEngine()
	scan := e.Scan("import os\nfrom sys import path\nimport pandas as pd\n")
	var sawPlain, sawFrom, sawAlias bool
	for _, imp := range scan.Imports {
		switch imp.Statement {
		case "import os":
			sawPlain = true
		case "from sys import path":
			sawFrom = true
		case "import pandas as pd":
			sawAlias = true
		}
	}
	assert.True(t, sawPlain)
	assert.True(t, sawFrom)
	assert.True(t, sawAlias)
}

func TestScanRegexFunctionsAndClasses(t *testing.T) {
	e := noPythonEngine()
	scan := e.Scan("class Foo:\n    pass\n\ndef bar(x):\n    return x\n")
	assert.Contains(t, scan.ClassDefs, "Foo")
	require := scan.Functions
	var found bool
	for _, f := range require {
		if f.Name == "bar" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestScanRegexAssignsAndNames(t *testing.T) {
	e := noPythonEngine()
	scan := e.Scan("x = 1\ny = x + z\n")
	var sawX bool
	for _, a := range scan.Assigns {
		if a.Name == "x" {
			sawX = true
		}
	}
	assert.True(t, sawX)

	var sawZ bool
	for _, n := range scan.Names {
		if n.Name == "z" {
			sawZ = true
		}
	}
	assert.True(t, sawZ)
}

func TestIsStdlib(t *testing.T) {
	assert.True(t, IsStdlib("os"))
	assert.True(t, IsStdlib("json"))
	assert.False(t, IsStdlib("pandas"))
}

func TestAvailabilityProbeStdlibAlwaysAvailable(t *testing.T) {
	p := NewAvailabilityProbe("python3-definitely-does-not-exist")
	assert.True(t, p.IsAvailable("os"))
}

func TestAvailabilityProbeUnavailableOnMissingInterpreter(t *testing.T) {
	p := NewAvailabilityProbe("python3-definitely-does-not-exist")
	assert.False(t, p.IsAvailable("some_third_party_pkg"))
}

func TestSortImportsStdlibFirst(t *testing.T) {
	imports := []Import{
		{Statement: "import pandas", Module: "pandas"},
		{Statement: "import os", Module: "os"},
		{Statement: "import sys", Module: "sys"},
	}
	sorted := SortImportsStdlibFirst(imports)
	assert.Equal(t, "os", sorted[0].Module)
	assert.Equal(t, "sys", sorted[1].Module)
	assert.Equal(t, "pandas", sorted[2].Module)
}
