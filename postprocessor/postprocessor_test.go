package postprocessor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"weave/preprocessor"
	"weave/pyscan"
)

func noPythonEngine() *pyscan.Engine {
	return &pyscan.Engine{PythonBin: "python3-does-not-exist"}
}

func TestFixMissingImportsInsertsExpected(t *testing.T) {
	data := &preprocessor.PreprocessedData{Imports: []string{"import os", "import pandas as pd"}}
	code := "import os\n\nx = 1\n"
	fixed, report := Fix(code, data, noPythonEngine())
	assert.Contains(t, fixed, "import pandas as pd")
	assert.NotEmpty(t, report.FixesApplied)
}

func TestFixDoesNotDuplicateExistingImport(t *testing.T) {
	data := &preprocessor.PreprocessedData{Imports: []string{"import os"}}
	code := "import os\nx = 1\n"
	fixed, _ := Fix(code, data, noPythonEngine())
	assert.Equal(t, 1, countOccurrences(fixed, "import os"))
}

func TestFixWrongAliasesRewritesBareImport(t *testing.T) {
	data := &preprocessor.PreprocessedData{
		ImportAliases: map[string]string{"pandas": "pd"},
	}
	code := "import pandas\ndf = pd.DataFrame()\n"
	fixed, report := Fix(code, data, noPythonEngine())
	assert.Contains(t, fixed, "import pandas as pd")
	assert.NotEmpty(t, report.FixesApplied)
}

func TestFixLeavesFromImportsAlone(t *testing.T) {
	data := &preprocessor.PreprocessedData{
		ImportAliases: map[string]string{"pandas": "pd"},
	}
	code := "from pandas import DataFrame\npd.read_csv('x')\n"
	fixed, _ := Fix(code, data, noPythonEngine())
	assert.Contains(t, fixed, "from pandas import DataFrame")
}

func TestAutoFixCommonOmissionsAddsMissingOsImport(t *testing.T) {
	code := "path = os.path.join('a', 'b')\n"
	fixed, report := Fix(code, nil, noPythonEngine())
	assert.Contains(t, fixed, "import os")
	assert.NotEmpty(t, report.FixesApplied)
}

func TestAutoFixCommonOmissionsSkipsWhenAlreadyImported(t *testing.T) {
	code := "import os\npath = os.path.join('a', 'b')\n"
	fixed, _ := Fix(code, nil, noPythonEngine())
	assert.Equal(t, 1, countOccurrences(fixed, "import os"))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}
