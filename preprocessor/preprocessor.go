// Package preprocessor implements the WorkflowPreprocessor: a pure
// aggregation step over a session's ExecutionEntries, producing
// PreprocessedData for the LLM processor and postprocessor. It fails
// closed — the journal is assumed possibly-corrupt, so any per-entry
// exception is swallowed and that entry simply contributes nothing.
package preprocessor

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"weave/extractor"
	"weave/pyscan"
	"weave/tracker"
)

// FileOpRecord mirrors extractor.FileOp for a single execution's worth of
// file operations, kept alongside the owning execution index.
type FileOpRecord struct {
	ExecIndex int
	Op        extractor.FileOp
}

// CodeStructure summarizes one execution's functions/classes for the LLM
// prompt's "reference, not prescription" section.
type CodeStructure struct {
	ExecIndex     int
	FunctionCount int
	ClassCount    int
}

// PreprocessedData is the aggregated view of a session handed to the saver,
// llmprocessor, and postprocessor.
type PreprocessedData struct {
	Imports            []string
	ImportAliases      map[string]string // module -> canonical alias, e.g. "pandas" -> "pd"
	OutputFileMapping   map[string][]int  // basename -> execution indices that produce it
	HardcodedPaths     []extractor.HardcodedPath
	Functions          []extractor.FunctionInfo
	FileOperations     []FileOpRecord
	CodeStructure      []CodeStructure
	PreprocessedExecutions []tracker.ExecutionEntry
}

// canonicalAliases maps an inferred attribute prefix to the module it
// conventionally names, used for both authoritative "import X as Y" and
// inferential "Y." attribute-access alias detection.
var canonicalAliases = map[string]string{
	"pd":    "pandas",
	"np":    "numpy",
	"plt":   "matplotlib.pyplot",
	"sns":   "seaborn",
	"stats": "scipy.stats",
	"gp":    "gseapy",
}

// Lineage is the optional provenance recorder preprocessor calls through;
// nil means no lineage graph is configured (the default, non-neo4j build).
type Lineage interface {
	RecordExecution(sessionID string, entry tracker.ExecutionEntry)
}

// Preprocess aggregates entries into PreprocessedData. Engine may be nil,
// in which case a default pyscan.Engine is used. lineage may be nil.
func Preprocess(entries []tracker.ExecutionEntry, engine *pyscan.Engine, lineage Lineage, sessionID string) *PreprocessedData {
	if engine == nil {
		engine = pyscan.NewEngine()
	}
	ext := &extractor.CodeExtractor{Engine: engine, Probe: pyscan.NewAvailabilityProbe("python3")}

	data := &PreprocessedData{
		ImportAliases:     make(map[string]string),
		OutputFileMapping: make(map[string][]int),
	}

	var allImports [][]string
	for _, entry := range entries {
		func() {
			defer func() {
				// Fail closed: a panicking entry (e.g. from a pathological
				// regex on adversarial input) contributes nothing, matching
				// the Python original's broad except-and-continue.
				_ = recover()
			}()

			imports := ext.ExtractImports(entry.Code, false)
			allImports = append(allImports, imports)

			inferAliases(entry.Code, data.ImportAliases)

			for _, p := range ext.IdentifyHardcodedPaths(entry.Code) {
				data.HardcodedPaths = append(data.HardcodedPaths, p)
			}

			fns := ext.ExtractFunctions(entry.Code)
			data.Functions = append(data.Functions, fns...)

			ops := ext.ExtractFileOperations(entry.Code)
			for _, op := range ops {
				data.FileOperations = append(data.FileOperations, FileOpRecord{ExecIndex: entry.ExecutionIndex, Op: op})
			}

			for _, path := range entry.OutputFiles {
				basename := filepath.Base(path)
				data.OutputFileMapping[basename] = append(data.OutputFileMapping[basename], entry.ExecutionIndex)
			}

			comp := ext.GetCodeComplexity(entry.Code)
			data.CodeStructure = append(data.CodeStructure, CodeStructure{
				ExecIndex:     entry.ExecutionIndex,
				FunctionCount: comp.FunctionCount,
				ClassCount:    comp.ClassCount,
			})

			data.PreprocessedExecutions = append(data.PreprocessedExecutions, entry)

			if lineage != nil {
				lineage.RecordExecution(sessionID, entry)
			}
		}()
	}

	data.Imports = normalizeImports(extractor.MergeImports(allImports...), data.ImportAliases)
	return data
}

var attrAccessRe = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.`)
var importAsRe = regexp.MustCompile(`^\s*import\s+([\w\.]+)\s+as\s+(\w+)\s*$`)

// inferAliases scans code for authoritative "import X as Y" and, failing
// that, inferential "Y." attribute access matching a canonical alias.
func inferAliases(code string, aliases map[string]string) {
	authoritative := make(map[string]bool)
	for _, line := range strings.Split(code, "\n") {
		if m := importAsRe.FindStringSubmatch(line); m != nil {
			aliases[m[1]] = m[2]
			authoritative[m[1]] = true
		}
	}

	for _, m := range attrAccessRe.FindAllStringSubmatch(code, -1) {
		prefix := m[1]
		module, ok := canonicalAliases[prefix]
		if !ok {
			continue
		}
		if authoritative[module] {
			continue
		}
		if _, exists := aliases[module]; !exists {
			aliases[module] = prefix
		}
	}
}

// normalizeImports deduplicates, rewrites bare "import pandas" to
// "import pandas as pd" when the alias map says so, and sorts
// standard-library imports first.
func normalizeImports(imports []string, aliases map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	bareImportRe := regexp.MustCompile(`^import\s+([\w\.]+)$`)

	for _, stmt := range imports {
		rewritten := stmt
		if m := bareImportRe.FindStringSubmatch(stmt); m != nil {
			module := m[1]
			if alias, ok := aliases[module]; ok && alias != "" {
				rewritten = "import " + module + " as " + alias
			}
		}
		if !seen[rewritten] {
			seen[rewritten] = true
			out = append(out, rewritten)
		}
	}

	sorted := pyscan.SortImportsStdlibFirst(toImportStructs(out))
	result := make([]string, len(sorted))
	for i, imp := range sorted {
		result[i] = imp.Statement
	}
	return result
}

func toImportStructs(statements []string) []pyscan.Import {
	out := make([]pyscan.Import, len(statements))
	moduleRe := regexp.MustCompile(`^(?:import|from)\s+([\w\.]+)`)
	for i, s := range statements {
		module := ""
		if m := moduleRe.FindStringSubmatch(s); m != nil {
			module = strings.SplitN(m[1], ".", 2)[0]
		}
		out[i] = pyscan.Import{Statement: s, Module: module}
	}
	return out
}

// SortedOutputBasenames returns OutputFileMapping keys in a deterministic
// order, used by llmprocessor when rendering the required-output-file
// section.
func (d *PreprocessedData) SortedOutputBasenames() []string {
	keys := make([]string, 0, len(d.OutputFileMapping))
	for k := range d.OutputFileMapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
