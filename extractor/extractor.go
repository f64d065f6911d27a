// Package extractor performs static analysis of Python source strings: the
// CodeExtractor of the synthesis pipeline. It never raises on malformed
// source — every operation degrades to an empty or best-effort result,
// matching pyscan's own scan-never-fails contract.
package extractor

import (
	"regexp"
	"sort"
	"strings"

	"weave/pyscan"
)

// CodeExtractor wraps a pyscan.Engine and an availability probe bound to
// the interpreter that will eventually run the synthesized artifact.
type CodeExtractor struct {
	Engine   *pyscan.Engine
	Probe    *pyscan.AvailabilityProbe
}

// New returns a CodeExtractor using sane defaults (python3 on PATH).
func New() *CodeExtractor {
	return &CodeExtractor{
		Engine: pyscan.NewEngine(),
		Probe:  pyscan.NewAvailabilityProbe("python3"),
	}
}

// ExtractImports returns sorted, unique import statements. When
// filterUnavailable is set, each statement's top-level module is checked
// against the target interpreter and dropped if not importable.
func (c *CodeExtractor) ExtractImports(code string, filterUnavailable bool) []string {
	scan := c.Engine.Scan(code)
	seen := make(map[string]bool)
	var out []string
	for _, imp := range scan.Imports {
		if seen[imp.Statement] {
			continue
		}
		if filterUnavailable && imp.Module != "" && !c.Probe.IsAvailable(imp.Module) {
			continue
		}
		seen[imp.Statement] = true
		out = append(out, imp.Statement)
	}
	sort.Strings(out)
	return out
}

// FunctionInfo mirrors pyscan.Function for extractor callers that don't
// want to import pyscan directly.
type FunctionInfo struct {
	Name   string
	Args   string
	Lineno int
	Code   string
}

// ExtractFunctions returns every top-level or nested def in code.
func (c *CodeExtractor) ExtractFunctions(code string) []FunctionInfo {
	scan := c.Engine.Scan(code)
	out := make([]FunctionInfo, 0, len(scan.Functions))
	for _, f := range scan.Functions {
		out = append(out, FunctionInfo{Name: f.Name, Args: f.Args, Lineno: f.Lineno, Code: f.Code})
	}
	return out
}

// HardcodedPath is a string literal that looks like a filesystem path.
type HardcodedPath struct {
	Value   string
	Line    int
	Context string // two surrounding lines
}

var pathLikeRe = regexp.MustCompile(`(?i)\.(csv|tsv|json|txt|parquet|xlsx?|pkl|pickle|h5|hdf5|png|jpe?g|pdf|svg|npy|npz|fasta|fa|vcf|bam|yaml|yml)$|[\\/]`)

// IdentifyHardcodedPaths returns string literals that look like file paths,
// each carrying a 2-line context window.
func (c *CodeExtractor) IdentifyHardcodedPaths(code string) []HardcodedPath {
	scan := c.Engine.Scan(code)
	lines := strings.Split(code, "\n")
	var out []HardcodedPath
	for _, s := range scan.Strings {
		if s.Value == "" || !pathLikeRe.MatchString(s.Value) {
			continue
		}
		out = append(out, HardcodedPath{
			Value:   s.Value,
			Line:    s.Line,
			Context: contextAround(lines, s.Line, 2),
		})
	}
	return out
}

func contextAround(lines []string, line, span int) string {
	idx := line - 1
	if idx < 0 || idx >= len(lines) {
		return ""
	}
	start := idx - span/2
	if start < 0 {
		start = 0
	}
	end := start + span
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}

// FileOp is a read or write call site.
type FileOp struct {
	Kind   string // "read" or "write"
	Call   string // e.g. "read_csv", "open", "savefig"
	Path   string
	Line   int
}

var tabularReaders = map[string]bool{
	"read_csv": true, "read_table": true, "read_excel": true, "read_json": true,
	"read_parquet": true, "read_pickle": true, "read_feather": true, "read_hdf": true,
	"loadtxt": true, "load": true, "genfromtxt": true,
}

var tabularWriters = map[string]bool{
	"to_csv": true, "to_excel": true, "to_json": true, "to_parquet": true,
	"to_pickle": true, "to_feather": true, "to_hdf": true, "savetxt": true,
	"savefig": true, "save": true,
}

// ExtractFileOperations returns every read and write call site found via
// tabular-reader/writer function names or raw open() calls.
func (c *CodeExtractor) ExtractFileOperations(code string) []FileOp {
	scan := c.Engine.Scan(code)
	var out []FileOp
	for _, call := range scan.Calls {
		switch {
		case call.Attr == "open":
			kind := "read"
			// the call scan carries no open() mode, so every open() is
			// recorded as a read here; extractOpenModes below adds an entry
			// whose kind comes from a literal mode argument.
			out = append(out, FileOp{Kind: kind, Call: "open", Path: call.ArgString, Line: call.Line})
		case tabularReaders[call.Attr]:
			out = append(out, FileOp{Kind: "read", Call: call.Attr, Path: call.ArgString, Line: call.Line})
		case tabularWriters[call.Attr]:
			out = append(out, FileOp{Kind: "write", Call: call.Attr, Path: call.ArgString, Line: call.Line})
		}
	}
	out = append(out, c.extractOpenModes(code)...)
	return out
}

var openRe = regexp.MustCompile(`open\(\s*(['"])((?:\\.|[^\\])*?)['"]\s*,\s*(['"])(\w+)['"]`)

func (c *CodeExtractor) extractOpenModes(code string) []FileOp {
	var out []FileOp
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		for _, m := range openRe.FindAllStringSubmatch(line, -1) {
			mode := m[4]
			kind := "read"
			if strings.ContainsAny(mode, "wa") {
				kind = "write"
			}
			out = append(out, FileOp{Kind: kind, Call: "open", Path: m[2], Line: i + 1})
		}
	}
	return out
}

// ExtractOutputFiles returns the basenames of files produced by write-site
// patterns found in code.
func (c *CodeExtractor) ExtractOutputFiles(code string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, op := range c.ExtractFileOperations(code) {
		if op.Kind != "write" || op.Path == "" {
			continue
		}
		base := basename(op.Path)
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, base)
	}
	sort.Strings(out)
	return out
}

func basename(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

// ImportSection is the contiguous leading block of import statements.
type ImportSection struct {
	StartLine, EndLine int // 1-based, inclusive
	StartChar, EndChar int // byte offsets, exclusive end
}

// FindImportSection locates the contiguous leading import block, returning
// line numbers by default or character offsets when returnCharPositions.
func (c *CodeExtractor) FindImportSection(code string, returnCharPositions bool) ImportSection {
	lines := strings.Split(code, "\n")
	importLineRe := regexp.MustCompile(`^\s*(import\s|from\s)`)
	blankOrComment := regexp.MustCompile(`^\s*(#.*)?$`)

	start, end := -1, -1
	for i, line := range lines {
		if importLineRe.MatchString(line) {
			if start == -1 {
				start = i
			}
			end = i
			continue
		}
		if start != -1 && blankOrComment.MatchString(line) {
			continue
		}
		if start != -1 {
			break
		}
	}
	if start == -1 {
		return ImportSection{}
	}

	sec := ImportSection{StartLine: start + 1, EndLine: end + 1}
	if !returnCharPositions {
		return sec
	}
	charStart := 0
	for i := 0; i < start; i++ {
		charStart += len(lines[i]) + 1
	}
	charEnd := charStart
	for i := start; i <= end; i++ {
		charEnd += len(lines[i]) + 1
	}
	sec.StartChar, sec.EndChar = charStart, charEnd
	return sec
}

// MergeImports unions and sorts import statements from multiple lists.
func MergeImports(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Complexity summarizes a code block's size.
type Complexity struct {
	FunctionCount int
	ClassCount    int
	LineCount     int
	IsComplex     bool
}

// GetCodeComplexity reports a coarse complexity summary; a block is
// "complex" once it crosses 3 functions, 2 classes, or 150 lines.
func (c *CodeExtractor) GetCodeComplexity(code string) Complexity {
	scan := c.Engine.Scan(code)
	lineCount := strings.Count(code, "\n") + 1
	comp := Complexity{
		FunctionCount: len(scan.Functions),
		ClassCount:    len(scan.ClassDefs),
		LineCount:     lineCount,
	}
	comp.IsComplex = comp.FunctionCount > 3 || comp.ClassCount > 2 || lineCount > 150
	return comp
}
