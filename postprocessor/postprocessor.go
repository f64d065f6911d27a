// Package postprocessor implements the WorkflownPostprocessor (§4.5): it
// repairs LLM-generated or concatenated Python against the preprocessed
// data — missing imports, wrong aliases, a syntax check, and common
// omissions — and the AST-driven alias/import reconciliation (§4.8) shared
// by simple-mode concatenation and LLM-mode repair.
package postprocessor

import (
	"fmt"
	"regexp"
	"strings"

	"weave/preprocessor"
	"weave/pyscan"
)

// Report is the validation report returned alongside fixed code.
type Report struct {
	ImportIssues     []string
	OutputFileIssues []string
	SyntaxErrors     []string
	FixesApplied     []string
}

// commonOmissions maps a module/alias to the import statement that
// supplies it, for the auto-fix-common-omissions step.
var commonOmissions = map[string]string{
	"argparse": "import argparse",
	"os":       "import os",
	"sys":      "import sys",
	"pd":       "import pandas as pd",
	"np":       "import numpy as np",
	"plt":      "import matplotlib.pyplot as plt",
	"sns":      "import seaborn as sns",
	"stats":    "import scipy.stats as stats",
	"gp":       "import gseapy as gp",
}

// Fix runs the four-step postprocessing pipeline over code and returns the
// repaired source plus a report of what was found/changed.
func Fix(code string, data *preprocessor.PreprocessedData, engine *pyscan.Engine) (string, Report) {
	if engine == nil {
		engine = pyscan.NewEngine()
	}
	report := Report{}

	code = fixMissingImports(code, data, &report)
	code = fixWrongAliases(code, data, engine, &report)

	scan := engine.Scan(code)
	if scan.SyntaxError != "" {
		report.SyntaxErrors = append(report.SyntaxErrors, scan.SyntaxError)
	}

	code = autoFixCommonOmissions(code, engine, &report)

	return code, report
}

var importLineRe = regexp.MustCompile(`(?m)^\s*(import\s|from\s)`)

// insertIntoImportSection inserts stmt at the end of the contiguous leading
// import block, or at the top of the file if there is none.
func insertIntoImportSection(code, stmt string) string {
	lines := strings.Split(code, "\n")
	lastImportLine := -1
	for i, line := range lines {
		if importLineRe.MatchString(line) {
			lastImportLine = i
			continue
		}
		if lastImportLine != -1 && strings.TrimSpace(line) != "" && !strings.HasPrefix(strings.TrimSpace(line), "#") {
			break
		}
	}
	if lastImportLine == -1 {
		return stmt + "\n" + code
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:lastImportLine+1]...)
	out = append(out, stmt)
	out = append(out, lines[lastImportLine+1:]...)
	return strings.Join(out, "\n")
}

// fixMissingImports inserts each expected import from preprocessed data
// that is not already present in code.
func fixMissingImports(code string, data *preprocessor.PreprocessedData, report *Report) string {
	if data == nil {
		return code
	}
	for _, expected := range data.Imports {
		if strings.Contains(code, expected) {
			continue
		}
		report.ImportIssues = append(report.ImportIssues, "missing import: "+expected)
		code = insertIntoImportSection(code, expected)
		report.FixesApplied = append(report.FixesApplied, "added "+expected)
	}
	return code
}

var directImportRe = regexp.MustCompile(`(?m)^(\s*)import\s+([\w\.]+)\s*$`)

// fixWrongAliases rewrites "import module" lines to "import module as
// alias" wherever code uses "alias." but the existing import lacks the
// alias. "from module import ..." forms are left alone — no module-level
// alias is possible for them.
func fixWrongAliases(code string, data *preprocessor.PreprocessedData, engine *pyscan.Engine, report *Report) string {
	if data == nil || len(data.ImportAliases) == 0 {
		return code
	}
	scan := engine.Scan(code)
	usedAliases := make(map[string]bool)
	for _, c := range scan.Calls {
		if c.Receiver != "" {
			usedAliases[c.Receiver] = true
		}
	}

	for module, alias := range data.ImportAliases {
		if alias == "" || !usedAliases[alias] {
			continue
		}
		boundCorrectly := false
		for _, imp := range scan.Imports {
			if !imp.IsFrom && imp.Module == module && imp.Alias == alias {
				boundCorrectly = true
			}
		}
		if boundCorrectly {
			continue
		}

		lines := strings.Split(code, "\n")
		rewrote := false
		for i, line := range lines {
			if m := directImportRe.FindStringSubmatch(line); m != nil && m[2] == module {
				lines[i] = m[1] + "import " + module + " as " + alias
				rewrote = true
				break
			}
		}
		if rewrote {
			code = strings.Join(lines, "\n")
			report.FixesApplied = append(report.FixesApplied, fmt.Sprintf("rewrote import %s to alias %s", module, alias))
		}
	}
	return code
}

// autoFixCommonOmissions adds an import for argparse/os/sys or a canonical
// alias if code clearly uses it (attribute access outside strings/comments)
// but lacks the import.
func autoFixCommonOmissions(code string, engine *pyscan.Engine, report *Report) string {
	scan := engine.Scan(code)
	present := make(map[string]bool)
	for _, imp := range scan.Imports {
		if imp.Alias != "" {
			present[imp.Alias] = true
		} else {
			present[imp.Module] = true
		}
	}

	usageRe := func(name string) *regexp.Regexp {
		return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\.`)
	}

	// Blank out string literals and "#" comments so only real code counts
	// as usage.
	stringLitRe := regexp.MustCompile(`'(?:\\.|[^'\\])*'|"(?:\\.|[^"\\])*"`)
	var codeOnly []string
	for _, line := range strings.Split(code, "\n") {
		line = stringLitRe.ReplaceAllString(line, `""`)
		if i := strings.Index(line, "#"); i != -1 {
			line = line[:i]
		}
		codeOnly = append(codeOnly, line)
	}
	usageSrc := strings.Join(codeOnly, "\n")

	for name, stmt := range commonOmissions {
		if present[name] {
			continue
		}
		if !usageRe(name).MatchString(usageSrc) {
			continue
		}
		code = insertIntoImportSection(code, stmt)
		report.FixesApplied = append(report.FixesApplied, "auto-added "+stmt)
	}
	return code
}
