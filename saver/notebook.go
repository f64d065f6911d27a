package saver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"weave/preprocessor"
	"weave/tracker"
)

// nbCell is one notebook cell in nbformat v4.
type nbCell struct {
	CellType string                 `json:"cell_type"`
	Source   []string               `json:"source"`
	Metadata map[string]interface{} `json:"metadata"`
	Outputs  []interface{}          `json:"outputs,omitempty"`
	ExecCount interface{}           `json:"execution_count,omitempty"`
}

type notebook struct {
	Cells    []nbCell               `json:"cells"`
	Metadata map[string]interface{} `json:"metadata"`
	NBFormat int                    `json:"nbformat"`
	NBMinor  int                    `json:"nbformat_minor"`
}

var readerPathArgRe = regexp.MustCompile(`(read_csv|read_excel|read_table|read_json|read_parquet)\(\s*(['"])((?:\\.|[^'"\\])+)['"]`)
var writerPathRe = regexp.MustCompile(`(to_csv|to_excel|to_json|to_parquet|savefig)\(\s*(['"])((?:\\.|[^'"\\])+)['"]`)
var cellImportRe = regexp.MustCompile(`(?m)^\s*(import\s+[\w\.]+(?:\s+as\s+\w+)?|from\s+[\w\.]+\s+import\s+.+)$`)

// argNameFor derives an argparse-style flag name from a reader-path
// basename's stem, e.g. "clinical_data.csv" -> "input-clinical".
func argNameFor(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = regexp.MustCompile(`[^a-zA-Z0-9]+`).ReplaceAllString(stem, "-")
	stem = strings.ToLower(strings.Trim(stem, "-"))
	if stem == "" {
		stem = "file"
	}
	// Use only the first semantic token to keep flags short, e.g.
	// "clinical-data-2023" -> "clinical".
	parts := strings.Split(stem, "-")
	return "input-" + parts[0]
}

// rewriteNotebookCellPaths applies the lightweight regex-based path
// rewriting: readers become argparse variables, writers are redirected
// under output_dir.
func rewriteNotebookCellPaths(code string) (string, map[string]bool) {
	usedArgs := make(map[string]bool)

	code = readerPathArgRe.ReplaceAllStringFunc(code, func(match string) string {
		m := readerPathArgRe.FindStringSubmatch(match)
		argName := argNameFor(m[3])
		usedArgs[argName] = true
		varName := strings.ReplaceAll(argName, "-", "_")
		return fmt.Sprintf("%s(args.%s", m[1], varName)
	})

	code = writerPathRe.ReplaceAllStringFunc(code, func(match string) string {
		m := writerPathRe.FindStringSubmatch(match)
		base := filepath.Base(m[3])
		return fmt.Sprintf(`%s(os.path.join(output_dir, "%s")`, m[1], base)
	})

	return code, usedArgs
}

// dualModeCLICell renders the Jupyter-vs-script detection cell inserted
// whenever a notebook's cells reference argparse-backed variables.
func dualModeCLICell(argNames []string) string {
	var b strings.Builder
	b.WriteString("import sys\n\n")
	b.WriteString("def _in_jupyter():\n")
	b.WriteString("    try:\n")
	b.WriteString("        get_ipython\n")
	b.WriteString("        return True\n")
	b.WriteString("    except NameError:\n")
	b.WriteString("        return False\n\n")
	b.WriteString("if _in_jupyter():\n")
	b.WriteString("    class _Args:\n        pass\n    args = _Args()\n")
	for _, name := range argNames {
		b.WriteString(fmt.Sprintf("    args.%s = None\n", strings.ReplaceAll(name, "-", "_")))
	}
	b.WriteString("    output_dir = \".\"\n")
	b.WriteString("else:\n")
	b.WriteString("    import argparse\n")
	b.WriteString("    _parser = argparse.ArgumentParser()\n")
	for _, name := range argNames {
		b.WriteString(fmt.Sprintf("    _parser.add_argument('--%s')\n", name))
	}
	b.WriteString("    args = _parser.parse_args()\n")
	b.WriteString("    output_dir = \".\"\n")
	return b.String()
}

func saveNotebook(opts Options, stem string) (*Artifact, error) {
	entries := make([]tracker.ExecutionEntry, len(opts.Executions))
	copy(entries, opts.Executions)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })

	allArgs := make(map[string]bool)
	var importStatements []string
	var bodyCells []nbCell

	for _, e := range entries {
		code, used := rewriteNotebookCellPaths(e.Code)
		for name := range used {
			allArgs[name] = true
		}
		for _, m := range cellImportRe.FindAllStringSubmatch(code, -1) {
			importStatements = append(importStatements, strings.TrimSpace(m[1]))
		}
		bodyCells = append(bodyCells, nbCell{
			CellType: "code",
			Source:   splitSource(code),
			Metadata: map[string]interface{}{
				"original_timestamp": e.Timestamp.Format("2006-01-02T15:04:05"),
				"success":            e.Success,
				"execution_index":    e.ExecutionIndex,
			},
		})
	}

	imports := normalizeNotebookImports(importStatements, opts.Preprocessed)
	var cells []nbCell
	cells = append(cells, nbCell{CellType: "code", Source: splitSource(strings.Join(imports, "\n")), Metadata: map[string]interface{}{}})

	if len(allArgs) > 0 {
		names := make([]string, 0, len(allArgs))
		for n := range allArgs {
			names = append(names, n)
		}
		sort.Strings(names)
		cells = append(cells, nbCell{CellType: "code", Source: splitSource(dualModeCLICell(names)), Metadata: map[string]interface{}{}})
	}

	cells = append(cells, bodyCells...)

	nb := notebook{
		Cells: cells,
		Metadata: map[string]interface{}{
			"kernelspec": map[string]interface{}{
				"display_name": "Python 3", "language": "python", "name": "python3",
			},
		},
		NBFormat: 4,
		NBMinor:  4,
	}

	data, err := json.MarshalIndent(nb, "", " ")
	if err != nil {
		return nil, fmt.Errorf("marshal notebook: %w", err)
	}

	path := filepath.Join(opts.WorkflowsDir, stem+".ipynb")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write notebook: %w", err)
	}

	return &Artifact{Path: path, Mode: ModeNotebook, Finalized: true, Code: string(data)}, nil
}

func splitSource(code string) []string {
	lines := strings.Split(code, "\n")
	out := make([]string, len(lines))
	for i, l := range lines {
		if i < len(lines)-1 {
			out[i] = l + "\n"
		} else {
			out[i] = l
		}
	}
	return out
}

func normalizeNotebookImports(statements []string, data *preprocessor.PreprocessedData) []string {
	seen := make(map[string]bool)
	var out []string
	out = append(out, "import os")
	seen["import os"] = true
	for _, s := range statements {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if data != nil {
		for _, s := range data.Imports {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out[1:])
	return out
}
