// Package pyscan is the shared Python static-analysis engine used by
// extractor and postprocessor. It has two independent paths:
//
//   - the AST path shells out to a python3 interpreter running an embedded
//     ast-module script and decodes its JSON dump.
//   - the regex path (regex.go) is a pure-Go fallback used when python3 is
//     unavailable or the source fails to parse.
//
// Neither path may be collapsed into the other: malformed source must still
// produce a best-effort result via the regex path.
package pyscan

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"time"
)

// Import is one import statement as seen by the AST walk.
type Import struct {
	Statement string `json:"statement"` // rendered exactly as it should appear in code
	Module    string `json:"module"`    // top-level module name, e.g. "pandas"
	Alias     string `json:"alias"`     // "" if no "as" clause
	IsFrom    bool   `json:"is_from"`
	Line      int    `json:"line"`
}

// Function is one def (top-level or nested).
type Function struct {
	Name   string `json:"name"`
	Args   string `json:"args"`
	Lineno int    `json:"lineno"`
	Code   string `json:"code"`
}

// Call is one call-site, used for both attribute usage and plain Name calls.
type Call struct {
	Line      int    `json:"line"`
	Receiver  string `json:"receiver"`  // e.g. "pd" in pd.read_csv(...), "" for bare Name() calls
	Attr      string `json:"attr"`      // e.g. "read_csv", or the Name itself for bare calls
	ArgString string `json:"arg_string"` // first positional string literal argument, if any
}

// StringLiteral is a raw string literal, used for hardcoded-path detection.
type StringLiteral struct {
	Value string `json:"value"`
	Line  int    `json:"line"`
}

// Assign is one simple "name = ..." top-level or nested binding.
type Assign struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// NameUse is one bare identifier reference (an ast.Name in Load context);
// Python builtins such as print are not reported.
type NameUse struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// Scan is the full AST dump of one source file's contents.
type Scan struct {
	Imports   []Import        `json:"imports"`
	Functions []Function      `json:"functions"`
	Calls     []Call          `json:"calls"`
	Strings   []StringLiteral `json:"strings"`
	ClassDefs []string        `json:"class_defs"`
	Assigns   []Assign        `json:"assigns"`
	Names     []NameUse       `json:"names"`
	// SyntaxError is set (non-empty) when python3 itself could not parse the
	// source; Scan then returns the regex-path result with this field kept.
	SyntaxError string `json:"syntax_error"`
}

// Engine runs the AST path against a configurable python3 binary, falling
// back to the regex path on any failure. Engine is safe for concurrent use;
// it holds no mutable state beyond configuration.
type Engine struct {
	// PythonBin is the interpreter to shell out to. Defaults to "python3".
	PythonBin string
	// Timeout bounds a single AST subprocess invocation.
	Timeout time.Duration
}

// NewEngine returns an Engine configured with sane defaults.
func NewEngine() *Engine {
	return &Engine{PythonBin: "python3", Timeout: 5 * time.Second}
}

// Scan analyzes code, preferring the AST path and falling back to regex.
// It never returns an error: per spec, static-analysis failures are
// swallowed and produce a best-effort result.
func (e *Engine) Scan(code string) *Scan {
	s, ok := e.scanWithAST(code)
	if ok {
		return s
	}
	r := scanWithRegex(code)
	if s != nil {
		r.SyntaxError = s.SyntaxError
	}
	return r
}

// HasPython reports whether the configured interpreter is reachable at all,
// independent of whether a given source parses.
func (e *Engine) HasPython() bool {
	bin := e.PythonBin
	if bin == "" {
		bin = "python3"
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

func (e *Engine) scanWithAST(code string) (*Scan, bool) {
	bin := e.PythonBin
	if bin == "" {
		bin = "python3"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, false
	}

	tmp, err := os.CreateTemp("", "pyscan_*.py")
	if err != nil {
		return nil, false
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(astScannerScript); err != nil {
		tmp.Close()
		return nil, false
	}
	tmp.Close()

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, tmp.Name())
	cmd.Stdin = bytes.NewBufferString(code)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, false
	}

	var s Scan
	if err := json.Unmarshal(stdout.Bytes(), &s); err != nil {
		return nil, false
	}
	if s.SyntaxError != "" {
		return &s, false
	}
	return &s, true
}

// astScannerScript reads Python source on stdin and writes a JSON Scan to
// stdout. A source that fails to parse is reported as a syntax_error; any
// other failure of the script makes the Go side fall back to regex.
const astScannerScript = `
import ast, builtins, json, sys

def render_import(node):
    out = []
    if isinstance(node, ast.Import):
        for alias in node.names:
            stmt = "import " + alias.name
            if alias.asname:
                stmt += " as " + alias.asname
            out.append({
                "statement": stmt,
                "module": alias.name.split(".")[0],
                "alias": alias.asname or "",
                "is_from": False,
                "line": node.lineno,
            })
    elif isinstance(node, ast.ImportFrom):
        mod = node.module or ""
        names = []
        for alias in node.names:
            n = alias.name
            if alias.asname:
                n += " as " + alias.asname
            names.append(n)
        stmt = "from " + ("." * (node.level or 0)) + mod + " import " + ", ".join(names)
        out.append({
            "statement": stmt,
            "module": mod.split(".")[0] if mod else "",
            "alias": "",
            "is_from": True,
            "line": node.lineno,
        })
    return out

def source_of(node, src_lines):
    try:
        start = node.lineno - 1
        end = getattr(node, "end_lineno", node.lineno)
        return "\n".join(src_lines[start:end])
    except Exception:
        return ""

def args_of(node):
    parts = [a.arg for a in node.args.args]
    return ", ".join(parts)

def main():
    src = sys.stdin.read()
    result = {
        "imports": [], "functions": [], "calls": [], "strings": [],
        "class_defs": [], "assigns": [], "names": [], "syntax_error": "",
    }
    try:
        tree = ast.parse(src)
    except SyntaxError as e:
        result["syntax_error"] = str(e)
        print(json.dumps(result))
        return

    src_lines = src.splitlines()

    for node in ast.walk(tree):
        if isinstance(node, (ast.Import, ast.ImportFrom)):
            result["imports"].extend(render_import(node))
        elif isinstance(node, ast.FunctionDef) or isinstance(node, ast.AsyncFunctionDef):
            result["functions"].append({
                "name": node.name,
                "args": args_of(node),
                "lineno": node.lineno,
                "code": source_of(node, src_lines),
            })
        elif isinstance(node, ast.ClassDef):
            result["class_defs"].append(node.name)
        elif isinstance(node, ast.Call):
            receiver = ""
            attr = ""
            if isinstance(node.func, ast.Attribute):
                attr = node.func.attr
                if isinstance(node.func.value, ast.Name):
                    receiver = node.func.value.id
            elif isinstance(node.func, ast.Name):
                attr = node.func.id
            arg_string = ""
            if node.args and isinstance(node.args[0], ast.Constant) and isinstance(node.args[0].value, str):
                arg_string = node.args[0].value
            if receiver or attr:
                result["calls"].append({
                    "line": node.lineno,
                    "receiver": receiver,
                    "attr": attr,
                    "arg_string": arg_string,
                })
        elif isinstance(node, ast.Constant) and isinstance(node.value, str):
            result["strings"].append({"value": node.value, "line": node.lineno})
        elif isinstance(node, ast.Assign):
            for target in node.targets:
                if isinstance(target, ast.Name):
                    result["assigns"].append({"name": target.id, "line": node.lineno})
        elif isinstance(node, ast.Name) and isinstance(node.ctx, ast.Load) and not hasattr(builtins, node.id):
            result["names"].append({"name": node.id, "line": node.lineno})

    print(json.dumps(result))

if __name__ == "__main__":
    main()
`
