package pyscan

import (
	"regexp"
	"strconv"
	"strings"
)

// scanWithRegex is the fallback path: best-effort, tolerant of malformed
// source, never returns an error. Mirrors hdn/code_generator.go's style of
// targeted regexes over raw source text rather than a full parser.
func scanWithRegex(code string) *Scan {
	s := &Scan{}
	lines := strings.Split(code, "\n")

	importPlain := regexp.MustCompile(`^\s*import\s+([\w\.]+)(?:\s+as\s+(\w+))?\s*$`)
	importFrom := regexp.MustCompile(`^\s*from\s+([\w\.]*)\s+import\s+(.+)$`)
	defRe := regexp.MustCompile(`^(\s*)def\s+(\w+)\s*\(([^)]*)\)\s*:`)
	classRe := regexp.MustCompile(`^\s*class\s+(\w+)`)
	callRe := regexp.MustCompile(`(\w+)\.(\w+)\s*\(`)
	bareCallRe := regexp.MustCompile(`(?:^|[^.\w])(\w+)\s*\(`)
	strLitRe := regexp.MustCompile(`(['"])((?:\\.|[^\\])*?)['"]`)
	assignRe := regexp.MustCompile(`^\s*(\w+)\s*=\s*[^=]`)
	nameRe := regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\b`)

	for i, raw := range lines {
		line := i + 1
		trimmed := raw

		if m := importPlain.FindStringSubmatch(trimmed); m != nil {
			stmt := "import " + m[1]
			alias := m[2]
			if alias != "" {
				stmt += " as " + alias
			}
			s.Imports = append(s.Imports, Import{
				Statement: stmt,
				Module:    strings.SplitN(m[1], ".", 2)[0],
				Alias:     alias,
				IsFrom:    false,
				Line:      line,
			})
			continue
		}
		if m := importFrom.FindStringSubmatch(trimmed); m != nil {
			mod := m[1]
			names := strings.TrimSpace(m[2])
			s.Imports = append(s.Imports, Import{
				Statement: "from " + mod + " import " + names,
				Module:    strings.SplitN(mod, ".", 2)[0],
				Alias:     "",
				IsFrom:    true,
				Line:      line,
			})
			continue
		}
		if m := defRe.FindStringSubmatch(raw); m != nil {
			// Grab a short body preview (up to the next line at the same or
			// lower indentation, or end of file).
			indent := len(m[1])
			end := len(lines)
			for j := i + 1; j < len(lines); j++ {
				if strings.TrimSpace(lines[j]) == "" {
					continue
				}
				lead := len(lines[j]) - len(strings.TrimLeft(lines[j], " \t"))
				if lead <= indent {
					end = j
					break
				}
			}
			body := strings.Join(lines[i:end], "\n")
			s.Functions = append(s.Functions, Function{
				Name:   m[2],
				Args:   strings.TrimSpace(m[3]),
				Lineno: line,
				Code:   body,
			})
			continue
		}
		if m := classRe.FindStringSubmatch(raw); m != nil {
			s.ClassDefs = append(s.ClassDefs, m[1])
		}

		for _, m := range callRe.FindAllStringSubmatch(raw, -1) {
			s.Calls = append(s.Calls, Call{Line: line, Receiver: m[1], Attr: m[2], ArgString: firstStringArg(raw)})
		}
		for _, m := range bareCallRe.FindAllStringSubmatch(raw, -1) {
			name := m[1]
			if isPythonKeyword(name) {
				continue
			}
			s.Calls = append(s.Calls, Call{Line: line, Receiver: "", Attr: name, ArgString: firstStringArg(raw)})
		}
		for _, m := range strLitRe.FindAllStringSubmatch(raw, -1) {
			s.Strings = append(s.Strings, StringLiteral{Value: m[2], Line: line})
		}
		if m := assignRe.FindStringSubmatch(raw); m != nil && !isPythonKeyword(m[1]) {
			s.Assigns = append(s.Assigns, Assign{Name: m[1], Line: line})
		}
		for _, m := range nameRe.FindAllStringSubmatch(stripStringLiterals(raw), -1) {
			name := m[1]
			if isPythonKeyword(name) || isPythonBuiltin(name) {
				continue
			}
			s.Names = append(s.Names, NameUse{Name: name, Line: line})
		}
	}
	return s
}

func stripStringLiterals(line string) string {
	re := regexp.MustCompile(`(['"])(?:\\.|[^\\])*?['"]`)
	return re.ReplaceAllString(line, "")
}

var pyBuiltins = map[string]bool{
	"print": true, "len": true, "range": true, "str": true, "int": true,
	"float": true, "list": true, "dict": true, "set": true, "tuple": true,
	"True": true, "False": true, "None": true, "self": true, "bool": true,
	"open": true, "enumerate": true, "zip": true, "map": true, "filter": true,
	"sorted": true, "sum": true, "min": true, "max": true, "abs": true,
}

func isPythonBuiltin(s string) bool {
	return pyBuiltins[s]
}

func firstStringArg(line string) string {
	re := regexp.MustCompile(`\(\s*(['"])((?:\\.|[^\\])*?)['"]`)
	m := re.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[2]
}

var pyKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "elif": true, "else": true,
	"return": true, "with": true, "def": true, "class": true, "try": true,
	"except": true, "finally": true, "not": true, "and": true, "or": true,
	"in": true, "is": true, "lambda": true, "print": false,
}

func isPythonKeyword(s string) bool {
	v, ok := pyKeywords[s]
	return ok && v
}

// LineOf returns a 1-based line number best-effort given a byte offset into
// code, used by callers that only have offsets (e.g. from Strings scans
// computed by the AST path, which already carry lines, but regex-only
// consumers may need this).
func LineOf(code string, offset int) int {
	if offset < 0 || offset > len(code) {
		return 0
	}
	return strings.Count(code[:offset], "\n") + 1
}

// AtoiSafe parses an integer, returning 0 on failure — used by callers
// juggling formatted line numbers.
func AtoiSafe(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
