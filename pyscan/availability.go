package pyscan

import (
	"context"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"
)

// stdlibModules is the set of standard-library top-level module names,
// used to sort imports standard-library-first per §4.4 without needing to
// ask the interpreter (stdlib membership is effectively fixed per Python
// minor version and is cheap to hardcode, unlike third-party availability).
var stdlibModules = map[string]bool{
	"os": true, "sys": true, "re": true, "json": true, "time": true,
	"datetime": true, "collections": true, "itertools": true,
	"functools": true, "math": true, "random": true, "subprocess": true,
	"pathlib": true, "glob": true, "shutil": true, "io": true,
	"argparse": true, "logging": true, "typing": true, "csv": true,
	"sqlite3": true, "hashlib": true, "uuid": true, "copy": true,
	"traceback": true, "warnings": true, "abc": true, "enum": true,
	"dataclasses": true, "contextlib": true, "tempfile": true,
	"unittest": true, "threading": true, "multiprocessing": true,
	"socket": true, "http": true, "urllib": true, "xml": true,
	"string": true, "textwrap": true, "pickle": true, "base64": true,
	"struct": true, "array": true, "decimal": true, "fractions": true,
	"statistics": true, "platform": true, "importlib": true,
	"gzip": true, "zipfile": true, "tarfile": true, "configparser": true,
}

// IsStdlib reports whether module is part of the Python standard library.
func IsStdlib(module string) bool {
	return stdlibModules[strings.ToLower(module)]
}

// AvailabilityProbe asks a target Python interpreter whether a module can
// actually be imported, per spec §4.1 ("try both the module-spec lookup and
// an actual import attempt"). Results are memoized for the probe's lifetime
// since repeated probes of the same module in one synthesis run are common
// (every extract_imports call over a session's blocks).
type AvailabilityProbe struct {
	PythonBin string
	Timeout   time.Duration

	mu    sync.Mutex
	cache map[string]bool
}

// NewAvailabilityProbe returns a probe bound to the given interpreter.
func NewAvailabilityProbe(pythonBin string) *AvailabilityProbe {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &AvailabilityProbe{PythonBin: pythonBin, Timeout: 3 * time.Second, cache: make(map[string]bool)}
}

// IsAvailable reports whether module is importable in the target
// interpreter. Standard-library modules are always available without a
// probe. On any probe failure (no interpreter, timeout), the module is
// treated as unavailable so extract_imports filters it out conservatively.
func (p *AvailabilityProbe) IsAvailable(module string) bool {
	if module == "" {
		return false
	}
	if IsStdlib(module) {
		return true
	}

	p.mu.Lock()
	if v, ok := p.cache[module]; ok {
		p.mu.Unlock()
		return v
	}
	p.mu.Unlock()

	ok := p.probe(module)

	p.mu.Lock()
	p.cache[module] = ok
	p.mu.Unlock()
	return ok
}

func (p *AvailabilityProbe) probe(module string) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	script := "import importlib.util, sys\n" +
		"spec = importlib.util.find_spec(" + pyQuote(module) + ")\n" +
		"if spec is None:\n    sys.exit(1)\n" +
		"try:\n    __import__(" + pyQuote(module) + ")\nexcept Exception:\n    sys.exit(1)\n" +
		"sys.exit(0)\n"

	cmd := exec.CommandContext(ctx, p.PythonBin, "-c", script)
	return cmd.Run() == nil
}

func pyQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// SortImportsStdlibFirst sorts import statements with standard-library
// imports first, then third-party, each group alphabetically — per §4.4
// ("Sort standard-library imports first").
func SortImportsStdlibFirst(imports []Import) []Import {
	out := make([]Import, len(imports))
	copy(out, imports)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := IsStdlib(out[i].Module), IsStdlib(out[j].Module)
		if si != sj {
			return si
		}
		return out[i].Statement < out[j].Statement
	})
	return out
}
