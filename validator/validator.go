// Package validator implements the WorkflowValidator (§4.9): it runs a
// synthesized artifact in an isolated temp workspace and compares its
// outputs against the session's recorded expectations, byte-for-byte or by
// SHA-256 digest for large files.
package validator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	runTimeout    = 300 * time.Second
	hashThreshold = 100 * 1024 * 1024 // 100MB
)

// ExpectedOutput is one expected output file and its recorded content (or,
// for large files, its precomputed digest).
type ExpectedOutput struct {
	Basename string
	Content  []byte
	Digest   string // hex sha256, set instead of Content for large files
}

// FileDiff is one per-file comparison result.
type FileDiff struct {
	Match bool
	Diff  string
}

// Result is the ValidationResult.
type Result struct {
	Valid            bool
	OutputFilesMatch map[string]FileDiff
	Differences      []string
	Summary          string
	Stderr           string
	Stdout           string
	Error            string
}

// allowedExtensions is the common-output set used alongside extensions
// derived from expected outputs, for collecting candidate result files.
var allowedExtensions = map[string]bool{
	".csv": true, ".tsv": true, ".json": true, ".txt": true, ".png": true,
	".jpg": true, ".jpeg": true, ".pdf": true, ".svg": true, ".parquet": true,
	".xlsx": true, ".pkl": true, ".html": true,
}

// argRole classifies a detected argparse flag by substring heuristics.
type argRole int

const (
	roleUnknown argRole = iota
	roleInput
	roleOutputCSV
	roleOutputPlot
)

func classifyArg(name string) argRole {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "input"):
		return roleInput
	case strings.Contains(lower, "plot") || strings.Contains(lower, "fig") || strings.Contains(lower, "image"):
		return roleOutputPlot
	case strings.Contains(lower, "output") || strings.Contains(lower, "csv") || strings.Contains(lower, "out"):
		return roleOutputCSV
	default:
		return roleUnknown
	}
}

var addArgumentRe = regexp.MustCompile(`add_argument\(\s*['"]--([\w-]+)['"]`)

// detectArgs statically inspects code for argparse.add_argument('--name', ...)
// calls.
func detectArgs(code string) []string {
	if !strings.Contains(code, "argparse") {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	for _, m := range addArgumentRe.FindAllStringSubmatch(code, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Validate runs artifactPath against inputFiles in an isolated temp
// workspace and compares the outputs it produces to expected. pythonBin
// selects the interpreter (defaults to "python3").
func Validate(ctx context.Context, artifactPath string, inputFiles []string, expected []ExpectedOutput, pythonBin string) Result {
	if pythonBin == "" {
		pythonBin = "python3"
	}

	workspace, err := os.MkdirTemp("", "workflow_validation_temp_")
	if err != nil {
		return Result{Valid: false, Error: fmt.Sprintf("create temp workspace: %v", err)}
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Printf("⚠️ [VALIDATOR] cleanup failed for %s: %v", workspace, err)
		}
	}()

	copiedInputs := make(map[string]string) // basename -> workspace path
	for _, in := range inputFiles {
		base := filepath.Base(in)
		dest := filepath.Join(workspace, base)
		data, err := os.ReadFile(in)
		if err != nil {
			log.Printf("⚠️ [VALIDATOR] could not copy input %s: %v", in, err)
			continue
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			log.Printf("⚠️ [VALIDATOR] could not write input copy %s: %v", dest, err)
			continue
		}
		copiedInputs[base] = dest
	}

	code, err := os.ReadFile(artifactPath)
	if err != nil {
		return Result{Valid: false, Error: fmt.Sprintf("read artifact: %v", err)}
	}

	args := detectArgs(string(code))
	cmdArgs := buildCommandLine(args, copiedInputs, expected)

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, pythonBin, append([]string{artifactPath}, cmdArgs...)...)
	cmd.Dir = workspace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Result{
			Valid:   false,
			Error:   "Timeout",
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
			Summary: "validator run exceeded the timeout",
		}
	}
	if runErr != nil {
		return Result{
			Valid:   false,
			Error:   runErr.Error(),
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
			Summary: "artifact process exited with an error",
		}
	}

	actual := collectResultFiles(workspace, expected)
	diffs := make(map[string]FileDiff)
	allMatch := true
	var differences []string
	for _, exp := range expected {
		act, ok := actual[exp.Basename]
		if !ok {
			diffs[exp.Basename] = FileDiff{Match: false, Diff: "missing from actual output"}
			allMatch = false
			differences = append(differences, exp.Basename+": missing")
			continue
		}
		match, diffMsg := compareOne(exp, act)
		diffs[exp.Basename] = FileDiff{Match: match, Diff: diffMsg}
		if !match {
			allMatch = false
			differences = append(differences, exp.Basename+": "+diffMsg)
		}
	}

	summary := fmt.Sprintf("%d/%d expected outputs matched", countMatches(diffs), len(expected))
	return Result{
		Valid:            allMatch,
		OutputFilesMatch: diffs,
		Differences:      differences,
		Summary:          summary,
		Stdout:           stdout.String(),
		Stderr:           stderr.String(),
	}
}

func countMatches(diffs map[string]FileDiff) int {
	n := 0
	for _, d := range diffs {
		if d.Match {
			n++
		}
	}
	return n
}

func buildCommandLine(args []string, inputs map[string]string, expected []ExpectedOutput) []string {
	if len(args) == 0 {
		// No argparse surface detected: pass inputs positionally.
		var out []string
		for _, path := range inputs {
			out = append(out, path)
		}
		return out
	}

	var out []string
	for _, arg := range args {
		switch classifyArg(arg) {
		case roleInput:
			for base, path := range inputs {
				if strings.Contains(arg, strings.TrimSuffix(strings.ToLower(base), filepath.Ext(base))) || len(inputs) == 1 {
					out = append(out, "--"+arg, path)
					break
				}
			}
		case roleOutputCSV, roleOutputPlot:
			for _, exp := range expected {
				out = append(out, "--"+arg, exp.Basename)
				break
			}
		}
	}
	return out
}

func collectResultFiles(workspace string, expected []ExpectedOutput) map[string]ExpectedOutput {
	allowed := make(map[string]bool, len(allowedExtensions))
	for ext := range allowedExtensions {
		allowed[ext] = true
	}
	for _, exp := range expected {
		allowed[strings.ToLower(filepath.Ext(exp.Basename))] = true
	}

	out := make(map[string]ExpectedOutput)
	entries, err := os.ReadDir(workspace)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !allowed[ext] {
			continue
		}
		full := filepath.Join(workspace, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > hashThreshold {
			digest, err := sha256File(full)
			if err != nil {
				continue
			}
			out[e.Name()] = ExpectedOutput{Basename: e.Name(), Digest: digest}
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		out[e.Name()] = ExpectedOutput{Basename: e.Name(), Content: data}
	}
	return out
}

func sha256File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// compareOne normalizes either side to bytes-vs-bytes or digest-vs-digest
// comparison; a file over the hash threshold on either side is compared by
// digest.
func compareOne(expected, actual ExpectedOutput) (bool, string) {
	expDigest := expected.Digest
	actDigest := actual.Digest

	if expDigest == "" && len(expected.Content) > hashThreshold {
		sum := sha256.Sum256(expected.Content)
		expDigest = hex.EncodeToString(sum[:])
	}
	if actDigest == "" && len(actual.Content) > hashThreshold {
		sum := sha256.Sum256(actual.Content)
		actDigest = hex.EncodeToString(sum[:])
	}

	if expDigest != "" || actDigest != "" {
		if expDigest == "" {
			sum := sha256.Sum256(expected.Content)
			expDigest = hex.EncodeToString(sum[:])
		}
		if actDigest == "" {
			sum := sha256.Sum256(actual.Content)
			actDigest = hex.EncodeToString(sum[:])
		}
		if expDigest == actDigest {
			return true, ""
		}
		return false, "sha256 mismatch"
	}

	if bytes.Equal(expected.Content, actual.Content) {
		return true, ""
	}
	return false, fmt.Sprintf("byte mismatch (expected %d bytes, got %d bytes)", len(expected.Content), len(actual.Content))
}
