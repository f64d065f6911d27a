package saver

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"weave/postprocessor"
	"weave/tracker"
)

var llmWriterPathRe = regexp.MustCompile(`(to_csv|to_excel|to_json|to_parquet|savefig)\(\s*[^,)]*?(['"])((?:\\.|[^'"\\])+)['"]`)

// writtenBasenames returns the basenames the generated code writes to, as
// best as static regex inspection can tell.
func writtenBasenames(code string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range llmWriterPathRe.FindAllStringSubmatch(code, -1) {
		out[filepath.Base(m[3])] = true
	}
	return out
}

// missingRequiredOutputs returns expected basenames not found among
// writtenBasenames(code).
func missingRequiredOutputs(code string, expectedBasenames []string) []string {
	written := writtenBasenames(code)
	var missing []string
	for _, b := range expectedBasenames {
		if !written[b] {
			missing = append(missing, b)
		}
	}
	sort.Strings(missing)
	return missing
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func saveLLM(ctx context.Context, opts Options, stem string) (*Artifact, error) {
	if opts.LLM == nil {
		return nil, fmt.Errorf("llm mode requires an llmprocessor.Processor in Options.LLM")
	}

	expectedBasenames := make([]string, 0, len(opts.ExpectedOutputs))
	for _, e := range opts.ExpectedOutputs {
		expectedBasenames = append(expectedBasenames, e.Basename)
	}
	sort.Strings(expectedBasenames)

	var code string
	var missingOutputs []string
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		candidate := opts.LLM.ExtractWorkflowCode(opts.Executions, opts.Preprocessed, missingOutputs, attempt, code)
		if candidate == "" {
			fmt.Printf("❌ [SAVER] llm synthesis attempt %d produced no code\n", attempt)
			continue
		}
		candidate, _ = postprocessor.Reconcile(candidate, opts.Engine)
		candidate, _ = postprocessor.Fix(candidate, opts.Preprocessed, opts.Engine)
		code = candidate

		stillMissing := missingRequiredOutputs(code, expectedBasenames)
		if len(stillMissing) == 0 {
			missingOutputs = nil
			break
		}
		missingOutputs = unionStrings(missingOutputs, stillMissing)
		fmt.Printf("⚠️ [SAVER] llm synthesis attempt %d missing outputs: %v\n", attempt, missingOutputs)
	}

	if code == "" {
		return nil, fmt.Errorf("llm synthesis produced no code after %d attempts", opts.MaxRetries)
	}

	stillMissing := missingRequiredOutputs(code, expectedBasenames)
	if len(stillMissing) > 0 {
		code = forceIncludeMissingOutputs(code, stillMissing, opts.Executions)
		code, _ = postprocessor.Reconcile(code, opts.Engine)
		code, _ = postprocessor.Fix(code, opts.Preprocessed, opts.Engine)
	}

	header := scriptHeader(opts.WorkflowName, "Synthesized via LLM extraction from a recorded interactive session.", "see argparse --input-* flags", strings.Join(expectedBasenames, ", "), "pandas, argparse")
	final := header + code

	tmpPath := filepath.Join(opts.WorkflowsDir, stem+".tmp.py")
	if err := writeTmp(tmpPath, final); err != nil {
		return nil, err
	}

	artifact := &Artifact{TmpPath: tmpPath, Mode: ModeLLM, Code: final}
	return runValidateAndFinalize(ctx, opts, artifact, stem)
}

var leadingCommentRe = regexp.MustCompile(`(?m)^\s*#.*$`)

// forceIncludeMissingOutputs is the loop-exhaustion fallback: locate the
// execution entry that produced each still-missing output and splice its
// code into the artifact directly, stripping its overly-specific inline
// comments, ahead of any "if __name__" guard (or at the end otherwise).
func forceIncludeMissingOutputs(code string, missing []string, executions []tracker.ExecutionEntry) string {
	var spliced []string
	for _, basename := range missing {
		block := findProducingBlock(executions, basename)
		if block == "" {
			fmt.Printf("❌ [SAVER] no recorded execution produces required output %s, cannot force-include it\n", basename)
			continue
		}
		cleaned := leadingCommentRe.ReplaceAllString(block, "")
		spliced = append(spliced, strings.TrimSpace(cleaned))
	}
	if len(spliced) == 0 {
		return code
	}

	insertion := "\n\n# force-included to satisfy required outputs\n" + strings.Join(spliced, "\n\n")
	if idx := strings.Index(code, "if __name__"); idx != -1 {
		return code[:idx] + insertion + "\n\n" + code[idx:]
	}
	return code + insertion
}

func findProducingBlock(executions []tracker.ExecutionEntry, basename string) string {
	for _, e := range executions {
		for _, f := range e.OutputFiles {
			if filepath.Base(f) == basename {
				return e.Code
			}
		}
	}
	return ""
}
