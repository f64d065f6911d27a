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

// selectSuccessful returns entries with Success==true, preserving order.
func selectSuccessful(entries []tracker.ExecutionEntry) []tracker.ExecutionEntry {
	var out []tracker.ExecutionEntry
	for _, e := range entries {
		if e.Success {
			out = append(out, e)
		}
	}
	return out
}

func failedEntries(entries []tracker.ExecutionEntry) []tracker.ExecutionEntry {
	var out []tracker.ExecutionEntry
	for _, e := range entries {
		if !e.Success {
			out = append(out, e)
		}
	}
	return out
}

// includeOutputProducingFailures finds failed executions whose output
// files are read as input by a successful execution, so those blocks are
// pulled in even though they individually failed.
func includeOutputProducingFailures(successful, failed []tracker.ExecutionEntry) []tracker.ExecutionEntry {
	neededInputs := make(map[string]bool)
	for _, e := range successful {
		for _, f := range e.InputFiles {
			neededInputs[filepath.Base(f)] = true
		}
	}
	var out []tracker.ExecutionEntry
	for _, e := range failed {
		for _, f := range e.OutputFiles {
			if neededInputs[filepath.Base(f)] {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// computeUsedMinusDefined returns the set of identifiers read across
// blocks that are never assigned anywhere in the same set — the variables
// dependency completion must supply.
func computeUsedMinusDefined(blocks []tracker.ExecutionEntry, opts Options) []string {
	defined := make(map[string]bool)
	used := make(map[string]bool)
	for _, e := range blocks {
		scan := opts.Engine.Scan(e.Code)
		for _, a := range scan.Assigns {
			defined[a.Name] = true
		}
		for _, f := range scan.Functions {
			defined[f.Name] = true
		}
		for _, n := range scan.Names {
			used[n.Name] = true
		}
	}
	var missing []string
	for name := range used {
		if !defined[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// assignedVars returns the set of names assigned anywhere in code.
func assignedVars(code string, opts Options) map[string]bool {
	scan := opts.Engine.Scan(code)
	out := make(map[string]bool)
	for _, a := range scan.Assigns {
		out[a.Name] = true
	}
	for _, f := range scan.Functions {
		out[f.Name] = true
	}
	return out
}

// completeDependencies implements the variable-dependency completion
// algorithm: iteratively pull in failed blocks that define a still-missing
// variable, recomputing the missing set each round, giving up after
// |failed|*2 rounds on an unresolved cycle.
func completeDependencies(successful, failed []tracker.ExecutionEntry, opts Options) ([]tracker.ExecutionEntry, []string) {
	included := make(map[int]bool)
	var completion []tracker.ExecutionEntry
	maxIterations := len(failed) * 2
	if maxIterations < 1 {
		maxIterations = 1
	}

	for iter := 0; iter < maxIterations; iter++ {
		all := append(append([]tracker.ExecutionEntry{}, completion...), successful...)
		missing := computeUsedMinusDefined(all, opts)
		if len(missing) == 0 {
			return completion, nil
		}

		var addedThisRound bool
		for _, m := range missing {
			for _, e := range failed {
				if included[e.ExecutionIndex] {
					continue
				}
				if assignedVars(e.Code, opts)[m] {
					completion = append(completion, e)
					included[e.ExecutionIndex] = true
					addedThisRound = true
				}
			}
		}
		if !addedThisRound {
			all := append(append([]tracker.ExecutionEntry{}, completion...), successful...)
			return completion, computeUsedMinusDefined(all, opts)
		}
	}

	all := append(append([]tracker.ExecutionEntry{}, completion...), successful...)
	return completion, computeUsedMinusDefined(all, opts)
}

var simpleReaderRe = regexp.MustCompile(`(read_csv|read_excel|read_table|read_json|read_parquet|open)\(\s*(['"])((?:\\.|[^'"\\])+)['"]`)
var simpleWriterRe = regexp.MustCompile(`(to_csv|to_excel|to_json|to_parquet|savefig)\(\s*(['"])((?:\\.|[^'"\\])+)['"]`)

// parameterizePaths rewrites reader paths to argparse input variables and
// writer paths to an output_dir join, returning the rewritten code and the
// set of distinct --input-<stem> flag names introduced. internalOutputs
// holds the basenames of files produced by another block in the same
// artifact (dependency-completed or successful): those readers are left as
// plain relative paths rather than turned into required CLI flags, since
// the producing block already writes them into the artifact's own
// output_dir/cwd before the consuming block runs.
func parameterizePaths(code string, internalOutputs map[string]bool) (string, []string) {
	seen := make(map[string]bool)
	var names []string

	code = simpleReaderRe.ReplaceAllStringFunc(code, func(match string) string {
		m := simpleReaderRe.FindStringSubmatch(match)
		base := filepath.Base(m[3])
		if internalOutputs[base] {
			return match
		}
		argName := argNameFor(m[3])
		if !seen[argName] {
			seen[argName] = true
			names = append(names, argName)
		}
		varName := strings.ReplaceAll(argName, "-", "_")
		return fmt.Sprintf("%s(args.%s", m[1], varName)
	})

	code = simpleWriterRe.ReplaceAllStringFunc(code, func(match string) string {
		m := simpleWriterRe.FindStringSubmatch(match)
		base := filepath.Base(m[3])
		return fmt.Sprintf(`%s(os.path.join(output_dir, "%s")`, m[1], base)
	})

	sort.Strings(names)
	return code, names
}

func argparseSetup(inputArgs []string) string {
	var b strings.Builder
	b.WriteString("import argparse\nimport os\n\n")
	b.WriteString("parser = argparse.ArgumentParser()\n")
	for _, name := range inputArgs {
		b.WriteString(fmt.Sprintf("parser.add_argument('--%s', required=True)\n", name))
	}
	b.WriteString("args = parser.parse_args()\n")
	// output_dir is a plain variable, not an argparse flag: the validator
	// drops each artifact into its own isolated workspace and compares
	// outputs by basename, so a fixed "." is always correct there.
	b.WriteString("output_dir = '.'\n\n")
	return b.String()
}

func saveSimple(ctx context.Context, opts Options, stem string) (*Artifact, error) {
	successful := selectSuccessful(opts.Executions)
	if len(successful) == 0 {
		return nil, nil
	}
	failed := failedEntries(opts.Executions)

	completion, unresolved := completeDependencies(successful, failed, opts)
	if len(unresolved) > 0 {
		// Logged, not fatal: the concatenation proceeds with whatever could
		// be resolved, matching §4.7's "give up and log the unsatisfied set".
		fmt.Printf("⚠️ [SAVER] simple mode: unresolved variable dependencies: %v\n", unresolved)
	}

	// completeDependencies only tracks Python-variable usage; a failed block
	// whose output is read back in by path (no shared variable) needs to be
	// pulled in separately.
	included := make(map[int]bool)
	for _, e := range completion {
		included[e.ExecutionIndex] = true
	}
	for _, e := range includeOutputProducingFailures(successful, failed) {
		if !included[e.ExecutionIndex] {
			completion = append(completion, e)
			included[e.ExecutionIndex] = true
		}
	}

	combined := append(append([]tracker.ExecutionEntry{}, completion...), successful...)
	sort.SliceStable(combined, func(i, j int) bool { return combined[i].Timestamp.Before(combined[j].Timestamp) })

	internalOutputs := make(map[string]bool)
	for _, e := range combined {
		for _, f := range e.OutputFiles {
			internalOutputs[filepath.Base(f)] = true
		}
	}

	var bodyParts []string
	var inputArgs []string
	seenArgs := make(map[string]bool)
	for _, e := range combined {
		rewritten, names := parameterizePaths(e.Code, internalOutputs)
		bodyParts = append(bodyParts, rewritten)
		for _, n := range names {
			if !seenArgs[n] {
				seenArgs[n] = true
				inputArgs = append(inputArgs, n)
			}
		}
	}
	sort.Strings(inputArgs)

	body := argparseSetup(inputArgs) + strings.Join(bodyParts, "\n\n")
	reconciled, _ := postprocessor.Reconcile(body, opts.Engine)

	header := scriptHeader(opts.WorkflowName, "Synthesized from a successful execution sequence with dependency completion.", "see --input-* flags", "see output_dir", "pandas, argparse")
	final := header + reconciled

	tmpPath := filepath.Join(opts.WorkflowsDir, stem+".tmp.py")
	if err := writeTmp(tmpPath, final); err != nil {
		return nil, err
	}

	artifact := &Artifact{TmpPath: tmpPath, Mode: ModeSimple, Code: final}
	return runValidateAndFinalize(ctx, opts, artifact, stem)
}
