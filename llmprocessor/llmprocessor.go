// Package llmprocessor implements the WorkflowLLMProcessor (§4.6): prompt
// construction for synthesizing and repairing workflow code, and response
// cleaning. It never calls an LLM directly — that's behind the Invoker
// interface — matching the teacher's pattern of a thin, swappable LLM
// client consumed by a single blocking call.
package llmprocessor

import (
	"fmt"
	"strings"

	"weave/preprocessor"
	"weave/tracker"
)

// Invoker is the minimal LLM interface the processor consumes: a single
// blocking call taking chat-style messages and returning text content.
type Invoker interface {
	Invoke(messages []Message) (string, error)
}

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

const previewCharLimit = 2000
const stderrCharLimit = 1000

// Processor builds prompts and cleans responses around an Invoker.
type Processor struct {
	LLM Invoker
}

// New returns a Processor bound to an Invoker.
func New(llm Invoker) *Processor {
	return &Processor{LLM: llm}
}

// ExtractWorkflowCode synthesizes Python source from a session's executions.
// On any LLM failure it returns "" per the failure contract — callers treat
// that as synthesis failure.
func (p *Processor) ExtractWorkflowCode(executions []tracker.ExecutionEntry, data *preprocessor.PreprocessedData, missingOutputs []string, retryAttempt int, previousAttemptCode string) string {
	prompt := p.buildExtractPrompt(executions, data, missingOutputs, retryAttempt, previousAttemptCode)
	resp, err := p.LLM.Invoke([]Message{{Role: "user", Content: prompt}})
	if err != nil {
		return ""
	}
	return CleanResponse(resp)
}

func (p *Processor) buildExtractPrompt(executions []tracker.ExecutionEntry, data *preprocessor.PreprocessedData, missingOutputs []string, retryAttempt int, previousAttemptCode string) string {
	var b strings.Builder

	if retryAttempt > 0 && len(missingOutputs) > 0 {
		b.WriteString("RETRY ATTEMPT " + itoa(retryAttempt) + ":\n")
		b.WriteString("The following required output files were MISSING from all prior attempts:\n")
		for _, m := range missingOutputs {
			b.WriteString("  - " + m + "\n")
		}
		if previousAttemptCode != "" {
			preview := previousAttemptCode
			if len(preview) > previewCharLimit {
				preview = preview[:previewCharLimit] + "\n... (truncated)"
			}
			b.WriteString("\nPrevious attempt (for reference, do not repeat its mistakes):\n```python\n")
			b.WriteString(preview)
			b.WriteString("\n```\n")
		}
		b.WriteString("\n")
	}

	if data != nil && len(data.OutputFileMapping) > 0 {
		b.WriteString("REQUIRED OUTPUT FILES:\n")
		for _, basename := range data.SortedOutputBasenames() {
			indices := data.OutputFileMapping[basename]
			b.WriteString(fmt.Sprintf("  - %s (produced by execution(s) %s)\n", basename, joinInts(indices)))
			for _, idx := range indices {
				if code := codePreview(executions, idx); code != "" {
					b.WriteString("    preview: " + code + "\n")
				}
			}
		}
		b.WriteString("\n")
	}

	if data != nil {
		b.WriteString("PREPROCESSED DATA (reference, not prescription):\n")
		b.WriteString(fmt.Sprintf("  Imports detected: %s\n", strings.Join(data.Imports, ", ")))
		b.WriteString(fmt.Sprintf("  Hardcoded paths seen: %d\n", len(data.HardcodedPaths)))
		b.WriteString(fmt.Sprintf("  Function count: %d\n\n", len(data.Functions)))
	}

	b.WriteString(renderExecutedBlocks(executions, data))

	minLines, minFuncs := minimumsFor(requiredOutputCount(data))
	b.WriteString("\nTASK:\n")
	b.WriteString("- Keep only data-processing blocks; drop pure exploration/visualization blocks.\n")
	b.WriteString("- Use canonical import aliases (pd, np, plt, sns, stats, gp) consistently.\n")
	b.WriteString("- Parameterize all file paths via argparse; do not hardcode paths.\n")
	b.WriteString(fmt.Sprintf("- Produce at least %d lines and %d function(s).\n", minLines, minFuncs))
	b.WriteString("\nFINAL VERIFICATION CHECKLIST (mandatory):\n")
	b.WriteString("  [ ] Every required output file above has a corresponding write call.\n")
	b.WriteString("  [ ] Every used alias has a matching import.\n")
	b.WriteString("  [ ] No hardcoded absolute paths remain.\n")
	b.WriteString("  [ ] The file parses as valid Python.\n")

	return b.String()
}

func requiredOutputCount(data *preprocessor.PreprocessedData) int {
	if data == nil {
		return 0
	}
	return len(data.OutputFileMapping)
}

func minimumsFor(outputCount int) (minLines, minFuncs int) {
	minLines = 20 + outputCount*10
	minFuncs = 1
	if outputCount > 2 {
		minFuncs = outputCount / 2
	}
	return
}

func renderExecutedBlocks(executions []tracker.ExecutionEntry, data *preprocessor.PreprocessedData) string {
	var b strings.Builder
	if data != nil {
		b.WriteString("EXECUTED BLOCKS (grouped by output file):\n")
		grouped := make(map[string][]int)
		var ungrouped []int
		produces := make(map[int]bool)
		for basename, indices := range data.OutputFileMapping {
			for _, idx := range indices {
				grouped[basename] = append(grouped[basename], idx)
				produces[idx] = true
			}
		}
		for _, basename := range data.SortedOutputBasenames() {
			b.WriteString("  Group: " + basename + "\n")
			for _, idx := range grouped[basename] {
				writeBlockSummary(&b, executions, idx)
			}
		}
		for _, e := range executions {
			if !produces[e.ExecutionIndex] {
				ungrouped = append(ungrouped, e.ExecutionIndex)
			}
		}
		if len(ungrouped) > 0 {
			b.WriteString("  Group: (no declared output)\n")
			for _, idx := range ungrouped {
				writeBlockSummary(&b, executions, idx)
			}
		}
		return b.String()
	}

	b.WriteString("EXECUTED BLOCKS (flat sequence):\n")
	for _, e := range executions {
		writeBlockSummary(&b, executions, e.ExecutionIndex)
	}
	return b.String()
}

func writeBlockSummary(b *strings.Builder, executions []tracker.ExecutionEntry, idx int) {
	for _, e := range executions {
		if e.ExecutionIndex == idx {
			b.WriteString(fmt.Sprintf("    [#%d] %s\n", idx, oneLinePreview(e.Code)))
			return
		}
	}
}

func codePreview(executions []tracker.ExecutionEntry, idx int) string {
	for _, e := range executions {
		if e.ExecutionIndex == idx {
			return oneLinePreview(e.Code)
		}
	}
	return ""
}

func oneLinePreview(code string) string {
	lines := strings.Split(strings.TrimSpace(code), "\n")
	if len(lines) == 0 {
		return ""
	}
	preview := lines[0]
	if len(lines) > 1 {
		preview += " ..."
	}
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	return preview
}

// FixWorkflowCode prompts the LLM to repair the entire file given a
// comprehensive error message. On any LLM failure it returns code
// unchanged per the failure contract.
func (p *Processor) FixWorkflowCode(code, errorMessage string, attemptNumber int) string {
	prompt := fmt.Sprintf(`REPAIR ATTEMPT %d

The following workflow script failed validation:

%s

Error details:
%s

Return the complete corrected Python file.`, attemptNumber, code, errorMessage)

	resp, err := p.LLM.Invoke([]Message{{Role: "user", Content: prompt}})
	if err != nil {
		return code
	}
	cleaned := CleanResponse(resp)
	if cleaned == "" {
		return code
	}
	return cleaned
}

// ValidationDetail is one expected-vs-actual file comparison, used to
// assemble the comprehensive error message passed to FixWorkflowCode.
type ValidationDetail struct {
	Path  string
	Diff  string
	Match bool
}

// BuildErrorMessage assembles the comprehensive error message from a
// validation result: primary error, summary, up to 10 diffs, per-file
// details, truncated stderr, and optional stdout.
func BuildErrorMessage(primaryError, summary string, details []ValidationDetail, stderr, stdout string) string {
	var b strings.Builder
	if primaryError != "" {
		b.WriteString("Primary error: " + primaryError + "\n")
	}
	if summary != "" {
		b.WriteString("Summary: " + summary + "\n")
	}

	diffCount := 0
	b.WriteString("Diffs:\n")
	for _, d := range details {
		if d.Match || diffCount >= 10 {
			continue
		}
		b.WriteString(fmt.Sprintf("  - %s: %s\n", d.Path, d.Diff))
		diffCount++
	}

	b.WriteString("Per-file details:\n")
	for _, d := range details {
		b.WriteString(fmt.Sprintf("  %s: match=%v\n", d.Path, d.Match))
	}

	if stderr != "" {
		truncated := stderr
		if len(truncated) > stderrCharLimit {
			truncated = truncated[:stderrCharLimit] + "... (truncated)"
		}
		b.WriteString("stderr:\n" + truncated + "\n")
	}
	if stdout != "" {
		preview := stdout
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		b.WriteString("stdout:\n" + preview + "\n")
	}
	return b.String()
}

// GenerateWorkflowDescription produces a numbered, prose-style description
// of the analysis stages, derived from code alone; executions and data are
// not used in the prompt.
func (p *Processor) GenerateWorkflowDescription(code string, executions []tracker.ExecutionEntry, data *preprocessor.PreprocessedData) string {
	prompt := "Describe the following data-analysis workflow as a numbered list of stages, in plain prose, no markdown code fences:\n\n" + code
	resp, err := p.LLM.Invoke([]Message{{Role: "user", Content: prompt}})
	if err != nil {
		return ""
	}
	return stripMarkdownArtifacts(resp)
}

func stripMarkdownArtifacts(s string) string {
	s = strings.ReplaceAll(s, "```", "")
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(s)
}

func joinInts(ints []int) string {
	strs := make([]string, len(ints))
	for i, n := range ints {
		strs[i] = itoa(n)
	}
	return strings.Join(strs, ", ")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
