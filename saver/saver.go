// Package saver implements the WorkflowSaver (§4.7), the orchestration
// core tying preprocessing, synthesis, postprocessing, and validation
// together into a single artifact. Three save modes share one
// retry/validation scaffold: notebook (simplest, no validation), simple
// (concatenation + dependency completion), and llm (retry-driven
// synthesis with rule-based and LLM repair).
package saver

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"weave/llmprocessor"
	"weave/preprocessor"
	"weave/pyscan"
	"weave/tracker"
	"weave/validator"
)

// Mode selects one of the three save strategies.
type Mode string

const (
	ModeNotebook Mode = "notebook"
	ModeSimple   Mode = "simple"
	ModeLLM      Mode = "llm"
)

// Options configures one Save call.
type Options struct {
	Mode            Mode
	WorkflowsDir    string // <workflows_root>/workflows
	WorkflowName    string // human-readable name, sanitized for the filename
	Executions      []tracker.ExecutionEntry
	Preprocessed    *preprocessor.PreprocessedData
	MaxRetries      int // llm mode: default 5
	MaxFixAttempts  int // llm mode: default 3
	LLM             *llmprocessor.Processor
	Engine          *pyscan.Engine
	PythonBin       string
	InputFiles      []string
	ExpectedOutputs []validator.ExpectedOutput
	Events          Publisher // optional; nil is a no-op
}

// Publisher is the best-effort lifecycle-event sink saver publishes
// through; a nil Publisher (the zero value of the interface) means no
// event bus is configured.
type Publisher interface {
	Publish(event string, fields map[string]string)
}

// Artifact is the WorkflowArtifact produced by Save.
type Artifact struct {
	Path         string // final .py or .ipynb path; empty if never finalized
	TmpPath      string // .tmp.py path used before finalization
	DescPath     string
	Mode         Mode
	Code         string
	Validation   *validator.Result
	Finalized    bool
}

var sanitizeRe = regexp.MustCompile(`[^\w\s\-]+`)
var collapseRe = regexp.MustCompile(`[\s_-]+`)

// sanitizeFilename strips non-word/dash characters, collapses whitespace
// and hyphens to underscores, and truncates to 50 characters; an empty
// result becomes "unnamed".
func sanitizeFilename(name string) string {
	s := sanitizeRe.ReplaceAllString(name, "")
	s = collapseRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 50 {
		s = s[:50]
	}
	if s == "" {
		return "unnamed"
	}
	return s
}

func publish(pub Publisher, event string, fields map[string]string) {
	if pub == nil {
		return
	}
	defer func() { _ = recover() }() // a misbehaving bus must never fail a save
	pub.Publish(event, fields)
}

// Save runs the configured mode end to end: synthesis, emission to a
// .tmp.py/.ipynb, and — for simple/llm modes — the validate/repair loop,
// finalizing on success. Returns nil, nil on an empty execution history
// (§8 boundary behavior).
func Save(ctx context.Context, opts Options) (*Artifact, error) {
	if len(opts.Executions) == 0 {
		log.Printf("ℹ️ [SAVER] empty execution history, nothing to save")
		return nil, nil
	}
	if opts.Engine == nil {
		opts.Engine = pyscan.NewEngine()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.MaxFixAttempts <= 0 {
		opts.MaxFixAttempts = 3
	}

	publish(opts.Events, "workflow.save.started", map[string]string{"mode": string(opts.Mode)})

	if err := os.MkdirAll(opts.WorkflowsDir, 0o755); err != nil {
		log.Printf("⚠️ [SAVER] could not create workflows dir %s: %v", opts.WorkflowsDir, err)
	}

	ts := time.Now().Format("20060102_150405")
	stem := fmt.Sprintf("workflow_%s_%s", sanitizeFilename(opts.WorkflowName), ts)

	var artifact *Artifact
	var err error

	switch opts.Mode {
	case ModeNotebook:
		artifact, err = saveNotebook(opts, stem)
	case ModeSimple:
		artifact, err = saveSimple(ctx, opts, stem)
	case ModeLLM:
		artifact, err = saveLLM(ctx, opts, stem)
	default:
		return nil, fmt.Errorf("unknown save mode: %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		log.Printf("ℹ️ [SAVER] mode %s produced no artifact", opts.Mode)
		return nil, nil
	}

	publish(opts.Events, "workflow.save.finalized", map[string]string{
		"mode":      string(opts.Mode),
		"finalized": fmt.Sprintf("%v", artifact.Finalized),
	})
	return artifact, nil
}

func writeTmp(path, code string) error {
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return fmt.Errorf("write tmp artifact %s: %w", path, err)
	}
	return nil
}

func finalize(tmpPath string) (string, error) {
	finalPath := strings.TrimSuffix(tmpPath, ".tmp.py") + ".py"
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("finalize artifact: %w", err)
	}
	return finalPath, nil
}

// writeDescription writes the human-readable description file alongside
// the artifact, sharing its timestamp stem.
func writeDescription(workflowsDir, stem, description string) string {
	path := filepath.Join(workflowsDir, stem+".txt")
	if err := os.WriteFile(path, []byte(description), 0o644); err != nil {
		log.Printf("⚠️ [SAVER] could not write description file: %v", err)
		return ""
	}
	return path
}

// scriptHeader renders the artifact docstring header fields per §6.
func scriptHeader(name, description, inputFormats, outputFormats, tools string) string {
	return fmt.Sprintf(`"""
Workflow: %s
Generated: %s
Description: %s
Input formats: %s
Output formats: %s
Tools/Libraries: %s
Environment: python3
"""

`, name, time.Now().Format(time.RFC3339), description, inputFormats, outputFormats, tools)
}
