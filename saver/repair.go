package saver

import (
	"context"
	"log"
	"sort"
	"strconv"

	"weave/llmprocessor"
	"weave/postprocessor"
	"weave/validator"
)

// runValidateAndFinalize is the shared validate/repair loop used by both
// simple and llm save modes (§4.9's validator wired to §4.7's repair
// contract): validate the .tmp.py artifact; on success, finalize; on
// failure, simple mode gives up immediately while llm mode attempts
// rule-based repair once and then up to MaxFixAttempts LLM-based repair
// cycles, re-validating after each. The .tmp.py is left in place — never
// finalized — if every attempt fails (P6).
func runValidateAndFinalize(ctx context.Context, opts Options, artifact *Artifact, stem string) (*Artifact, error) {
	code := artifact.Code
	result := validator.Validate(ctx, artifact.TmpPath, opts.InputFiles, opts.ExpectedOutputs, opts.PythonBin)
	artifact.Validation = &result

	if result.Valid {
		return finalizeArtifact(opts, artifact, stem)
	}

	publish(opts.Events, "workflow.save.validated", map[string]string{"mode": string(opts.Mode), "valid": "false"})

	if opts.Mode != ModeLLM {
		log.Printf("⚠️ [SAVER] %s mode validation failed, leaving %s in place: %s", opts.Mode, artifact.TmpPath, result.Summary)
		return artifact, nil
	}

	repaired, _ := postprocessor.Fix(code, opts.Preprocessed, opts.Engine)
	if repaired != code {
		code = repaired
		if err := writeTmp(artifact.TmpPath, code); err == nil {
			artifact.Code = code
			result = validator.Validate(ctx, artifact.TmpPath, opts.InputFiles, opts.ExpectedOutputs, opts.PythonBin)
			artifact.Validation = &result
			if result.Valid {
				log.Printf("✅ [SAVER] rule-based repair fixed validation")
				return finalizeArtifact(opts, artifact, stem)
			}
		}
	}

	if opts.LLM == nil {
		log.Printf("⚠️ [SAVER] llm mode validation failed and no LLM configured for repair: %s", result.Summary)
		return artifact, nil
	}

	for attempt := 1; attempt <= opts.MaxFixAttempts; attempt++ {
		errorMsg := llmprocessor.BuildErrorMessage(result.Error, result.Summary, validationDetails(result), result.Stderr, result.Stdout)
		fixed := opts.LLM.FixWorkflowCode(code, errorMsg, attempt)
		if fixed == "" || fixed == code {
			log.Printf("⚠️ [SAVER] llm repair attempt %d made no change", attempt)
			continue
		}
		code = fixed
		code, _ = postprocessor.Fix(code, opts.Preprocessed, opts.Engine)

		if err := writeTmp(artifact.TmpPath, code); err != nil {
			continue
		}
		artifact.Code = code

		result = validator.Validate(ctx, artifact.TmpPath, opts.InputFiles, opts.ExpectedOutputs, opts.PythonBin)
		artifact.Validation = &result
		if result.Valid {
			log.Printf("✅ [SAVER] llm repair attempt %d fixed validation", attempt)
			return finalizeArtifact(opts, artifact, stem)
		}
		log.Printf("⚠️ [SAVER] llm repair attempt %d still failing: %s", attempt, result.Summary)
	}

	publish(opts.Events, "workflow.save.repair_exhausted", map[string]string{"mode": string(opts.Mode)})
	log.Printf("❌ [SAVER] exhausted repair attempts, leaving %s unfinalized", artifact.TmpPath)
	return artifact, nil
}

func finalizeArtifact(opts Options, artifact *Artifact, stem string) (*Artifact, error) {
	finalPath, err := finalize(artifact.TmpPath)
	if err != nil {
		return artifact, err
	}
	artifact.Path = finalPath
	artifact.Finalized = true
	artifact.DescPath = writeDescription(opts.WorkflowsDir, stem, describeArtifact(opts, artifact))
	return artifact, nil
}

func describeArtifact(opts Options, artifact *Artifact) string {
	if opts.LLM != nil {
		if desc := opts.LLM.GenerateWorkflowDescription(artifact.Code, opts.Executions, opts.Preprocessed); desc != "" {
			return desc
		}
	}
	return "Synthesized workflow with " + strconv.Itoa(len(opts.Executions)) + " recorded executions."
}

func validationDetails(result validator.Result) []llmprocessor.ValidationDetail {
	names := make([]string, 0, len(result.OutputFilesMatch))
	for name := range result.OutputFilesMatch {
		names = append(names, name)
	}
	sort.Strings(names)
	details := make([]llmprocessor.ValidationDetail, 0, len(names))
	for _, name := range names {
		d := result.OutputFilesMatch[name]
		details = append(details, llmprocessor.ValidationDetail{Path: name, Diff: d.Diff, Match: d.Match})
	}
	return details
}
