// Command weave-cli is the local, serverless entry point for the two
// save operations: reconstruct (from a historical on-disk journal) and
// synthesize (an alias over the same journal, treated as if it belonged
// to a currently-running session). Grounded on hdn/server.go's flag +
// config + dispatch shape, minus the HTTP surface weave-server adds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"weave/config"
	"weave/events"
	"weave/lineage"
	"weave/llmclient"
	"weave/llmprocessor"
	"weave/saver"
	"weave/tracker"
	"weave/validator"
	"weave/wservice"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "reconstruct":
		runSave("reconstruct", os.Args[2:], false)
	case "synthesize":
		runSave("synthesize", os.Args[2:], true)
	case "cleanup":
		runCleanup(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "❌ [WEAVE] unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: weave <reconstruct|synthesize|cleanup> [flags]")
	fmt.Fprintln(os.Stderr, "  reconstruct   load every recorded block in the journal, regardless of session")
	fmt.Fprintln(os.Stderr, "  synthesize    load only the blocks belonging to the journal's most recent session")
	fmt.Fprintln(os.Stderr, "  cleanup       run one sweep of the Redis mirror / validator temp dir cleanup")
}

func runCleanup(args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", "weave.yaml", "path to configuration file")
	fs.Parse(args)

	cfg := config.Load(*configPath)
	svc, mirror := newService(cfg)
	if mirror != nil {
		svc.SetMirror(mirror)
	}
	svc.RunCleanupOnce()
}

func runSave(cmdName string, args []string, filterBySession bool) {
	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	var (
		configPath     = fs.String("config", "weave.yaml", "path to configuration file")
		workDir        = fs.String("work-dir", "", "directory holding the execute_blocks/ journal (required)")
		mode           = fs.String("mode", "notebook", "save mode: notebook, simple, or llm")
		name           = fs.String("name", "workflow", "workflow name, used for the artifact's header/filename")
		maxRetries     = fs.Int("max-retries", 5, "llm mode: max synthesis retry attempts")
		maxFixAttempts = fs.Int("max-fix-attempts", 3, "llm mode: max repair attempts after a failed validation")
	)
	var inputFiles stringList
	var expectedFiles stringList
	fs.Var(&inputFiles, "input", "input file available to the artifact (repeatable)")
	fs.Var(&expectedFiles, "expected", "path to a file the artifact must reproduce byte-for-byte (repeatable)")
	fs.Parse(args)

	if *workDir == "" {
		fmt.Fprintln(os.Stderr, "❌ [WEAVE] -work-dir is required")
		os.Exit(2)
	}

	cfg := config.Load(*configPath)

	expected, err := loadExpectedOutputs(expectedFiles)
	if err != nil {
		log.Fatalf("❌ [WEAVE] could not read expected outputs: %v", err)
	}

	svc, _ := newService(cfg)
	artifact, err := svc.Reconstruct(context.Background(), *workDir, filterBySession, wservice.Request{
		Mode:            saver.Mode(*mode),
		WorkflowName:    *name,
		InputFiles:      inputFiles,
		ExpectedOutputs: expected,
		MaxRetries:      *maxRetries,
		MaxFixAttempts:  *maxFixAttempts,
	})
	if err != nil {
		log.Fatalf("❌ [WEAVE] %s failed: %v", cmdName, err)
	}
	if artifact == nil {
		fmt.Println("ℹ️ [WEAVE] no successful executions recorded, nothing to save")
		return
	}

	fmt.Printf("✅ [WEAVE] %s wrote %s (mode=%s, finalized=%v)\n", cmdName, artifact.Path, artifact.Mode, artifact.Finalized)
}

// newService wires a Service from cfg, and also returns a Redis mirror when
// cfg.RedisAddr is configured, for callers that run the cleanup sweep.
func newService(cfg *config.Config) (*wservice.Service, *tracker.GoRedisMirror) {
	var llm *llmprocessor.Processor
	if cfg.LLMProvider != "" && cfg.LLMProvider != "none" && cfg.LLMProvider != "mock" {
		client := llmclient.New(llmclient.Config{
			Provider: cfg.LLMProvider,
			APIKey:   cfg.LLMAPIKey,
			Model:    cfg.Settings["model"],
			OllamaURL: cfg.Settings["ollama_url"],
		})
		llm = llmprocessor.New(client)
	}

	lin := lineage.FromConfig(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)

	var pub saver.Publisher
	if cfg.NATSURL != "" {
		pub = events.NewPublisher(events.Config{URL: cfg.NATSURL})
	}

	var mirror *tracker.GoRedisMirror
	if cfg.RedisAddr != "" {
		mirror = tracker.NewGoRedisMirror(cfg.RedisAddr)
	}

	return wservice.New(cfg, llm, lin, pub), mirror
}

func loadExpectedOutputs(paths []string) ([]validator.ExpectedOutput, error) {
	out := make([]validator.ExpectedOutput, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, validator.ExpectedOutput{Basename: filepath.Base(p), Content: content})
	}
	return out, nil
}

// stringList accumulates repeated -flag values into a slice.
type stringList []string

func (s *stringList) String() string {
	return fmt.Sprint([]string(*s))
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
