// Package wservice is the top-level orchestration entry point: Synthesize
// (from a live tracker) and Reconstruct (from an on-disk journal) both wire
// preprocessor + saver + validator together, and an optional cron job
// sweeps expired Redis mirror entries and orphaned validator temp
// directories. Grounded on hdn/server.go's config/mode dispatch and
// hdn/agent_scheduler.go's cron.New(cron.WithSeconds()) wrapper.
package wservice

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"weave/config"
	"weave/lineage"
	"weave/llmprocessor"
	"weave/preprocessor"
	"weave/pyscan"
	"weave/saver"
	"weave/tracker"
	"weave/validator"
)

// Service bundles the shared dependencies every Synthesize/Reconstruct call
// needs: the static-analysis engine, the LLM processor (nil disables llm
// mode), the lineage recorder, and the lifecycle-event publisher.
type Service struct {
	Config  *config.Config
	Engine  *pyscan.Engine
	LLM     *llmprocessor.Processor
	Lineage lineage.Recorder
	Events  saver.Publisher

	mirror    *tracker.GoRedisMirror
	sessionMu sessionRegistry
	cronJob   *cron.Cron
}

// New returns a Service. llm may be nil (notebook/simple modes only);
// lin/pub may be nil (no lineage graph / no event bus configured).
func New(cfg *config.Config, llm *llmprocessor.Processor, lin lineage.Recorder, pub saver.Publisher) *Service {
	if lin == nil {
		lin = lineage.NoOp{}
	}
	return &Service{
		Config:  cfg,
		Engine:  pyscan.NewEngine(),
		LLM:     llm,
		Lineage: lin,
		Events:  pub,
	}
}

// Request describes one synthesize/reconstruct call's parameters.
type Request struct {
	Mode            saver.Mode
	WorkflowName    string
	InputFiles      []string
	ExpectedOutputs []validator.ExpectedOutput
	MaxRetries      int
	MaxFixAttempts  int
}

// Synthesize builds an artifact from a live tracker's in-memory history —
// the interactive-session path.
func (s *Service) Synthesize(ctx context.Context, t *tracker.Tracker, req Request) (*saver.Artifact, error) {
	entries := t.GetExecutionHistory()
	return s.save(ctx, entries, t.SessionID, req)
}

// Reconstruct builds an artifact from a session's on-disk journal — used
// after a process restart, or to regenerate a past session's artifact
// without a live tracker. filterBySession selects only blocks whose
// filename timestamp is no earlier than workDir's tracker.New() call; pass
// false to load every recorded block regardless of session.
func (s *Service) Reconstruct(ctx context.Context, workDir string, filterBySession bool, req Request) (*saver.Artifact, error) {
	t := tracker.New(workDir)
	entries, err := t.LoadExecuteBlocksFromFiles(filterBySession)
	if err != nil {
		return nil, fmt.Errorf("load execute blocks: %w", err)
	}
	return s.save(ctx, entries, t.SessionID, req)
}

func (s *Service) save(ctx context.Context, entries []tracker.ExecutionEntry, sessionID string, req Request) (*saver.Artifact, error) {
	s.sessionMu.record(sessionID)

	data := preprocessor.Preprocess(entries, s.Engine, s.Lineage, sessionID)

	workflowsDir := filepath.Join(s.Config.WorkflowsRoot, "workflows")
	opts := saver.Options{
		Mode:            req.Mode,
		WorkflowsDir:    workflowsDir,
		WorkflowName:    req.WorkflowName,
		Executions:      entries,
		Preprocessed:    data,
		MaxRetries:      req.MaxRetries,
		MaxFixAttempts:  req.MaxFixAttempts,
		LLM:             s.LLM,
		Engine:          s.Engine,
		PythonBin:       s.Config.PythonBin,
		InputFiles:      req.InputFiles,
		ExpectedOutputs: req.ExpectedOutputs,
		Events:          s.Events,
	}
	return saver.Save(ctx, opts)
}

// sessionRegistry remembers session IDs seen by this Service, so the
// cleanup job has something to sweep against without a separate store.
type sessionRegistry struct {
	ids []string
}

func (r *sessionRegistry) record(id string) {
	for _, existing := range r.ids {
		if existing == id {
			return
		}
	}
	r.ids = append(r.ids, id)
}

// StartCleanup registers an hourly job (configurable via cronExpr) pruning
// expired Redis mirror entries and orphaned validator temp directories
// older than 24h. mirror may be nil to skip the Redis sweep.
func (s *Service) StartCleanup(cronExpr string, mirror *tracker.GoRedisMirror) error {
	if cronExpr == "" {
		cronExpr = "0 0 * * * *" // hourly, seconds-enabled cron
	}
	s.mirror = mirror
	s.cronJob = cron.New(cron.WithSeconds())

	_, err := s.cronJob.AddFunc(cronExpr, s.RunCleanupOnce)
	if err != nil {
		return fmt.Errorf("schedule cleanup job: %w", err)
	}
	s.cronJob.Start()
	log.Printf("✅ [WSERVICE] cleanup job scheduled: %s", cronExpr)
	return nil
}

// StopCleanup stops the scheduled cleanup job, if one is running.
func (s *Service) StopCleanup() {
	if s.cronJob != nil {
		s.cronJob.Stop()
	}
}

// SetMirror attaches a Redis mirror for the cleanup sweep to use, without
// starting the cron job — for one-shot callers that invoke RunCleanupOnce
// directly instead of StartCleanup.
func (s *Service) SetMirror(mirror *tracker.GoRedisMirror) {
	s.mirror = mirror
}

// RunCleanupOnce performs a single sweep: expired Redis mirror entries (if a
// mirror was supplied to StartCleanup or SetMirror) and orphaned validator
// temp directories. It is the body the cron job in StartCleanup calls on
// every tick, also exposed directly for one-shot callers like weave-cli.
func (s *Service) RunCleanupOnce() {
	log.Printf("🧹 [WSERVICE] running cleanup sweep")
	if s.mirror != nil {
		if err := tracker.PruneExpiredRedisMirror(s.mirror, s.sessionMu.ids); err != nil {
			log.Printf("⚠️ [WSERVICE] redis mirror prune failed: %v", err)
		}
	}
	if err := pruneOrphanedValidationTemp(24 * time.Hour); err != nil {
		log.Printf("⚠️ [WSERVICE] validation temp prune failed: %v", err)
	}
}

// pruneOrphanedValidationTemp removes workflow_validation_temp* directories
// under the OS temp dir older than maxAge — validator.Validate always
// cleans up its own workspace, so anything still present past maxAge
// outlived a crash or a killed process.
func pruneOrphanedValidationTemp(maxAge time.Duration) error {
	root := os.TempDir()
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read temp dir: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "workflow_validation_temp_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(root, e.Name())
			if err := os.RemoveAll(path); err != nil {
				log.Printf("⚠️ [WSERVICE] could not remove orphaned %s: %v", path, err)
				continue
			}
			log.Printf("🧹 [WSERVICE] removed orphaned validation workspace %s", path)
		}
	}
	return nil
}
