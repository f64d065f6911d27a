// Command weave-server exposes workflow synthesis/reconstruction over HTTP,
// grounded on hdn/server.go's flag+config+mode dispatch and hdn/api.go's
// mux route registration style.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/google/uuid"

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

type server struct {
	router *mux.Router
	svc    *wservice.Service

	mu        sync.Mutex
	artifacts map[string]*saver.Artifact
}

func newServer(cfg *config.Config) *server {
	var llm *llmprocessor.Processor
	if cfg.LLMProvider != "" && cfg.LLMProvider != "none" {
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

	s := &server{
		svc:       wservice.New(cfg, llm, lin, pub),
		router:    mux.NewRouter(),
		artifacts: make(map[string]*saver.Artifact),
	}
	s.routes()
	return s
}

func (s *server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/workflows/synthesize", s.handleSynthesize).Methods("POST")
	s.router.HandleFunc("/api/v1/workflows/reconstruct", s.handleReconstruct).Methods("POST")
	s.router.HandleFunc("/api/v1/workflows/{id}", s.handleGetWorkflow).Methods("GET")
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// saveRequest is the shared body shape for both synthesize and reconstruct:
// a work directory holding the on-disk journal (execute_blocks/), plus the
// save-mode parameters.
type saveRequest struct {
	WorkDir         string               `json:"work_dir"`
	Mode            string               `json:"mode"`
	WorkflowName    string               `json:"workflow_name"`
	InputFiles      []string             `json:"input_files"`
	ExpectedOutputs []expectedOutputJSON `json:"expected_outputs"`
	MaxRetries      int                  `json:"max_retries"`
	MaxFixAttempts  int                  `json:"max_fix_attempts"`
}

type expectedOutputJSON struct {
	Basename      string `json:"basename"`
	ContentBase64 string `json:"content_base64"`
}

func toExpectedOutputs(in []expectedOutputJSON) ([]validator.ExpectedOutput, error) {
	out := make([]validator.ExpectedOutput, 0, len(in))
	for _, e := range in {
		content, err := base64.StdEncoding.DecodeString(e.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("decode expected output %s: %w", e.Basename, err)
		}
		out = append(out, validator.ExpectedOutput{Basename: e.Basename, Content: content})
	}
	return out, nil
}

// handleSynthesize treats work_dir as the currently-active session's
// journal: only blocks recorded since that session started are included.
func (s *server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	s.handleSave(w, r, true)
}

// handleReconstruct treats work_dir as a historical journal: every
// recorded block is included regardless of which process wrote it.
func (s *server) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	s.handleSave(w, r, false)
}

func (s *server) handleSave(w http.ResponseWriter, r *http.Request, filterBySession bool) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.WorkDir == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "work_dir is required"})
		return
	}

	expected, err := toExpectedOutputs(req.ExpectedOutputs)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	artifact, err := s.svc.Reconstruct(r.Context(), req.WorkDir, filterBySession, wservice.Request{
		Mode:            saver.Mode(req.Mode),
		WorkflowName:    req.WorkflowName,
		InputFiles:      req.InputFiles,
		ExpectedOutputs: expected,
		MaxRetries:      req.MaxRetries,
		MaxFixAttempts:  req.MaxFixAttempts,
	})
	if err != nil {
		log.Printf("❌ [WEAVE-SERVER] save failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if artifact == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "no executions recorded, nothing to synthesize"})
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.artifacts[id] = artifact
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"path":      artifact.Path,
		"mode":      artifact.Mode,
		"finalized": artifact.Finalized,
	})
}

func (s *server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	artifact, ok := s.artifacts[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown workflow id"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"path":      artifact.Path,
		"mode":      artifact.Mode,
		"finalized": artifact.Finalized,
		"code":      artifact.Code,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("⚠️ [WEAVE-SERVER] failed to write response: %v", err)
	}
}

func main() {
	configPath := flag.String("config", "weave.yaml", "path to configuration file")
	port := flag.Int("port", 0, "port to run the server on (overrides config)")
	cleanupCron := flag.String("cleanup-cron", "0 0 * * * *", "cron expression for the scheduled cleanup job (seconds-enabled)")
	flag.Parse()

	cfg := config.Load(*configPath)
	if *port != 0 {
		cfg.Server.Port = *port
	}

	s := newServer(cfg)

	// Redis mirror wiring for the cleanup sweep is opt-in: only construct
	// one when RedisAddr is configured, since tracker.GoRedisMirror connects
	// lazily but still needs an address to dial.
	var mirror *tracker.GoRedisMirror
	if cfg.RedisAddr != "" {
		mirror = tracker.NewGoRedisMirror(cfg.RedisAddr)
	}
	if err := s.svc.StartCleanup(*cleanupCron, mirror); err != nil {
		log.Printf("⚠️ [WEAVE-SERVER] could not start cleanup job: %v", err)
	}
	defer s.svc.StopCleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("🚀 [WEAVE-SERVER] listening on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("❌ [WEAVE-SERVER] server exited: %v", err)
	}
}
