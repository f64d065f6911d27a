// Package tracker implements the append-only execution journal: the
// WorkflowTracker. In-memory history is always authoritative during a live
// session; the on-disk JSON+.py mirror exists for post-hoc reconstruction.
package tracker

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionEntry records one executed code block and its observed effects.
type ExecutionEntry struct {
	ExecutionIndex int       `json:"execution_index"`
	ExecutionID    string    `json:"-"`
	SessionID      string    `json:"-"`
	Timestamp      time.Time `json:"timestamp"`
	Success        bool      `json:"success"`
	ErrorType      string    `json:"error_type"`
	Code           string    `json:"code"`
	Result         string    `json:"result"`
	ResultLength   int       `json:"result_length"`
	InputFiles     []string  `json:"input_files"`
	OutputFiles    []string  `json:"output_files"`
	Metadata       Metadata  `json:"metadata"`
}

// Metadata summarizes an ExecutionEntry for quick inspection without
// re-scanning Code/Result.
type Metadata struct {
	CodeLength    int  `json:"code_length"`
	HasError      bool `json:"has_error"`
	NumInputFiles int  `json:"num_input_files"`
	NumOutputFiles int `json:"num_output_files"`
}

const maxPersistedResultChars = 10000

// RedisMirror is the interface tracker needs from a Redis client for the
// optional code/file cache; satisfied by *GoRedisMirror (which adapts a
// *redis.Client, also over miniredis in tests) and by in-memory fakes.
type RedisMirror interface {
	SetEx(key string, value []byte, ttl time.Duration) error
	SAdd(set, member string) error
}

// Tracker is the WorkflowTracker. It is safe for concurrent use: the
// in-memory slice is guarded by a mutex, matching §5's "single writer per
// session" model (the mutex protects Go-level data races only, not
// cross-process journal writes).
type Tracker struct {
	SessionID       string
	WorkDir         string // if empty, disk persistence is skipped
	SessionStart    time.Time
	Mirror          RedisMirror // optional; nil disables the Redis side channel
	MirrorTTL       time.Duration

	mu      sync.Mutex
	history []ExecutionEntry
	nextIdx int
}

// New returns a Tracker bound to workDir (may be "" to disable disk
// persistence) with session_start_time set to now.
func New(workDir string) *Tracker {
	return &Tracker{
		SessionID:    uuid.NewString(),
		WorkDir:      workDir,
		SessionStart: time.Now(),
		MirrorTTL:    24 * time.Hour,
	}
}

// TrackExecution appends an entry and, if WorkDir is configured, persists
// it as JSON + a .py sidecar. Returns the saved JSON file path, or "" if
// disk persistence is disabled.
func (t *Tracker) TrackExecution(code, result string, success bool, inputFiles, outputFiles []string, errorType string) (string, error) {
	t.mu.Lock()
	idx := t.nextIdx
	t.nextIdx++
	ts := time.Now()

	fullResult := result
	persisted := result
	if len(persisted) > maxPersistedResultChars {
		persisted = persisted[:maxPersistedResultChars]
	}

	entry := ExecutionEntry{
		ExecutionIndex: idx,
		ExecutionID:    uuid.NewString(),
		SessionID:      t.SessionID,
		Timestamp:      ts,
		Success:        success,
		ErrorType:      errorType,
		Code:           code,
		Result:         fullResult,
		ResultLength:   len(fullResult),
		InputFiles:     inputFiles,
		OutputFiles:    outputFiles,
		Metadata: Metadata{
			CodeLength:     len(code),
			HasError:       errorType != "",
			NumInputFiles:  len(inputFiles),
			NumOutputFiles: len(outputFiles),
		},
	}
	t.history = append(t.history, entry)
	t.mu.Unlock()

	t.mirrorBestEffort(entry)

	if t.WorkDir == "" {
		return "", nil
	}

	persistedEntry := entry
	persistedEntry.Result = persisted

	blocksDir := filepath.Join(t.WorkDir, "execute_blocks")
	if err := os.MkdirAll(blocksDir, 0o755); err != nil {
		log.Printf("⚠️ [TRACKER] could not create execute_blocks dir: %v", err)
		return "", fmt.Errorf("create execute_blocks dir: %w", err)
	}

	stem := fmt.Sprintf("execute_%s_%04d", ts.Format("20060102_150405_000000"), idx)
	jsonPath := filepath.Join(blocksDir, stem+".json")
	pyPath := filepath.Join(blocksDir, stem+".py")

	data, err := json.MarshalIndent(persistedEntry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal execution entry: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		log.Printf("⚠️ [TRACKER] could not write %s: %v", jsonPath, err)
		return "", fmt.Errorf("write execution entry: %w", err)
	}

	header := fmt.Sprintf("# Execute block #%d\n# Timestamp: %s\n# Success: %v\n# Input files: %s\n# Output files: %s\n\n",
		idx, ts.Format(time.RFC3339), success, strings.Join(inputFiles, ", "), strings.Join(outputFiles, ", "))
	if err := os.WriteFile(pyPath, []byte(header+code), 0o644); err != nil {
		log.Printf("⚠️ [TRACKER] could not write %s: %v", pyPath, err)
	}

	log.Printf("📝 [TRACKER] recorded execution #%d (success=%v) at %s", idx, success, jsonPath)
	return jsonPath, nil
}

func (t *Tracker) mirrorBestEffort(entry ExecutionEntry) {
	if t.Mirror == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := fmt.Sprintf("weave:execution:%s:%d", t.SessionID, entry.ExecutionIndex)
	if err := t.Mirror.SetEx(key, data, t.MirrorTTL); err != nil {
		log.Printf("⚠️ [TRACKER] redis mirror write failed (continuing): %v", err)
		return
	}
	if err := t.Mirror.SAdd("weave:sessions:"+t.SessionID, key); err != nil {
		log.Printf("⚠️ [TRACKER] redis index update failed (continuing): %v", err)
	}
}

// GetExecutionHistory returns a copy of the in-memory history, the
// authoritative source of truth during a live session.
func (t *Tracker) GetExecutionHistory() []ExecutionEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ExecutionEntry, len(t.history))
	copy(out, t.history)
	return out
}

var readerPathRe = regexp.MustCompile(`(?:read_csv|read_excel|read_table|read_json|read_parquet|open)\(\s*['"]((?:\\.|[^'"\\])+)['"]`)

// ExtractInputFilesFromCode statically infers read targets via regex over
// common readers, resolving relative paths against workDir.
func ExtractInputFilesFromCode(code, workDir string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range readerPathRe.FindAllStringSubmatch(code, -1) {
		p := m[1]
		if workDir != "" && !filepath.IsAbs(p) {
			p = filepath.Join(workDir, p)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

var skipDirs = map[string]bool{
	"__pycache__": true, ".cache": true, "tmp": true, "temp": true, ".ipynb_checkpoints": true,
}

// ExtractOutputFilesFromResult returns files newly present in workDir
// (filesAfter \ filesBefore), excluding cache/temp directories.
func ExtractOutputFilesFromResult(filesBefore, filesAfter []string, workDir string) []string {
	before := make(map[string]bool, len(filesBefore))
	for _, f := range filesBefore {
		before[f] = true
	}
	var out []string
	for _, f := range filesAfter {
		if before[f] {
			continue
		}
		if inSkippedDir(f) {
			continue
		}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func inSkippedDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if skipDirs[part] {
			return true
		}
	}
	return false
}

var timestampPrefixRe = regexp.MustCompile(`execute_(\d{8}_\d{6})`)

// isFileFromCurrentSession compares the YYYYMMDD_HHMMSS prefix parsed from
// filename against sessionStart. On parse failure, the file is included
// (fail-open).
func isFileFromCurrentSession(filename string, sessionStart time.Time) bool {
	m := timestampPrefixRe.FindStringSubmatch(filename)
	if m == nil {
		return true
	}
	parsed, err := time.ParseInLocation("20060102_150405", m[1], time.Local)
	if err != nil {
		return true
	}
	return !parsed.Before(sessionStart)
}

// LoadExecuteBlocksFromFiles reads all execute_*.json files from
// <WorkDir>/execute_blocks, optionally filtered to the current session, and
// returns them sorted by persisted timestamp.
func (t *Tracker) LoadExecuteBlocksFromFiles(filterBySession bool) ([]ExecutionEntry, error) {
	if t.WorkDir == "" {
		return nil, nil
	}
	blocksDir := filepath.Join(t.WorkDir, "execute_blocks")
	entries, err := os.ReadDir(blocksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read execute_blocks dir: %w", err)
	}

	var out []ExecutionEntry
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if filterBySession && !isFileFromCurrentSession(name, t.SessionStart) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(blocksDir, name))
		if err != nil {
			log.Printf("⚠️ [TRACKER] skipping unreadable block %s: %v", name, err)
			continue
		}
		var entry ExecutionEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Printf("⚠️ [TRACKER] skipping malformed block %s: %v", name, err)
			continue
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
