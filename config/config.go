// Package config loads weave's runtime configuration: a YAML domain/runtime
// file plus .env-sourced and directly-set environment variable overrides,
// grounded on the teacher's loadEnvFile/loadConfig/applyEnvOverrides trio.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is weave's runtime configuration.
type Config struct {
	LLMProvider  string            `yaml:"llm_provider"`
	LLMAPIKey    string            `yaml:"llm_api_key"`
	WorkflowsRoot string           `yaml:"workflows_root"`
	PythonBin    string            `yaml:"python_bin"`
	RedisAddr    string            `yaml:"redis_addr"`
	NATSURL      string            `yaml:"nats_url"`
	Neo4jURI     string            `yaml:"neo4j_uri"`
	Neo4jUser    string            `yaml:"neo4j_user"`
	Neo4jPass    string            `yaml:"neo4j_pass"`
	Settings     map[string]string `yaml:"settings"`
	Server       struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`
}

// defaultConfig is used whenever path cannot be read, matching the
// teacher's fall back to a working mock configuration rather than failing
// startup outright.
func defaultConfig() *Config {
	cfg := &Config{
		LLMProvider:   "mock",
		WorkflowsRoot: "./workflows",
		PythonBin:     "python3",
		RedisAddr:     "localhost:6379",
		Settings:      make(map[string]string),
	}
	cfg.Server.Port = 8090
	cfg.Server.Host = "0.0.0.0"
	return cfg
}

// Load loads .env (searching up to 3 parent directories), then the YAML
// config at path (falling back to defaults if unreadable), then applies
// environment-variable overrides.
func Load(path string) *Config {
	if err := loadEnvFile(); err != nil {
		log.Printf("ℹ️ [CONFIG] no .env file loaded: %v", err)
	}

	cfg, err := loadYAML(path)
	if err != nil {
		log.Printf("⚠️ [CONFIG] could not load %s: %v (using defaults)", path, err)
		cfg = defaultConfig()
	}

	applyEnvOverrides(cfg)
	return cfg
}

func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables override the LLM/storage
// settings that most commonly vary between deployments.
func applyEnvOverrides(cfg *Config) {
	if v := getenvTrim("LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := getenvTrim("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := getenvTrim("OPENAI_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := getenvTrim("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := getenvTrim("LLM_MODEL"); v != "" {
		if cfg.Settings == nil {
			cfg.Settings = make(map[string]string)
		}
		cfg.Settings["model"] = v
	}
	if v := getenvTrim("OLLAMA_URL"); v != "" {
		if cfg.Settings == nil {
			cfg.Settings = make(map[string]string)
		}
		cfg.Settings["ollama_url"] = v
	}
	if v := getenvTrim("WORKFLOWS_ROOT"); v != "" {
		cfg.WorkflowsRoot = v
	}
	if v := getenvTrim("PYTHON_BIN"); v != "" {
		cfg.PythonBin = v
	}
	if v := getenvTrim("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = normalizeRedisAddr(v)
	}
	if v := getenvTrim("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := getenvTrim("NEO4J_URI"); v != "" {
		cfg.Neo4jURI = v
	}
	if v := getenvTrim("NEO4J_USER"); v != "" {
		cfg.Neo4jUser = v
	}
	if v := getenvTrim("NEO4J_PASS"); v != "" {
		cfg.Neo4jPass = v
	}
	if v := getenvTrim("WEAVE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func getenvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// loadEnvFile loads .env from the current directory or up to 3 parent
// directories, mirroring the teacher's project-root search.
func loadEnvFile() error {
	if err := godotenv.Load(".env"); err == nil {
		log.Printf("✅ [CONFIG] loaded .env from current directory")
		return nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
		envPath := filepath.Join(dir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Printf("✅ [CONFIG] loaded .env from %s", envPath)
			return nil
		}
	}
	return fmt.Errorf(".env file not found")
}

// normalizeRedisAddr strips a redis:// scheme and trailing slash and
// supplies the default port when none is given.
func normalizeRedisAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "localhost:6379"
	}
	addr = strings.TrimPrefix(addr, "redis://")
	addr = strings.TrimSuffix(addr, "/")
	if !strings.Contains(addr, ":") {
		addr += ":6379"
	}
	return addr
}
