// Package llmclient provides a concrete llmprocessor.Invoker backed by
// Ollama, OpenAI, or Anthropic HTTP APIs, grounded closely on
// hdn/llm_client.go's callLLMReal. It is deliberately outside the
// synthesis core: llmprocessor only depends on the Invoker interface, so
// any of these providers — or a test mock — can be swapped in.
package llmclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"weave/llmprocessor"
)

// Config selects a provider and its credentials/endpoint.
type Config struct {
	Provider  string // "openai", "anthropic", "ollama", "mock"
	Model     string
	APIKey    string
	OllamaURL string // optional override, e.g. "http://localhost:11434"
	Timeout   time.Duration
}

// Client implements llmprocessor.Invoker.
type Client struct {
	config Config
	http   *http.Client
}

// New returns a Client configured per cfg, defaulting the HTTP timeout to
// 60s if unset.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{config: cfg, http: &http.Client{Timeout: timeout}}
}

var _ llmprocessor.Invoker = (*Client)(nil)

// Invoke sends messages to the configured provider and returns the
// assistant's text content.
func (c *Client) Invoke(messages []llmprocessor.Message) (string, error) {
	if c.config.Provider == "mock" {
		return c.mockResponse(messages), nil
	}

	var apiURL, apiKey string
	switch c.config.Provider {
	case "openai":
		apiURL = "https://api.openai.com/v1/chat/completions"
		apiKey = c.config.APIKey
		log.Printf("🌐 [LLM] using OpenAI API")
	case "anthropic":
		apiURL = "https://api.anthropic.com/v1/messages"
		apiKey = c.config.APIKey
		log.Printf("🌐 [LLM] using Anthropic API")
	case "ollama", "local", "":
		if c.config.OllamaURL != "" {
			apiURL = normalizeOllamaURL(c.config.OllamaURL)
		} else {
			apiURL = "http://localhost:11434/api/chat"
		}
		log.Printf("🌐 [LLM] using Ollama API at %s", apiURL)
	default:
		log.Printf("❌ [LLM] unsupported provider: %s", c.config.Provider)
		return "", fmt.Errorf("unsupported LLM provider: %s", c.config.Provider)
	}

	body, err := c.buildRequestBody(messages)
	if err != nil {
		return "", fmt.Errorf("build LLM request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build LLM HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		if c.config.Provider == "anthropic" {
			req.Header.Set("x-api-key", apiKey)
			req.Header.Set("anthropic-version", "2023-06-01")
		} else {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read LLM response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("LLM API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return c.parseResponse(respBody)
}

func (c *Client) buildRequestBody(messages []llmprocessor.Message) ([]byte, error) {
	switch c.config.Provider {
	case "ollama", "local", "":
		msgs := make([]map[string]string, len(messages))
		for i, m := range messages {
			role := m.Role
			if role == "" {
				role = "user"
			}
			msgs[i] = map[string]string{"role": role, "content": m.Content}
		}
		return json.Marshal(map[string]interface{}{
			"model":    c.modelName(),
			"messages": msgs,
			"stream":   false,
		})
	case "anthropic":
		msgs := make([]map[string]string, len(messages))
		for i, m := range messages {
			msgs[i] = map[string]string{"role": "user", "content": m.Content}
		}
		return json.Marshal(map[string]interface{}{
			"model":      c.modelName(),
			"max_tokens": 4096,
			"messages":   msgs,
		})
	default:
		msgs := make([]map[string]string, len(messages))
		for i, m := range messages {
			msgs[i] = map[string]string{"role": "user", "content": m.Content}
		}
		return json.Marshal(map[string]interface{}{
			"model":    c.modelName(),
			"messages": msgs,
		})
	}
}

func (c *Client) modelName() string {
	if c.config.Model != "" {
		return c.config.Model
	}
	switch c.config.Provider {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-3-5-sonnet-latest"
	default:
		return "llama3"
	}
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (c *Client) parseResponse(body []byte) (string, error) {
	switch c.config.Provider {
	case "anthropic":
		var r anthropicResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("decode anthropic response: %w", err)
		}
		if len(r.Content) == 0 {
			return "", fmt.Errorf("anthropic response had no content")
		}
		return r.Content[0].Text, nil
	case "ollama", "local", "":
		var r ollamaResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("decode ollama response: %w", err)
		}
		return r.Message.Content, nil
	default:
		var r openAIResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("decode openai response: %w", err)
		}
		if len(r.Choices) == 0 {
			return "", fmt.Errorf("openai response had no choices")
		}
		return r.Choices[0].Message.Content, nil
	}
}

// normalizeOllamaURL ensures the provided base URL includes the /api/chat
// endpoint. Accepts either http://host:11434 or http://host:11434/api/chat.
func normalizeOllamaURL(base string) string {
	trimmed := strings.TrimRight(base, "/")
	if strings.HasSuffix(trimmed, "/api/chat") {
		return trimmed
	}
	if strings.HasSuffix(trimmed, "/api") {
		return trimmed + "/chat"
	}
	return trimmed + "/api/chat"
}

func (c *Client) mockResponse(messages []llmprocessor.Message) string {
	if len(messages) == 0 {
		return ""
	}
	prompt := messages[0].Content
	if strings.Contains(prompt, "REQUIRED OUTPUT FILES") {
		return "```python\nimport argparse\nimport pandas as pd\n\ndef main():\n    pass\n\nif __name__ == '__main__':\n    main()\n```"
	}
	return "import pandas as pd\n"
}
