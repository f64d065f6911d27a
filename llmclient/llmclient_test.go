package llmclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weave/llmprocessor"
)

func TestMockProviderInvoke(t *testing.T) {
	c := New(Config{Provider: "mock"})
	resp, err := c.Invoke([]llmprocessor.Message{{Role: "user", Content: "hello"}})
	require.NoError(t, err)
	assert.NotEmpty(t, resp)
}

func TestUnsupportedProviderErrors(t *testing.T) {
	c := New(Config{Provider: "carrier-pigeon"})
	_, err := c.Invoke([]llmprocessor.Message{{Role: "user", Content: "hi"}})
	assert.Error(t, err)
}

func TestOllamaInvokeAgainstTestServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req["model"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"content": "import os\n"},
		})
	}))
	defer srv.Close()

	c := New(Config{Provider: "ollama", OllamaURL: srv.URL})
	resp, err := c.Invoke([]llmprocessor.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "import os\n", resp)
}

func TestNormalizeOllamaURL(t *testing.T) {
	assert.Equal(t, "http://h:1/api/chat", normalizeOllamaURL("http://h:1"))
	assert.Equal(t, "http://h:1/api/chat", normalizeOllamaURL("http://h:1/api"))
	assert.Equal(t, "http://h:1/api/chat", normalizeOllamaURL("http://h:1/api/chat"))
}
