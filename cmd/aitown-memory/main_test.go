package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama serves /api/chat and /api/embed. Importance prompts are rated
// 7; other prompts get a fixed summary.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		reply := "I chatted with Bob about the weather."
		if n := len(req.Messages); n > 0 && strings.Contains(req.Messages[n-1].Content, "Rating:") {
			reply = "7"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		out := make([][]float32, len(req.Input))
		for i, text := range req.Input {
			out[i] = []float32{float32(len(text)), 1, float32(strings.Count(text, "e") + 1)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, ollamaURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "aitown.yaml")
	body := fmt.Sprintf(`
storage:
  sqlite_path: %s
vector_index:
  backend: chromem
  persist_path: %s
llm:
  ollama_url: %s
  timeout: 5s
`, filepath.Join(dir, "data", "aitown.db"), filepath.Join(dir, "vectors"), ollamaURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_MemoryLifecycle(t *testing.T) {
	t.Setenv("AITOWN_CONFIG", "")
	cfg := writeConfig(t, fakeOllama(t).URL)

	out, err := run(t, "--config", cfg, "add", "alice", "Bob fixed my fence", "--about", "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	_, err = run(t, "--config", cfg, "add", "alice", "It rained all day", "--about", "bob", "--importance", "2")
	require.NoError(t, err)

	out, err = run(t, "--config", cfg, "search", "alice", "Bob fixed my fence")
	require.NoError(t, err)
	assert.Contains(t, out, "[7] Bob fixed my fence")
	assert.Contains(t, out, "[2] It rained all day")

	out, err = run(t, "--config", cfg, "access", "alice", "fence", "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))

	out, err = run(t, "--config", cfg, "search", "carol", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "No memories found")

	_, err = run(t, "--config", cfg, "say", "c1", "bob", "Nice weather!", "--name", "Bob", "--to", "alice")
	require.NoError(t, err)

	out, err = run(t, "--config", cfg, "remember", "alice", "c1", "--name", "Alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Conversation remembered")

	out, err = run(t, "--config", cfg, "remember", "alice", "c1", "--name", "Alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing new to remember")

	out, err = run(t, "--config", cfg, "reflect", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "No reflection needed")

	snap := filepath.Join(t.TempDir(), "snap.db")
	_, err = run(t, "--config", cfg, "snapshot", snap)
	require.NoError(t, err)
	assert.FileExists(t, snap)
}

func TestCLI_AddRequiresPayload(t *testing.T) {
	t.Setenv("AITOWN_CONFIG", "")
	cfg := writeConfig(t, fakeOllama(t).URL)

	_, err := run(t, "--config", cfg, "add", "alice", "text")
	assert.ErrorContains(t, err, "--about or --conversation")

	_, err = run(t, "--config", cfg, "add", "alice", "text", "--about", "bob", "--conversation", "c1")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestCLI_ConfigCheck(t *testing.T) {
	t.Setenv("AITOWN_CONFIG", "")
	cfg := writeConfig(t, "http://localhost:11434")

	out, err := run(t, "--config", cfg, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK")
	assert.Contains(t, out, "chromem")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("memory:\n  recency_decay_rate: 2\n"), 0o600))
	_, err = run(t, "--config", bad, "config", "check")
	assert.Error(t, err)
}

func TestCLI_RememberRejectsBadTime(t *testing.T) {
	t.Setenv("AITOWN_CONFIG", "")
	cfg := writeConfig(t, fakeOllama(t).URL)

	_, err := run(t, "--config", cfg, "remember", "alice", "c1", "--last-spoke", "yesterday")
	assert.ErrorContains(t, err, "--last-spoke")
}
