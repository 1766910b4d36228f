package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/estate-agent/apperr"
	"github.com/fabfab/estate-agent/config"
	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/resilience"
)

func TestNewClientDefaults(t *testing.T) {
	cfg := config.Config{
		LLM: config.LLMConfig{
			Provider: config.ProviderOllama,
			Model:    "llama3.1:8b",
		},
		OllamaHost: "http://localhost:11434",
	}

	client, err := llm.NewClient(cfg)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewClientOpenAIRequiresAPIKey(t *testing.T) {
	cfg := config.Config{
		LLM: config.LLMConfig{
			Provider: config.ProviderOpenAI,
			Model:    "gpt-4o",
		},
	}

	_, err := llm.NewClient(cfg)
	require.Error(t, err)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestOllamaCompleteParsesToolCalls(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"search_properties","arguments":{"locality":"Wakad","transaction_type":"buy"}}}]},"done":true}`)
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{Model: "llama3.1:8b", OllamaHost: server.URL})
	completion, err := client.Complete(context.Background(), llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "2 BHK to buy in Wakad"}},
		Tools:       []llm.Tool{{Name: "search_properties", Parameters: map[string]any{"type": "object"}}},
		Temperature: llm.Temp(0.5),
		MaxTokens:   200,
	})
	require.NoError(t, err)

	require.Len(t, completion.ToolCalls, 1)
	call := completion.ToolCalls[0]
	assert.Equal(t, "search_properties", call.Name)
	assert.NotEmpty(t, call.ID)
	assert.JSONEq(t, `{"locality":"Wakad","transaction_type":"buy"}`, call.Arguments)

	tools, ok := received["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, 1)
	options, ok := received["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(200), options["num_predict"])
	assert.Equal(t, 0.5, options["temperature"])
}

func TestOllamaCompleteSendsZeroTemperature(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = nil
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"yes"},"done":true}`)
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{Model: "llama3.1:8b", OllamaHost: server.URL})
	_, err := client.Complete(context.Background(), llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "is this about property?"}},
		Temperature: llm.Temp(0),
	})
	require.NoError(t, err)

	options, ok := received["options"].(map[string]any)
	require.True(t, ok)
	temperature, ok := options["temperature"]
	require.True(t, ok)
	assert.Equal(t, float64(0), temperature)

	_, err = client.Complete(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Nil(t, received["options"])
}

func TestOllamaCompleteReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{Model: "missing", OllamaHost: server.URL})
	_, err := client.Complete(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

type failingClient struct{ calls int }

func (f *failingClient) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	f.calls++
	return llm.Completion{}, errors.New("503 service unavailable")
}

func TestGuardedWrapsFailures(t *testing.T) {
	inner := &failingClient{}
	policy := resilience.New(resilience.Settings{Name: "completion", Retries: 1}, log.New(io.Discard, "", 0))
	client := llm.NewGuarded(inner, policy)

	_, err := client.Complete(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "villas in Baner"}}})
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)

	var ext *apperr.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "villas in Baner", ext.Query)
}
