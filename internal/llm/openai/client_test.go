package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"FinMitra/internal/llm"
)

func completionResponse(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + mustQuote(content) + `}}]}`
}

func mustQuote(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
	if _, err := NewClient(Config{APIKey: "   "}); err == nil {
		t.Fatal("expected error for blank API key")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{APIKey: "key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.baseURL != defaultBaseURL {
		t.Fatalf("baseURL = %q", client.baseURL)
	}
	if client.Model() != defaultModelName {
		t.Fatalf("model = %q", client.Model())
	}
}

func TestGenerateSendsChatCompletionRequest(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var authHeader, path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse("  Allocate 20% to SIPs.  ")))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "secret", BaseURL: server.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	output, err := client.Generate(context.Background(), llm.Request{
		System: "You are an advisor.",
		Prompt: "Make a plan.",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if output != "Allocate 20% to SIPs." {
		t.Fatalf("output = %q, want trimmed content", output)
	}
	if authHeader != "Bearer secret" {
		t.Fatalf("authorization = %q", authHeader)
	}
	if path != "/chat/completions" {
		t.Fatalf("path = %q", path)
	}
	if captured.Model != "test-model" {
		t.Fatalf("model = %q", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("messages = %d, want system plus user", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Fatalf("roles = %s, %s", captured.Messages[0].Role, captured.Messages[1].Role)
	}
}

func TestGenerateOmitsEmptySystemMessage(t *testing.T) {
	var messageCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []json.RawMessage `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		messageCount = len(body.Messages)
		_, _ = w.Write([]byte(completionResponse("ok")))
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	if _, err := client.Generate(context.Background(), llm.Request{Prompt: "hello"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if messageCount != 1 {
		t.Fatalf("messages = %d, want 1", messageCount)
	}
}

func TestGenerateUpstreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "rate limit exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	_, err := client.Generate(context.Background(), llm.Request{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("error missing status: %v", err)
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("error missing body excerpt: %v", err)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	if _, err := client.Generate(context.Background(), llm.Request{Prompt: "hello"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestGenerateEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completionResponse("   ")))
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	if _, err := client.Generate(context.Background(), llm.Request{Prompt: "hello"}); err == nil {
		t.Fatal("expected error for blank content")
	}
}

func TestGenerateHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Generate(ctx, llm.Request{Prompt: "hello"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
