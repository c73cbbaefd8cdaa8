package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiReply(w http.ResponseWriter, text string) {
	json.NewEncoder(w).Encode(geminiResponse{
		Candidates: []geminiCandidate{
			{Content: geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}}},
		},
		UsageMetadata: geminiUsage{PromptTokenCount: 8, CandidatesTokenCount: 12},
	})
}

func TestGoogleProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing or wrong API key header")
		}

		var req geminiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) != 1 || req.Contents[0].Role != "user" {
			t.Errorf("contents = %+v", req.Contents)
		}

		geminiReply(w, " Resumen del tema. ")
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL+"/"))

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Resumen del tema." {
		t.Errorf("content = %q, want trimmed text", resp.Content)
	}
	if resp.TotalTokens() != 20 {
		t.Errorf("TotalTokens() = %d, want 20", resp.TotalTokens())
	}
}

func TestGoogleProvider_Complete_RoleMappings(t *testing.T) {
	var received geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		geminiReply(w, "ok")
	}))
	defer server.Close()

	provider := NewGoogleProvider("k", WithGoogleBaseURL(server.URL))
	_, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "q"},
			{Role: "assistant", Content: "a"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if received.SystemInstruction == nil || received.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("systemInstruction = %+v", received.SystemInstruction)
	}
	if len(received.Contents) != 2 {
		t.Fatalf("contents = %d, want 2 (system is not a content role)", len(received.Contents))
	}
	if received.Contents[1].Role != "model" {
		t.Errorf("assistant role mapped to %q, want model", received.Contents[1].Role)
	}
}

func TestGoogleProvider_Complete_ModelOverride(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		geminiReply(w, "ok")
	}))
	defer server.Close()

	provider := NewGoogleProvider("k", WithGoogleBaseURL(server.URL), WithGoogleModel("gemini-2.5-pro"))
	if _, err := provider.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "q"}}}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(path, "gemini-2.5-pro") {
		t.Errorf("path = %s, want configured model", path)
	}
}

func TestGoogleProvider_Complete_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("k", WithGoogleBaseURL(server.URL))
	_, err := provider.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "q"}}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestGoogleProvider_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("bad", WithGoogleBaseURL(server.URL))
	_, err := provider.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "q"}}})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v, want status 403", err)
	}
}

func TestGoogleProvider_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %s, want /models", r.URL.Path)
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("k", WithGoogleBaseURL(server.URL))
	if err := provider.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
