package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"daily-grocer-go/internal/config"
)

func testClient(baseURL, key string) Client {
	return NewClient(config.GeminiConfig{
		APIKey:         key,
		BaseURL:        baseURL,
		Model:          "gemini-1.5-flash",
		TimeoutSeconds: 5,
	})
}

func TestGenerateContentMissingKey(t *testing.T) {
	c := testClient("http://localhost:0", "")
	_, err := c.GenerateContent(context.Background(), "hello")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGenerateContentJoinsCandidateParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("expected api key in query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Fresh "},{"text":"apples"}]}}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, "test-key")
	got, err := c.GenerateContent(context.Background(), "hello")
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if got != "Fresh apples" {
		t.Fatalf("expected joined parts, got %q", got)
	}
}

func TestGenerateContentErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, ErrAuth},
		{"forbidden", http.StatusForbidden, `{}`, ErrAuth},
		{"bad key", http.StatusBadRequest, `{"error":{"message":"API key not valid"}}`, ErrAuth},
		{"quota", http.StatusTooManyRequests, `{}`, ErrQuota},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := testClient(srv.URL, "test-key")
			_, err := c.GenerateContent(context.Background(), "hello")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestGenerateContentGenericFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, "test-key")
	_, err := c.GenerateContent(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrQuota) || errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("500 should not map to a known class, got %v", err)
	}
}

type chunkRecorder struct {
	chunks []string
}

func (c *chunkRecorder) WriteMessage(messageType int, data []byte) error {
	c.chunks = append(c.chunks, string(data))
	return nil
}

func TestStreamGenerateContentWritesChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hello\"}]}}]}\n"))
		_, _ = w.Write([]byte("\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\" there\"}]}}]}\n"))
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	c := testClient(srv.URL, "test-key")
	rec := &chunkRecorder{}
	if err := c.StreamGenerateContent(context.Background(), "hello", rec); err != nil {
		t.Fatalf("StreamGenerateContent: %v", err)
	}
	if len(rec.chunks) != 2 || rec.chunks[0] != "Hello" || rec.chunks[1] != " there" {
		t.Fatalf("unexpected chunks: %v", rec.chunks)
	}
}
