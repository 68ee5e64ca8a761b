// Package llm provides a client for the generative AI completion provider.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"daily-grocer-go/internal/config"

	"github.com/gorilla/websocket"
)

// 供调用方区分的失败类别：凭证缺失/无效属于致命配置问题，
// 配额耗尽可由调用方稍后重试，其余归为一般失败。
var (
	ErrMissingAPIKey = errors.New("llm: api key is not configured")
	ErrAuth          = errors.New("llm: provider rejected credentials")
	ErrQuota         = errors.New("llm: provider quota exceeded")
)

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and an interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for the completion provider client.
type Client interface {
	// GenerateContent 以完整 prompt 同步调用生成接口，返回完整回复文本。
	GenerateContent(ctx context.Context, prompt string) (string, error)
	// StreamGenerateContent 以 SSE 流式调用生成接口，并将分块写入 writer。
	StreamGenerateContent(ctx context.Context, prompt string, writer MessageWriter) error
}

type geminiClient struct {
	cfg    config.GeminiConfig
	client *http.Client
}

// NewClient creates a new client for the Gemini generateContent API.
func NewClient(cfg config.GeminiConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &geminiClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateContent calls the Gemini generateContent endpoint and returns the full reply.
func (c *geminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	reqBytes, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call generate api: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	return joinParts(out), nil
}

// StreamGenerateContent calls the streaming endpoint and writes each text chunk to writer.
func (c *geminiClient) StreamGenerateContent(ctx context.Context, prompt string, writer MessageWriter) error {
	if c.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}

	reqBytes, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call generate api: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "[DONE]" {
			break
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		text := joinParts(chunk)
		if text == "" {
			continue
		}
		if err := writer.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			return fmt.Errorf("failed to write chunk: %w", err)
		}
	}
	return nil
}

// classifyStatus 将非 200 响应翻译为错误分类，正文细节只进日志不进错误链。
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %s", ErrAuth, resp.Status)
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(body, "API key"):
		// Gemini 对非法密钥返回 400 且正文包含 "API key not valid"
		return fmt.Errorf("%w: status %s", ErrAuth, resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %s", ErrQuota, resp.Status)
	default:
		return fmt.Errorf("generate api returned non-200 status: %s, body: %s", resp.Status, body)
	}
}

func joinParts(r generateResponse) string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
