package blueprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	completionsEndpoint = "https://api.openai.com/v1/chat/completions"
	requestTimeout      = 2 * time.Minute
	defaultModel        = "gpt-3.5-turbo"
	temperature         = 0.85
	maxTokens           = 1000
)

// OpenAIGenerator produces blueprints with the chat completions API.
type OpenAIGenerator struct {
	apiKey     string
	model      string
	endpoint   string
	reqTimeout time.Duration
	httpClient *http.Client
}

func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = defaultModel
	}
	return &OpenAIGenerator{
		apiKey:     apiKey,
		model:      model,
		endpoint:   completionsEndpoint,
		reqTimeout: requestTimeout,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, r Request) (string, error) {
	if err := g.ensureAPIKey(); err != nil {
		return "", err
	}

	payload := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "user", "content": Prompt(r)},
		},
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, buf)
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", g.decodeAPIError(resp)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", errors.New("no blueprint returned")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) do(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), g.reqTimeout)
	req = req.WithContext(ctx)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	resp.Body = cancelOnClose{resp.Body, cancel}
	return resp, nil
}

// cancelOnClose releases the request context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (g *OpenAIGenerator) decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)

	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("openai api error: status %d type %s message %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}

	return fmt.Errorf("openai api error: status %d body %s", resp.StatusCode, string(body))
}

func (g *OpenAIGenerator) ensureAPIKey() error {
	if strings.TrimSpace(g.apiKey) == "" {
		return errors.New("openai api key is not configured")
	}
	return nil
}
