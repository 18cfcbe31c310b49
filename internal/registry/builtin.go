package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
)

// RegisterBuiltins adds the built-in tool set. The provider powers the
// generate tool and may be nil in deployments that exclude it.
func RegisterBuiltins(r *Registry, provider llm.Provider) {
	r.Register(&writeFileTool{})
	r.Register(&appendFileTool{})
	r.Register(&readFileTool{})
	r.Register(&httpFetchTool{})
	if provider != nil {
		r.Register(&generateTool{provider: provider})
	}
}

type writeFileTool struct{}

func (t *writeFileTool) Spec() Spec {
	return Spec{
		Name:        "write_file",
		Description: "Write content to a file, replacing what was there",
		Params: map[string]ParamSpec{
			"path":    {Type: "string", Required: true},
			"content": {Type: "string", Required: true},
		},
		Mutating:       true,
		ResourceParam:  "path",
		TimeoutSeconds: 10,
	}
}

func (t *writeFileTool) Invoke(ctx context.Context, params map[string]interface{}) (string, error) {
	path := params["path"].(string)
	content := params["content"].(string)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

type appendFileTool struct{}

func (t *appendFileTool) Spec() Spec {
	return Spec{
		Name:        "append_file",
		Description: "Append content to the end of a file",
		Params: map[string]ParamSpec{
			"path":    {Type: "string", Required: true},
			"content": {Type: "string", Required: true},
		},
		Mutating:       true,
		ResourceParam:  "path",
		TimeoutSeconds: 10,
	}
}

func (t *appendFileTool) Invoke(ctx context.Context, params map[string]interface{}) (string, error) {
	path := params["path"].(string)
	content := params["content"].(string)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return "", err
	}
	return fmt.Sprintf("appended %d bytes to %s", len(content), path), nil
}

type readFileTool struct{}

func (t *readFileTool) Spec() Spec {
	return Spec{
		Name:        "read_file",
		Description: "Read a file's content",
		Params: map[string]ParamSpec{
			"path": {Type: "string", Required: true},
		},
		TimeoutSeconds: 10,
	}
}

func (t *readFileTool) Invoke(ctx context.Context, params map[string]interface{}) (string, error) {
	data, err := os.ReadFile(params["path"].(string))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type httpFetchTool struct{}

func (t *httpFetchTool) Spec() Spec {
	return Spec{
		Name:        "http_fetch",
		Description: "Fetch a URL and return the response body",
		Params: map[string]ParamSpec{
			"url":    {Type: "string", Required: true},
			"method": {Type: "string", Enum: []string{"GET", "HEAD"}},
		},
		NeedsCredential: true,
		TimeoutSeconds:  30,
	}
}

func (t *httpFetchTool) Invoke(ctx context.Context, params map[string]interface{}) (string, error) {
	url := params["url"].(string)
	method := http.MethodGet
	if m, ok := params["method"].(string); ok && m != "" {
		method = m
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return "", err
	}
	if secret := CredentialFrom(ctx); secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("rate limited fetching %s", url)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

type generateTool struct {
	provider llm.Provider
}

func (t *generateTool) Spec() Spec {
	return Spec{
		Name:        "generate",
		Description: "Generate or transform text with the configured model",
		Params: map[string]ParamSpec{
			"prompt": {Type: "string", Required: true},
			"input":  {Type: "string"},
		},
		TimeoutSeconds: 60,
	}
}

func (t *generateTool) Invoke(ctx context.Context, params map[string]interface{}) (string, error) {
	prompt := params["prompt"].(string)
	if input, ok := params["input"].(string); ok && input != "" {
		prompt = prompt + "\n\nINPUT:\n" + input
	}

	resp, err := t.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
