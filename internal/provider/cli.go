package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// CLI runs a local command per completion. The command receives the same
// JSON document as the HTTP provider on stdin and answers on stdout with
// plain text or a JSON object, possibly preceded by log lines.
type CLI struct {
	path string
	args []string
}

func NewCLI(path string, args ...string) *CLI {
	return &CLI{path: strings.TrimSpace(path), args: args}
}

func (p *CLI) ID() string                   { return "cli" }
func (p *CLI) DisplayName() string          { return "CLI" }
func (p *CLI) SuggestedAlternative() string { return "GPT-4o" }

func (p *CLI) Complete(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(httpRequest{
		Model:     req.Model,
		System:    req.System,
		User:      req.User,
		MaxTokens: maxTokens(req),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.path, p.args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// CommandContext reports "signal: killed" rather than the context error.
			return "", ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail != "" {
			return "", &Error{Provider: p.ID(), Err: fmt.Errorf("command failed: %w: %s", err, detail)}
		}
		return "", &Error{Provider: p.ID(), Err: fmt.Errorf("command failed: %w", err)}
	}

	if text, ok := parseCLIReply(stdout.String()); ok && text != "" {
		return text, nil
	}
	return strings.TrimSpace(stdout.String()), nil
}

// parseCLIReply reads the last JSON object in raw. A "payloads" array, at
// the top level or under "result", has its text fields joined by newlines.
func parseCLIReply(raw string) (string, bool) {
	obj, ok := lastJSONObject(raw)
	if !ok {
		return "", false
	}

	payloads := objectArray(obj["payloads"])
	if len(payloads) == 0 {
		if result, ok := obj["result"].(map[string]any); ok {
			payloads = objectArray(result["payloads"])
		}
	}
	if len(payloads) == 0 {
		return strings.TrimSpace(extractText(obj)), true
	}

	parts := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		if text := strings.TrimSpace(extractText(payload)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), true
}

func objectArray(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func lastJSONObject(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj, true
	}
	if start := strings.LastIndex(raw, "\n{"); start >= 0 {
		if err := json.Unmarshal([]byte(raw[start+1:]), &obj); err == nil {
			return obj, true
		}
	}
	if brace := strings.LastIndex(raw, "{"); brace >= 0 {
		if err := json.Unmarshal([]byte(raw[brace:]), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}
