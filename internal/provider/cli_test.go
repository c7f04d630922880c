package provider

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCLIProviderEchoesStdin(t *testing.T) {
	requireShell(t)
	p := NewCLI("sh", "-c", "printf 'got: '; cat")

	got, err := p.Complete(context.Background(), Request{Model: "m", System: "sys", User: "hi"})
	require.NoError(t, err)
	assert.Contains(t, got, "got: {")
	assert.Contains(t, got, `"user":"hi"`)
	assert.Contains(t, got, `"max_tokens":150`)
}

func TestCLIProviderParsesJSONAfterLogs(t *testing.T) {
	requireShell(t)
	p := NewCLI("sh", "-c", `cat >/dev/null; echo "starting"; echo '{"result":{"payloads":[{"text":"one"},{"text":" two "}]}}'`)

	got, err := p.Complete(context.Background(), Request{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", got)
}

func TestCLIProviderPlainText(t *testing.T) {
	requireShell(t)
	p := NewCLI("sh", "-c", `cat >/dev/null; echo "  just words  "`)

	got, err := p.Complete(context.Background(), Request{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "just words", got)
}

func TestCLIProviderFailure(t *testing.T) {
	requireShell(t)
	p := NewCLI("sh", "-c", `cat >/dev/null; echo "boom" >&2; exit 3`)

	_, err := p.Complete(context.Background(), Request{User: "hi"})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "cli", perr.Provider)
	assert.Contains(t, err.Error(), "boom")
}

func TestParseCLIReply(t *testing.T) {
	text, ok := parseCLIReply(`{"output":"done"}`)
	require.True(t, ok)
	assert.Equal(t, "done", text)

	_, ok = parseCLIReply("no json here")
	assert.False(t, ok)
}
