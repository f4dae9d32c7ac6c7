package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebobos/LambdaTerminal/internal/config"
	"github.com/glebobos/LambdaTerminal/internal/logging"
	"github.com/glebobos/LambdaTerminal/internal/monitoring"
	"github.com/glebobos/LambdaTerminal/internal/render"
	"github.com/glebobos/LambdaTerminal/internal/session"
	"github.com/glebobos/LambdaTerminal/internal/shell"
)

type scenarioFile struct {
	Scenarios []scenario `yaml:"scenarios"`
}

type scenario struct {
	Name     string `yaml:"name"`
	Identity string `yaml:"identity"`
	Steps    []step `yaml:"steps"`
}

type step struct {
	Command            string   `yaml:"command"`
	TranscriptContains []string `yaml:"transcript_contains"`
	TranscriptEmpty    bool     `yaml:"transcript_empty"`
	PromptContains     string   `yaml:"prompt_contains"`
}

func newTestHandler(t *testing.T, binDir string) *Handler {
	t.Helper()
	store := session.NewMemoryStore()
	logger := logging.NewNop()
	metrics := monitoring.New(prometheus.NewRegistry())
	executor := shell.NewExecutor(store, "/bin/sh", logger, metrics)
	renderer := render.NewRenderer(store, config.RenderConfig{Title: "Terminal"}, logger)
	return NewHandler(executor, renderer, binDir, logger)
}

func eventFor(identity, command string) Event {
	e := Event{
		HTTPMethod: http.MethodGet,
		Path:       "/",
	}
	if identity != "" {
		e.Headers = map[string]string{"X-Forwarded-For": identity}
	}
	if command != "" {
		e.QueryStringParameters = map[string]string{"command": command}
	}
	return e
}

func decodePage(t *testing.T, env Envelope) *goquery.Document {
	t.Helper()
	require.True(t, env.IsBase64Encoded)
	require.Equal(t, http.StatusOK, env.StatusCode)
	require.Equal(t, "text/html", env.Headers["Content-Type"])

	html, err := base64.StdEncoding.DecodeString(env.Body)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	require.NoError(t, err)
	return doc
}

func TestScenarios(t *testing.T) {
	raw, err := os.ReadFile("testdata/scenarios.yaml")
	require.NoError(t, err)

	var file scenarioFile
	require.NoError(t, yaml.Unmarshal(raw, &file))
	require.NotEmpty(t, file.Scenarios)

	for _, sc := range file.Scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			ctx := context.Background()
			h := newTestHandler(t, "")

			for i, st := range sc.Steps {
				env := h.Handle(ctx, eventFor(sc.Identity, st.Command))
				doc := decodePage(t, env)
				transcript := doc.Find("pre#output").Text()

				for _, want := range st.TranscriptContains {
					assert.Contains(t, transcript, want, "step %d: %q", i, st.Command)
				}
				if st.TranscriptEmpty {
					assert.Empty(t, strings.TrimSpace(transcript), "step %d: %q", i, st.Command)
				}
				if st.PromptContains != "" {
					assert.Contains(t, doc.Find("label").Text(), st.PromptContains,
						"step %d: %q", i, st.Command)
				}
			}
		})
	}
}

func TestIdentityExtraction(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"canonical header", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "1.2.3.4"},
		{"lowercase header", map[string]string{"x-forwarded-for": "1.2.3.4"}, "1.2.3.4"},
		{"mixed case header", map[string]string{"x-FORWARDED-for": "1.2.3.4"}, "1.2.3.4"},
		{"proxy chain keeps first hop", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1, 10.0.0.2"}, "1.2.3.4"},
		{"whitespace trimmed", map[string]string{"X-Forwarded-For": "  1.2.3.4 , proxy"}, "1.2.3.4"},
		{"ipv6 address", map[string]string{"X-Forwarded-For": "2001:db8::1"}, "2001:db8::1"},
		{"missing header", map[string]string{"Host": "example.com"}, ""},
		{"nil headers", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{Headers: tt.headers}
			assert.Equal(t, tt.expected, e.Identity())
		})
	}
}

func TestCommandDefaultsToEmpty(t *testing.T) {
	assert.Equal(t, "", Event{}.Command())
	assert.Equal(t, "ls", Event{QueryStringParameters: map[string]string{"command": "ls"}}.Command())
}

func TestEnvelopeWireShape(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t, "")

	raw, err := h.HandleRaw(ctx, []byte(`{"httpMethod":"GET","path":"/","headers":{"X-Forwarded-For":"1.2.3.4"},"queryStringParameters":{"command":"echo hi"}}`))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, sonic.Unmarshal(raw, &decoded))

	assert.Equal(t, true, decoded["isBase64Encoded"])
	assert.Equal(t, float64(http.StatusOK), decoded["statusCode"])
	headers, ok := decoded["headers"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "text/html", headers["Content-Type"])

	body, ok := decoded["body"].(string)
	require.True(t, ok)
	html, err := base64.StdEncoding.DecodeString(body)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<form")
}

func TestHandleRawUndecodablePayload(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t, "")

	raw, err := h.HandleRaw(ctx, []byte("{this is not json"))
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, sonic.Unmarshal(raw, &env))
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.True(t, env.IsBase64Encoded)
}

func TestIdentitiesRenderSeparatePages(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t, "")

	h.Handle(ctx, eventFor("1.2.3.4", "echo alpha"))
	h.Handle(ctx, eventFor("5.6.7.8", "echo beta"))

	docA := decodePage(t, h.Handle(ctx, eventFor("1.2.3.4", "")))
	docB := decodePage(t, h.Handle(ctx, eventFor("5.6.7.8", "")))

	assert.Contains(t, docA.Find("pre#output").Text(), "alpha")
	assert.NotContains(t, docA.Find("pre#output").Text(), "beta")
	assert.Contains(t, docB.Find("pre#output").Text(), "beta")
	assert.NotContains(t, docB.Find("pre#output").Text(), "alpha")
}

func TestBundledBinariesDirJoinsPath(t *testing.T) {
	// Snapshot PATH so the cleanup registered by t.Setenv restores it.
	t.Setenv("PATH", os.Getenv("PATH"))

	binDir := t.TempDir()
	h := newTestHandler(t, binDir)

	h.Handle(context.Background(), Event{})

	dirs := strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))
	require.NotEmpty(t, dirs)
	assert.Equal(t, binDir, dirs[0], "bin dir should be prepended to PATH")
}
