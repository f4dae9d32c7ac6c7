// Package handler implements the single terminal endpoint: it pulls
// identity and command out of an invocation event, drives the
// executor, and wraps the rendered page in the transport envelope.
package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/glebobos/LambdaTerminal/internal/logging"
	"github.com/glebobos/LambdaTerminal/internal/render"
	"github.com/glebobos/LambdaTerminal/internal/shell"
)

// Handler ties the executor and renderer together behind the
// invocation contract. It is safe for concurrent use.
type Handler struct {
	executor *shell.Executor
	renderer *render.Renderer
	binDir   string
	logger   *logging.Logger
	pathOnce sync.Once
}

func NewHandler(executor *shell.Executor, renderer *render.Renderer, binDir string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Handler{
		executor: executor,
		renderer: renderer,
		binDir:   binDir,
		logger:   logger,
	}
}

// Handle processes one invocation end to end. It never reports
// failure to the caller: execution and render errors are logged,
// folded into the transcript or an empty body, and the envelope
// stays a 200 with base64 HTML.
func (h *Handler) Handle(ctx context.Context, event Event) Envelope {
	h.ensurePath()

	identity := event.Identity()
	command := event.Command()

	h.logger.Debug("invocation",
		zap.String("identity", identity),
		zap.Int("command_len", len(command)))

	if err := h.executor.Execute(ctx, identity, command); err != nil {
		h.logger.Error("command execution failed",
			zap.String("identity", identity),
			zap.Error(err))
	}

	html, err := h.renderer.Render(ctx, identity)
	if err != nil {
		h.logger.Error("render failed",
			zap.String("identity", identity),
			zap.Error(err))
		html = ""
	}

	return Envelope{
		IsBase64Encoded: true,
		StatusCode:      http.StatusOK,
		Headers:         map[string]string{"Content-Type": "text/html"},
		Body:            base64.StdEncoding.EncodeToString([]byte(html)),
	}
}

// HandleRaw decodes a raw event payload, handles it, and re-encodes
// the envelope. An undecodable payload is treated as an empty event
// so the caller still receives a well-formed page.
func (h *Handler) HandleRaw(ctx context.Context, raw []byte) ([]byte, error) {
	var event Event
	if err := sonic.Unmarshal(raw, &event); err != nil {
		h.logger.Warn("undecodable event payload", zap.Error(err))
		event = Event{}
	}
	return sonic.Marshal(h.Handle(ctx, event))
}

// ensurePath puts the bundled-binaries directory at the front of PATH
// so bundled tools shadow system ones. PATH is process-global, so this
// runs once no matter how many invocations arrive.
func (h *Handler) ensurePath() {
	h.pathOnce.Do(func() {
		if h.binDir == "" {
			return
		}
		path := os.Getenv("PATH")
		for _, dir := range filepath.SplitList(path) {
			if dir == h.binDir {
				return
			}
		}
		if err := os.Setenv("PATH", h.binDir+string(os.PathListSeparator)+path); err != nil {
			h.logger.Warn("failed to extend PATH",
				zap.String("dir", h.binDir),
				zap.Error(err))
		}
	})
}
