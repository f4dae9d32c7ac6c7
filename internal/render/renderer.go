// Package render turns session state into the self-contained HTML page
// served back to the caller: the transcript in a terminal-styled block
// followed by a single command form whose label is the current working
// directory.
package render

import (
	"bytes"
	"context"
	"html/template"
	"os"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/glebobos/LambdaTerminal/internal/config"
	"github.com/glebobos/LambdaTerminal/internal/logging"
	"github.com/glebobos/LambdaTerminal/internal/session"
)

const pageTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  body { margin:0; min-height:100vh; background:#0f172a; color:#e2e8f0; font-family:ui-monospace,SFMono-Regular,Menlo,Consolas,monospace; font-size:0.875rem; }
  pre  { margin:0; padding:1rem 1rem 0; white-space:pre-wrap; word-break:break-all; font:inherit; }
  form { display:flex; gap:0.5rem; padding:0.75rem 1rem; position:sticky; bottom:0; background:#0f172a; border-top:1px solid #334155; }
  label{ color:#38bdf8; white-space:nowrap; }
  input{ flex:1; background:transparent; border:none; outline:none; color:inherit; font:inherit; }
</style>
</head>
<body>
<pre id="output">{{.Transcript}}</pre>
<form method="get" action="">
  <label for="command">{{.Prompt}} $</label>
  <input id="command" name="command" type="text" autocomplete="off" spellcheck="false" autofocus>
</form>
<script>
window.scrollTo(0, document.body.scrollHeight);
document.getElementById("command").focus();
</script>
</body>
</html>`

var pageTemplate = template.Must(template.New("terminal").Parse(pageTmpl))

type page struct {
	Title      string
	Transcript template.HTML
	Prompt     string
}

// Renderer produces the terminal page for an identity. Rendering is a
// pure read: it never mutates session state.
type Renderer struct {
	store    session.Store
	title    string
	sanitize bool
	policy   *bluemonday.Policy
	logger   *logging.Logger
}

func NewRenderer(store session.Store, cfg config.RenderConfig, logger *logging.Logger) *Renderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Renderer{
		store:    store,
		title:    cfg.Title,
		sanitize: cfg.Sanitize,
		logger:   logger,
	}
	if cfg.Sanitize {
		r.policy = bluemonday.StrictPolicy()
	}
	return r
}

// Render builds the full HTML document for the identity's session.
// Transcript bytes are inserted verbatim into the preformatted block
// unless sanitization is enabled, in which case markup is stripped.
// Store read failures degrade to an empty transcript rather than a
// broken page.
func (r *Renderer) Render(ctx context.Context, identity string) (string, error) {
	transcript, err := r.store.ReadOutput(ctx, identity)
	if err != nil {
		r.logger.Warn("transcript read failed, rendering empty",
			zap.String("identity", identity),
			zap.Error(err))
		transcript = nil
	}

	wd, err := r.store.WorkingDir(ctx, identity)
	if err != nil {
		r.logger.Warn("working dir read failed, using ambient",
			zap.String("identity", identity),
			zap.Error(err))
		wd = ""
	}

	body := string(transcript)
	if r.policy != nil {
		body = r.policy.Sanitize(body)
	}

	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, page{
		Title:      r.title,
		Transcript: template.HTML(body),
		Prompt:     promptDir(wd),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// promptDir is the directory shown in the form label. A session that
// has never run a command shows the process working directory, the
// same place the next command will actually run.
func promptDir(wd string) string {
	if wd != "" {
		return wd
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "/"
}
