package server

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/glebobos/LambdaTerminal/internal/handler"
	"github.com/glebobos/LambdaTerminal/internal/session"
)

// handleTerminal serves the terminal page. The request is translated
// into the invocation event shape, handled, and the envelope body is
// decoded back into HTML for the browser.
func (s *Server) handleTerminal(c *gin.Context) {
	ctx, cancel := s.execContext(c)
	defer cancel()

	env := s.handler.Handle(ctx, s.eventFromRequest(c))

	html, err := base64.StdEncoding.DecodeString(env.Body)
	if err != nil {
		s.logger.Error("envelope body decode failed", zap.Error(err))
		html = nil
	}
	c.Data(env.StatusCode, "text/html; charset=utf-8", html)
}

// handleInvoke accepts a raw invocation event and returns the
// envelope unchanged, the same exchange a hosting platform performs.
func (s *Server) handleInvoke(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		raw = nil
	}

	ctx, cancel := s.execContext(c)
	defer cancel()

	out, err := s.handler.HandleRaw(ctx, raw)
	if err != nil {
		s.logger.Error("envelope encode failed", zap.Error(err))
		c.JSON(http.StatusOK, handler.Envelope{
			IsBase64Encoded: true,
			StatusCode:      http.StatusOK,
			Headers:         map[string]string{"Content-Type": "text/html"},
		})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// handleHealth returns service health status.
func (s *Server) handleHealth(c *gin.Context) {
	entries, err := s.store.List(c.Request.Context())
	if err != nil {
		s.metrics.RecordStoreError("list")
	}
	s.metrics.UpdateUptime()

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"backend":   s.config.Session.Backend,
		"sessions":  len(entries),
		"terminals": len(s.terms.List()),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	s.metrics.UpdateUptime()
	s.metricsHTTP.ServeHTTP(c.Writer, c.Request)
}

// handleListSessions lists every stored session plus any live
// terminal attached to one.
func (s *Server) handleListSessions(c *gin.Context) {
	entries, err := s.store.List(c.Request.Context())
	if err != nil {
		s.metrics.RecordStoreError("list")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions":  entries,
		"count":     len(entries),
		"terminals": s.terms.List(),
	})
}

// handleTranscript downloads an identity's raw transcript bytes.
// The content type is sniffed because command output is arbitrary
// data, not necessarily text.
func (s *Server) handleTranscript(c *gin.Context) {
	identity := c.Param("identity")

	data, err := s.store.ReadOutput(c.Request.Context(), identity)
	if err != nil {
		s.metrics.RecordStoreError("read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read transcript"})
		return
	}

	contentType := "text/plain; charset=utf-8"
	if len(data) > 0 {
		contentType = mimetype.Detect(data).String()
	}

	c.Header("Content-Disposition", `attachment; filename="`+session.Key(identity)+`.transcript"`)
	c.Data(http.StatusOK, contentType, data)
}

// handleRemoveSession drops an identity's stored state and kills its
// live terminal, if any.
func (s *Server) handleRemoveSession(c *gin.Context) {
	identity := c.Param("identity")

	s.terms.Kill(identity)

	if err := s.store.Remove(c.Request.Context(), identity); err != nil {
		s.metrics.RecordStoreError("remove")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "removed",
		"identity": identity,
	})
}

// eventFromRequest maps an HTTP request onto the invocation event
// shape. When no forwarded address arrived the peer address stands
// in, the same thing a fronting proxy would have inserted.
func (s *Server) eventFromRequest(c *gin.Context) handler.Event {
	headers := make(map[string]string, len(c.Request.Header))
	for name, values := range c.Request.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	if _, ok := headers["X-Forwarded-For"]; !ok {
		headers["X-Forwarded-For"] = c.ClientIP()
	}

	query := make(map[string]string)
	for name, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	return handler.Event{
		HTTPMethod:            c.Request.Method,
		Path:                  c.Request.URL.Path,
		Headers:               headers,
		QueryStringParameters: query,
	}
}

// execContext bounds command execution. The hosting platform's
// invocation timeout plays this role when the handler runs behind
// one; standalone, the server enforces it here.
func (s *Server) execContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if t := s.config.Exec.Timeout; t > 0 {
		return context.WithTimeout(c.Request.Context(), t)
	}
	return c.Request.Context(), func() {}
}
