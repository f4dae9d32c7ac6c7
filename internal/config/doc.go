// Package config provides 12-factor configuration management for the
// terminal service.
//
// Configuration is loaded from environment variables with sensible defaults.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, connection cap)
//   - Session: store backend selection and retention policy
//   - Exec: shell binary, invocation timeout, bundled binaries dir
//   - Render: page title and transcript sanitizing
//   - Term: interactive PTY session settings
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("listening on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, SERVER_MAX_CONNS, SERVER_SHUTDOWN_TIMEOUT
//   - SESSION_BACKEND, SESSION_DIR, SESSION_SQLITE_PATH, SESSION_TTL,
//     SESSION_MAX_TRANSCRIPT_BYTES, SESSION_ARCHIVE_DIR, SESSION_SWEEP_INTERVAL
//   - EXEC_SHELL, EXEC_TIMEOUT, EXEC_BIN_DIR
//   - RENDER_TITLE, RENDER_SANITIZE
//   - TERM_SHELL, TERM_IDLE_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
package config
