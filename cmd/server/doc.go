// Package main is the entry point for the terminal server.
//
// The server emulates an interactive shell session over stateless
// HTTP: each request carries one command and a caller identity, the
// command runs in the caller's last-known working directory, and the
// response is an HTML page showing the accumulated transcript with an
// input form for the next command.
//
// The server provides:
//   - The terminal page endpoint and the raw invocation endpoint
//   - WebSocket attachment to live PTY sessions
//   - Session administration (list, download, remove)
//   - Prometheus metrics and health checks
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# File-backed sessions on port 8080
//	./server
//
//	# In-memory sessions on another port
//	./server -port 9000 -backend memory
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
