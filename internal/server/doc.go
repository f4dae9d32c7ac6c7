// Package server provides HTTP server setup and initialization.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (request IDs, metrics, CORS, recovery)
//   - Session store selection (filesystem, memory or SQLite)
//   - Command executor, page renderer and invocation handler
//   - PTY session manager and WebSocket attachment
//   - Transcript janitor for retention and size caps
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger (production or development)
//  3. Open the configured session store
//  4. Start the janitor and terminal manager
//  5. Setup HTTP routes and middleware
//  6. Serve on a connection-capped listener
//  7. Graceful shutdown on signal
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
