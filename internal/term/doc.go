// Package term provides live PTY sessions over the same transcripts
// the request endpoint writes to.
//
// Each identity gets at most one shell process with a pseudo-terminal
// attached. The shell starts in the identity's last recorded working
// directory, and everything it prints is appended to the identity's
// transcript, so the stateless page and a live attachment show the
// same history.
//
// Features:
//   - One PTY-backed shell per identity, shared by all attachments
//   - Output mirrored into the persistent transcript
//   - Fan-out to any number of attached subscribers
//   - Terminal resizing
//   - Idle sessions reaped after a configurable timeout
//
// Lifecycle:
//   - Attach spawns the shell on first use and joins it afterwards
//   - The exit monitor finalizes a session exactly once, whether the
//     shell exited on its own, was killed, or was reaped
package term
