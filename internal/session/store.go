package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry describes one identity's stored state, as reported by List.
type Entry struct {
	Identity   string    `json:"identity"`
	WorkingDir string    `json:"working_dir"`
	Size       int64     `json:"size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists per-identity terminal state: the last working directory
// and the append-only transcript. Reads of missing state return zero
// values, never errors; errors are reserved for real backend failures.
//
// AppendOutput must be atomic at the granularity of one block: concurrent
// appends may order either way but never interleave mid-block. Working
// directory writes are last-writer-wins. Empty appends are no-ops.
type Store interface {
	WorkingDir(ctx context.Context, identity string) (string, error)
	SetWorkingDir(ctx context.Context, identity, dir string) error

	AppendOutput(ctx context.Context, identity string, block []byte) error
	ClearOutput(ctx context.Context, identity string) error
	ReadOutput(ctx context.Context, identity string) ([]byte, error)

	// Management surface used by the janitor and admin endpoints.
	List(ctx context.Context) ([]Entry, error)
	Remove(ctx context.Context, identity string) error
	TrimOutput(ctx context.Context, identity string, max int64) ([]byte, error)
}

// maxVerbatimKey bounds keys kept verbatim; longer or unsafe identities
// are hashed. Hashed keys are 65 bytes, so the two forms never collide.
const maxVerbatimKey = 64

// Key maps a caller-supplied identity to a safe storage key. Identities
// made of host-address characters pass through unchanged so operators can
// find them; anything else becomes h<sha256 hex>. A string that already
// has the hashed form is treated as a key, which lets admin calls address
// sessions exactly as List reports them. Identity is self-asserted by the
// transport, so this adds no spoofing power callers do not already have.
func Key(identity string) string {
	if isHashedKey(identity) {
		return identity
	}
	if identity != "" && len(identity) <= maxVerbatimKey && isSafeKey(identity) {
		return identity
	}
	sum := sha256.Sum256([]byte(identity))
	return "h" + hex.EncodeToString(sum[:])
}

func isSafeKey(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-' || c == ':':
		default:
			return false
		}
	}
	return true
}

func isHashedKey(s string) bool {
	if len(s) != 1+sha256.Size*2 || s[0] != 'h' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
