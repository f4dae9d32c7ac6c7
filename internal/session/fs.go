package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charlievieth/fastwalk"
)

const (
	cwdSuffix        = ".cwd"
	transcriptSuffix = ".transcript"
)

// FSStore keeps per-identity state in flat files under a root directory:
// <key>.cwd holds the last working directory, <key>.transcript the raw
// output log. This matches scratch-storage hosting where the directory
// survives between invocations but not forever.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns the store.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the backing directory.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) cwdPath(identity string) string {
	return filepath.Join(s.root, Key(identity)+cwdSuffix)
}

func (s *FSStore) transcriptPath(identity string) string {
	return filepath.Join(s.root, Key(identity)+transcriptSuffix)
}

// WorkingDir returns the recorded working directory, or "" when unset.
func (s *FSStore) WorkingDir(ctx context.Context, identity string) (string, error) {
	data, err := os.ReadFile(s.cwdPath(identity))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read working dir: %w", err)
	}
	return string(data), nil
}

// SetWorkingDir records the working directory. The write goes through a
// temp file and rename so readers never observe a torn value.
func (s *FSStore) SetWorkingDir(ctx context.Context, identity, dir string) error {
	path := s.cwdPath(identity)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(dir), 0o644); err != nil {
		return fmt.Errorf("write working dir: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit working dir: %w", err)
	}
	return nil
}

// AppendOutput appends one block to the transcript. O_APPEND plus a single
// write keeps concurrent blocks from interleaving.
func (s *FSStore) AppendOutput(ctx context.Context, identity string, block []byte) error {
	if len(block) == 0 {
		return nil
	}
	f, err := os.OpenFile(s.transcriptPath(identity), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	_, werr := f.Write(block)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("append transcript: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close transcript: %w", cerr)
	}
	return nil
}

// ClearOutput truncates the transcript. Missing transcripts are already
// clear, so this is idempotent.
func (s *FSStore) ClearOutput(ctx context.Context, identity string) error {
	err := os.Truncate(s.transcriptPath(identity), 0)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear transcript: %w", err)
	}
	return nil
}

// ReadOutput returns the full transcript, or nil when absent.
func (s *FSStore) ReadOutput(ctx context.Context, identity string) ([]byte, error) {
	data, err := os.ReadFile(s.transcriptPath(identity))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return data, nil
}

// List walks the root and merges the per-key file pair into entries.
// Identities that were stored under a hashed key are reported as that key.
func (s *FSStore) List(ctx context.Context) ([]Entry, error) {
	byKey := make(map[string]*Entry)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p == s.root {
				return nil
			}
			return filepath.SkipDir
		}

		name := d.Name()
		var key string
		switch {
		case strings.HasSuffix(name, cwdSuffix):
			key = strings.TrimSuffix(name, cwdSuffix)
		case strings.HasSuffix(name, transcriptSuffix):
			key = strings.TrimSuffix(name, transcriptSuffix)
		default:
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}

		e := byKey[key]
		if e == nil {
			e = &Entry{Identity: key}
			byKey[key] = e
		}
		if strings.HasSuffix(name, transcriptSuffix) {
			e.Size = info.Size()
		} else if data, rerr := os.ReadFile(p); rerr == nil {
			e.WorkingDir = string(data)
		}
		if info.ModTime().After(e.UpdatedAt) {
			e.UpdatedAt = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	entries := make([]Entry, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Identity < entries[j].Identity })
	return entries, nil
}

// Remove deletes all state for an identity.
func (s *FSStore) Remove(ctx context.Context, identity string) error {
	for _, path := range []string{s.cwdPath(identity), s.transcriptPath(identity)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove session file: %w", err)
		}
	}
	return nil
}

// TrimOutput cuts the transcript down to its newest max bytes and returns
// the removed prefix. A concurrent append between read and rename loses
// that block; the janitor is the only caller and tolerates it.
func (s *FSStore) TrimOutput(ctx context.Context, identity string, max int64) ([]byte, error) {
	path := s.transcriptPath(identity)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	if int64(len(data)) <= max {
		return nil, nil
	}

	cut := int64(len(data)) - max
	removed := make([]byte, cut)
	copy(removed, data[:cut])

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data[cut:], 0o644); err != nil {
		return nil, fmt.Errorf("write trimmed transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("commit trimmed transcript: %w", err)
	}
	return removed, nil
}
