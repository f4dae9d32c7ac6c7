package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/glebobos/LambdaTerminal/internal/logging"
	"github.com/glebobos/LambdaTerminal/internal/monitoring"
)

// JanitorConfig controls background session maintenance. Zero TTL and zero
// MaxTranscript disable their respective passes; with both disabled the
// janitor never starts a goroutine.
type JanitorConfig struct {
	TTL           time.Duration
	MaxTranscript int64
	ArchiveDir    string
	Interval      time.Duration
}

// Janitor prunes idle sessions and trims oversized transcripts on a
// ticker. Bytes it removes are gzip-archived when an archive dir is set,
// so transcripts bounded for space are not lost for debugging.
type Janitor struct {
	store   Store
	cfg     JanitorConfig
	logger  *logging.Logger
	metrics *monitoring.Metrics

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewJanitor creates a janitor over the given store.
func NewJanitor(store Store, cfg JanitorConfig, logger *logging.Logger, metrics *monitoring.Metrics) *Janitor {
	return &Janitor{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the sweep loop when there is work configured.
func (j *Janitor) Start() {
	if j.cfg.Interval <= 0 || (j.cfg.TTL <= 0 && j.cfg.MaxTranscript <= 0) {
		close(j.done)
		return
	}
	go j.run()
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	<-j.done
}

func (j *Janitor) run() {
	defer close(j.done)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			pruned, trimmed, err := j.Sweep(context.Background())
			if err != nil {
				j.logger.Warn("janitor sweep failed", zap.Error(err))
				continue
			}
			if pruned+trimmed > 0 {
				j.logger.Info("janitor sweep",
					zap.Int("pruned", pruned),
					zap.Int("trimmed", trimmed),
				)
			}
		}
	}
}

// Sweep runs one maintenance pass and reports how many sessions were
// pruned and how many transcripts trimmed.
func (j *Janitor) Sweep(ctx context.Context) (pruned, trimmed int, err error) {
	entries, err := j.store.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("janitor list: %w", err)
	}

	now := time.Now()
	for _, e := range entries {
		if j.cfg.TTL > 0 && now.Sub(e.UpdatedAt) > j.cfg.TTL {
			if j.cfg.ArchiveDir != "" {
				if data, rerr := j.store.ReadOutput(ctx, e.Identity); rerr == nil && len(data) > 0 {
					if aerr := j.archive(e.Identity, data); aerr != nil {
						j.logger.Warn("archive before prune failed",
							zap.String("identity", e.Identity), zap.Error(aerr))
					}
				}
			}
			if rerr := j.store.Remove(ctx, e.Identity); rerr != nil {
				j.logger.Warn("prune failed", zap.String("identity", e.Identity), zap.Error(rerr))
				continue
			}
			pruned++
			continue
		}

		if j.cfg.MaxTranscript > 0 && e.Size > j.cfg.MaxTranscript {
			removed, terr := j.store.TrimOutput(ctx, e.Identity, j.cfg.MaxTranscript)
			if terr != nil {
				j.logger.Warn("trim failed", zap.String("identity", e.Identity), zap.Error(terr))
				continue
			}
			if len(removed) > 0 {
				trimmed++
				if j.cfg.ArchiveDir != "" {
					if aerr := j.archive(e.Identity, removed); aerr != nil {
						j.logger.Warn("archive trimmed bytes failed",
							zap.String("identity", e.Identity), zap.Error(aerr))
					}
				}
			}
		}
	}

	if j.metrics != nil {
		j.metrics.RecordSweep(pruned, trimmed)
		j.metrics.SessionsActive.Set(float64(len(entries) - pruned))
	}
	return pruned, trimmed, nil
}

// archive gzips removed transcript bytes to the archive dir.
func (j *Janitor) archive(identity string, data []byte) error {
	if err := os.MkdirAll(j.cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	name := Key(identity) + "-" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".gz"
	f, err := os.Create(filepath.Join(j.cfg.ArchiveDir, name))
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		f.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return fmt.Errorf("flush archive: %w", err)
	}
	return f.Close()
}
