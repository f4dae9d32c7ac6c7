package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Record is the GORM model for one identity's state.
type Record struct {
	Key        string `gorm:"primaryKey"`
	Identity   string
	WorkingDir string
	Transcript []byte
	UpdatedAt  time.Time
}

// TableName pins the table name.
func (Record) TableName() string { return "sessions" }

// SQLiteStore persists sessions in a single SQLite database. It survives
// process restarts even when the scratch directory does not, at the cost
// of serializing writes through the database file.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. WAL mode
// and the busy timeout ride on the DSN so every pooled connection gets them.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // SQLite admits one writer at a time

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) WorkingDir(ctx context.Context, identity string) (string, error) {
	var rec Record
	err := s.db.WithContext(ctx).Select("working_dir").First(&rec, "key = ?", Key(identity)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read working dir: %w", err)
	}
	return rec.WorkingDir, nil
}

func (s *SQLiteStore) SetWorkingDir(ctx context.Context, identity, dir string) error {
	rec := Record{
		Key:        Key(identity),
		Identity:   identity,
		WorkingDir: dir,
		UpdatedAt:  time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"identity", "working_dir", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("write working dir: %w", err)
	}
	return nil
}

// AppendOutput concatenates the block onto the stored transcript inside a
// transaction, creating the row on first output.
func (s *SQLiteStore) AppendOutput(ctx context.Context, identity string, block []byte) error {
	if len(block) == 0 {
		return nil
	}

	key := Key(identity)
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			"UPDATE sessions SET transcript = COALESCE(transcript, x'') || ?, updated_at = ? WHERE key = ?",
			block, now, key,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Create(&Record{
				Key:        key,
				Identity:   identity,
				Transcript: block,
				UpdatedAt:  now,
			}).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearOutput(ctx context.Context, identity string) error {
	res := s.db.WithContext(ctx).Exec(
		"UPDATE sessions SET transcript = x'', updated_at = ? WHERE key = ?",
		time.Now(), Key(identity),
	)
	if res.Error != nil {
		return fmt.Errorf("clear transcript: %w", res.Error)
	}
	return nil
}

func (s *SQLiteStore) ReadOutput(ctx context.Context, identity string) ([]byte, error) {
	var rec Record
	err := s.db.WithContext(ctx).Select("transcript").First(&rec, "key = ?", Key(identity)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	if len(rec.Transcript) == 0 {
		return nil, nil
	}
	return rec.Transcript, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	var rows []struct {
		Key        string
		Identity   string
		WorkingDir string
		Size       int64
		UpdatedAt  time.Time
	}
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Select("key, identity, working_dir, COALESCE(length(transcript), 0) AS size, updated_at").
		Order("identity").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		identity := row.Identity
		if identity == "" {
			identity = row.Key
		}
		entries = append(entries, Entry{
			Identity:   identity,
			WorkingDir: row.WorkingDir,
			Size:       row.Size,
			UpdatedAt:  row.UpdatedAt,
		})
	}
	return entries, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, identity string) error {
	if err := s.db.WithContext(ctx).Delete(&Record{}, "key = ?", Key(identity)).Error; err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TrimOutput(ctx context.Context, identity string, max int64) ([]byte, error) {
	key := Key(identity)
	var removed []byte
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Record
		if err := tx.Select("transcript").First(&rec, "key = ?", key).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if int64(len(rec.Transcript)) <= max {
			return nil
		}

		cut := int64(len(rec.Transcript)) - max
		removed = append([]byte(nil), rec.Transcript[:cut]...)
		return tx.Exec(
			"UPDATE sessions SET transcript = ? WHERE key = ?",
			rec.Transcript[cut:], key,
		).Error
	})
	if err != nil {
		return nil, fmt.Errorf("trim transcript: %w", err)
	}
	return removed, nil
}
