package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// MaintenanceConfig controls event retention and database backups.
type MaintenanceConfig struct {
	// RetentionDays deletes events older than this many days. 0 disables
	// age pruning.
	RetentionDays int

	// MaxEvents keeps at most this many events. 0 disables count pruning.
	MaxEvents int64

	// Interval between maintenance runs.
	Interval time.Duration

	// BackupEnabled turns on periodic database file backups.
	BackupEnabled bool

	// BackupPath is the directory for backup copies.
	BackupPath string

	// BackupRetentionDays deletes backups older than this many days.
	BackupRetentionDays int
}

// DefaultMaintenanceConfig returns the default maintenance configuration.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		RetentionDays: 14,
		MaxEvents:     10000,
		Interval:      24 * time.Hour,
	}
}

// Maintenance prunes the event log and backs up the database file on a
// fixed schedule.
type Maintenance struct {
	db     *DB
	dbPath string
	config MaintenanceConfig
	logger zerolog.Logger
}

// NewMaintenance creates the maintenance service.
func NewMaintenance(db *DB, dbPath string, cfg MaintenanceConfig, logger zerolog.Logger) *Maintenance {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &Maintenance{
		db:     db,
		dbPath: dbPath,
		config: cfg,
		logger: logger.With().Str("component", "maintenance").Logger(),
	}
}

// Start runs maintenance immediately and then on every interval until the
// context is cancelled.
func (m *Maintenance) Start(ctx context.Context) {
	m.RunOnce(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single maintenance pass.
func (m *Maintenance) RunOnce(ctx context.Context) {
	if m.config.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -m.config.RetentionDays)
		deleted, err := m.db.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			m.logger.Error().Err(err).Msg("failed to prune old events")
		} else if deleted > 0 {
			m.logger.Info().Int64("deleted", deleted).Msg("pruned old events")
		}
	}

	if m.config.MaxEvents > 0 {
		deleted, err := m.db.PruneToLimit(ctx, m.config.MaxEvents)
		if err != nil {
			m.logger.Error().Err(err).Msg("failed to prune event overflow")
		} else if deleted > 0 {
			m.logger.Info().Int64("deleted", deleted).Msg("pruned event overflow")
		}
	}

	if m.config.BackupEnabled {
		if err := m.performBackup(); err != nil {
			m.logger.Error().Err(err).Msg("backup failed")
		}
		m.cleanupOldBackups()
	}
}

func (m *Maintenance) performBackup() error {
	if err := os.MkdirAll(m.config.BackupPath, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(m.config.BackupPath, fmt.Sprintf("history_%s.db", timestamp))

	source, err := os.Open(m.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return err
	}

	m.logger.Info().Str("path", backupPath).Msg("database backup written")
	return nil
}

func (m *Maintenance) cleanupOldBackups() {
	if m.config.BackupRetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(m.config.BackupPath)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to read backup directory for cleanup")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -m.config.BackupRetentionDays)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			m.logger.Info().Str("file", file.Name()).Msg("deleting old backup")
			os.Remove(filepath.Join(m.config.BackupPath, file.Name()))
		}
	}
}
