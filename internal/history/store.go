package history

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/heapdom/retain/internal/heapdump/retention"
)

// Store persists and retrieves analysis Runs in a local SQLite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the run-history database at path and
// migrates its schema. History queries join the run's trace when tracing
// is enabled.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("failed to install tracing plugin: %w", err)
	}

	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// newStore wraps an already-open gorm handle without migrating, so tests
// can substitute a mocked connection.
func newStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordRun stores a summary of one analysis run derived from its
// aggregated retention result.
func (s *Store) RecordRun(ctx context.Context, dumpPath, rerootAddress string, nodeCount int64, result *retention.Result) (*Run, error) {
	var totalInUse uint64
	snapshots := make([]TypeTotalSnapshot, 0, len(result.InUseByType))
	for _, t := range result.InUseByType {
		totalInUse += t.Bytes
		snapshots = append(snapshots, TypeTotalSnapshot{Type: string(t.Type), Bytes: t.Bytes, Count: t.Count})
	}

	encoded, err := EncodeTypeTotals(snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to encode type totals: %w", err)
	}

	run := &Run{
		DumpPath:        dumpPath,
		RerootAddress:   rerootAddress,
		NodeCount:       nodeCount,
		TotalInUseBytes: totalInUse,
		TypeTotals:      encoded,
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	return run, nil
}

// RecentRuns returns the most recent runs, newest first, limited to limit
// rows (0 means unlimited).
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	var runs []*Run
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return runs, nil
}

// RunsSince returns every run recorded at or after since.
func (s *Store) RunsSince(ctx context.Context, since time.Time) ([]*Run, error) {
	var runs []*Run
	err := s.db.WithContext(ctx).Where("created_at >= ?", since).Order("created_at ASC").Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query runs since %s: %w", since, err)
	}
	return runs, nil
}
