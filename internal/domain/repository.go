// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. The source table
// is read-only to kestrel; the labeled table is owned by the labeling
// pipeline and replaced wholesale each run.
type Repository interface {
	// FetchTransactions bulk-reads raw rows from the source table.
	// limit <= 0 means no cap.
	FetchTransactions(ctx context.Context, limit int64) ([]Transaction, error)

	// ReplaceLabeled atomically replaces the labeled table contents.
	ReplaceLabeled(ctx context.Context, rows []ScoredTransaction) error

	// CountLabeled returns the total labeled row count.
	CountLabeled(ctx context.Context) (int64, error)

	// CountLabeledAfter returns the labeled row count past a watermark.
	CountLabeledAfter(ctx context.Context, rowID int64) (int64, error)

	// MaxLabeledRowID returns the highest labeled row identifier,
	// or 0 when the table is empty.
	MaxLabeledRowID(ctx context.Context) (int64, error)

	// LabeledAfter returns labeled rows with row id > rowID, ascending.
	LabeledAfter(ctx context.Context, rowID int64, limit int64) ([]ScoredTransaction, error)

	// LabeledUpTo returns labeled rows with row id <= rowID,
	// newest first, capped at limit.
	LabeledUpTo(ctx context.Context, rowID int64, limit int64) ([]ScoredTransaction, error)

	// RecentLabeled returns the most recent labeled rows, newest first.
	RecentLabeled(ctx context.Context, limit int64) ([]ScoredTransaction, error)

	// CustomerStats computes lifetime aggregates for one customer from
	// the labeled table. Used by the serving path.
	CustomerStats(ctx context.Context, customerID string) (*CustomerAggregate, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ColumnMap maps kestrel's logical columns onto the source table schema.
type ColumnMap struct {
	CustomerID string
	OccurredAt string
	Category   string
	Type       string
	Amount     string
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SourceTable is the raw transactions table.
	SourceTable string

	// LabeledTable is the sink for scored rows.
	LabeledTable string

	// Columns maps logical column names onto the source schema.
	Columns ColumnMap

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
