// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type columnNames struct {
	customerID string
	occurredAt string
	category   string
	txType     string
	amount     string
}

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db           *sql.DB
	driver       string
	sourceTable  string
	labeledTable string
	cols         columnNames
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", domain.ErrInvalidInput, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:           db,
		driver:       cfg.Driver,
		sourceTable:  cfg.SourceTable,
		labeledTable: cfg.LabeledTable,
		cols: columnNames{
			customerID: cfg.Columns.CustomerID,
			occurredAt: cfg.Columns.OccurredAt,
			category:   cfg.Columns.Category,
			txType:     cfg.Columns.Type,
			amount:     cfg.Columns.Amount,
		},
	}
	repo.applyDefaults()

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) applyDefaults() {
	if r.sourceTable == "" {
		r.sourceTable = "transactions"
	}
	if r.labeledTable == "" {
		r.labeledTable = "transactions_labeled"
	}
	if r.cols.customerID == "" {
		r.cols.customerID = "customer_id"
	}
	if r.cols.occurredAt == "" {
		r.cols.occurredAt = "tr_datetime"
	}
	if r.cols.category == "" {
		r.cols.category = "mcc_code"
	}
	if r.cols.txType == "" {
		r.cols.txType = "tr_type"
	}
	if r.cols.amount == "" {
		r.cols.amount = "amount"
	}
}

func (r *SQLRepository) migrate() error {
	statements := sourceSchema(r.driver, r.sourceTable, r.cols)
	statements = append(statements, labeledSchema(r.labeledTable)...)
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// sourceRowExpr names the source row identifier: sqlite's implicit
// rowid, or the explicit id column on PostgreSQL.
func (r *SQLRepository) sourceRowExpr() string {
	if r.driver == "postgres" {
		return "id"
	}
	return "rowid"
}

// FetchTransactions bulk-reads raw rows from the source table in row
// order. Customer identifiers are cast to text so numeric IDs scan
// uniformly; a NULL or unreadable amount scans as NaN and is coerced
// downstream.
func (r *SQLRepository) FetchTransactions(ctx context.Context, limit int64) ([]domain.Transaction, error) {
	query := fmt.Sprintf(
		`SELECT %[1]s, CAST(%[2]s AS TEXT), %[3]s, %[4]s, %[5]s, %[6]s FROM %[7]s ORDER BY %[1]s`,
		r.sourceRowExpr(), r.cols.customerID, r.cols.occurredAt,
		r.cols.category, r.cols.txType, r.cols.amount, r.sourceTable,
	)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query source table: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var amount sql.NullFloat64
		if err := rows.Scan(&tx.RowID, &tx.CustomerID, &tx.OccurredAt,
			&tx.CategoryCode, &tx.TypeCode, &amount); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		if amount.Valid {
			tx.Amount = amount.Float64
		} else {
			tx.Amount = math.NaN()
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// SeedSource inserts raw rows into the source table. Intended for
// local development, benchmarks and tests; production rows arrive via
// an external loader.
func (r *SQLRepository) SeedSource(ctx context.Context, rows []domain.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		`INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?)`,
		r.sourceTable, r.cols.customerID, r.cols.occurredAt,
		r.cols.category, r.cols.txType, r.cols.amount,
	)
	stmt, err := tx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return fmt.Errorf("prepare seed: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i].CustomerID, rows[i].OccurredAt,
			rows[i].CategoryCode, rows[i].TypeCode, rows[i].Amount); err != nil {
			return fmt.Errorf("insert source row: %w", err)
		}
	}
	return tx.Commit()
}

const labeledColumns = `row_id, customer_id, tr_datetime, mcc_code, tr_type,
	amount, amount_abs, hour, flow, is_night,
	cust_tx_cnt, cust_amount_mean, cust_amount_std, cust_amount_sum, cust_mcc_nunique,
	rule_score, anomaly_score, risk_score, risk_level, verification_complexity`

// ReplaceLabeled atomically replaces the labeled table contents within
// one transaction: the old rows disappear and the new batch commits as
// a unit.
func (r *SQLRepository) ReplaceLabeled(ctx context.Context, rows []domain.ScoredTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, r.labeledTable)); err != nil {
		return fmt.Errorf("clear labeled table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", 20), ", ")
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		r.labeledTable, labeledColumns, placeholders)
	stmt, err := tx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		row := &rows[i]
		night := 0
		if row.IsNight {
			night = 1
		}
		if _, err := stmt.ExecContext(ctx,
			row.RowID, row.CustomerID, row.OccurredAt, row.CategoryCode, row.TypeCode,
			row.Amount, row.AmountAbs, row.Hour, row.Flow, night,
			row.Aggregate.TxCount, row.Aggregate.AmountMean, row.Aggregate.AmountStd,
			row.Aggregate.AmountSum, row.Aggregate.CategoryCount,
			row.RuleScore, row.AnomalyScore, row.RiskScore, row.RiskLevel, row.Complexity,
		); err != nil {
			return fmt.Errorf("insert labeled row: %w", err)
		}
	}
	return tx.Commit()
}

// CountLabeled returns the total labeled row count.
func (r *SQLRepository) CountLabeled(ctx context.Context) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.labeledTable)
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count labeled rows: %w", err)
	}
	return n, nil
}

// CountLabeledAfter returns the labeled row count past a watermark.
func (r *SQLRepository) CountLabeledAfter(ctx context.Context, rowID int64) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE row_id > ?`, r.labeledTable)
	if err := r.db.QueryRowContext(ctx, r.rebind(query), rowID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count new labeled rows: %w", err)
	}
	return n, nil
}

// MaxLabeledRowID returns the highest labeled row identifier, or 0 for
// an empty table.
func (r *SQLRepository) MaxLabeledRowID(ctx context.Context) (int64, error) {
	var max int64
	query := fmt.Sprintf(`SELECT COALESCE(MAX(row_id), 0) FROM %s`, r.labeledTable)
	if err := r.db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return 0, fmt.Errorf("max labeled rowid: %w", err)
	}
	return max, nil
}

// LabeledAfter returns labeled rows with row id > rowID, ascending.
func (r *SQLRepository) LabeledAfter(ctx context.Context, rowID, limit int64) ([]domain.ScoredTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE row_id > ? ORDER BY row_id ASC`,
		labeledColumns, r.labeledTable)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return r.queryLabeled(ctx, r.rebind(query), rowID)
}

// LabeledUpTo returns labeled rows with row id <= rowID, newest first.
func (r *SQLRepository) LabeledUpTo(ctx context.Context, rowID, limit int64) ([]domain.ScoredTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE row_id <= ? ORDER BY row_id DESC`,
		labeledColumns, r.labeledTable)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return r.queryLabeled(ctx, r.rebind(query), rowID)
}

// RecentLabeled returns the most recent labeled rows, newest first.
func (r *SQLRepository) RecentLabeled(ctx context.Context, limit int64) ([]domain.ScoredTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY row_id DESC`,
		labeledColumns, r.labeledTable)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return r.queryLabeled(ctx, query)
}

func (r *SQLRepository) queryLabeled(ctx context.Context, query string, args ...any) ([]domain.ScoredTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query labeled table: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredTransaction
	for rows.Next() {
		var tx domain.ScoredTransaction
		var night int
		if err := rows.Scan(
			&tx.RowID, &tx.CustomerID, &tx.OccurredAt, &tx.CategoryCode, &tx.TypeCode,
			&tx.Amount, &tx.AmountAbs, &tx.Hour, &tx.Flow, &night,
			&tx.Aggregate.TxCount, &tx.Aggregate.AmountMean, &tx.Aggregate.AmountStd,
			&tx.Aggregate.AmountSum, &tx.Aggregate.CategoryCount,
			&tx.RuleScore, &tx.AnomalyScore, &tx.RiskScore, &tx.RiskLevel, &tx.Complexity,
		); err != nil {
			return nil, fmt.Errorf("scan labeled row: %w", err)
		}
		tx.IsNight = night != 0
		out = append(out, tx)
	}
	return out, rows.Err()
}

// CustomerStats computes lifetime aggregates for one customer from the
// labeled table.
func (r *SQLRepository) CustomerStats(ctx context.Context, customerID string) (*domain.CustomerAggregate, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customerID is required", domain.ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*),
			   COALESCE(AVG(amount_abs), 0),
			   COALESCE(AVG(amount_abs * amount_abs), 0),
			   COALESCE(SUM(amount_abs), 0),
			   COUNT(DISTINCT mcc_code)
		FROM %s WHERE customer_id = ?`, r.labeledTable)

	var agg domain.CustomerAggregate
	var meanSq float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), customerID).Scan(
		&agg.TxCount, &agg.AmountMean, &meanSq, &agg.AmountSum, &agg.CategoryCount,
	)
	if err != nil {
		return nil, fmt.Errorf("query customer stats: %w", err)
	}
	if agg.TxCount == 0 {
		return nil, domain.ErrNotFound
	}

	// Sample standard deviation from the first two moments.
	if agg.TxCount > 1 {
		n := float64(agg.TxCount)
		variance := (meanSq - agg.AmountMean*agg.AmountMean) * n / (n - 1)
		if variance > 0 {
			agg.AmountStd = math.Sqrt(variance)
		}
	}
	return &agg, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
