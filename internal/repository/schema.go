package repository

import "fmt"

// Schema definitions for Kestrel's tables.
// Compatible with both SQLite and PostgreSQL.

// labeledSchema builds the labeled-table DDL. The table is owned by the
// labeling pipeline and replaced wholesale on each run; row_id carries
// the source row identifier so the training watermark survives the
// replace.
func labeledSchema(table string) []string {
	return []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    row_id BIGINT NOT NULL,
    customer_id TEXT NOT NULL,
    tr_datetime TEXT NOT NULL,
    mcc_code BIGINT NOT NULL,
    tr_type BIGINT NOT NULL,
    amount REAL NOT NULL,
    amount_abs REAL NOT NULL,
    hour INTEGER NOT NULL,
    flow TEXT NOT NULL,
    is_night INTEGER NOT NULL,
    cust_tx_cnt BIGINT NOT NULL,
    cust_amount_mean REAL NOT NULL,
    cust_amount_std REAL NOT NULL,
    cust_amount_sum REAL NOT NULL,
    cust_mcc_nunique BIGINT NOT NULL,
    rule_score REAL NOT NULL,
    anomaly_score REAL NOT NULL,
    risk_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    verification_complexity TEXT NOT NULL
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_row ON %s(row_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_customer ON %s(customer_id)`, table, table),
	}
}

// sourceSchema builds the source-table DDL. The source is normally
// provisioned by an external loader; this only creates it when absent
// so local development and tests can seed rows. PostgreSQL needs an
// explicit identifier column since it has no implicit rowid.
func sourceSchema(driver, table string, cols columnNames) []string {
	idColumn := ""
	if driver == "postgres" {
		idColumn = "id BIGSERIAL PRIMARY KEY,\n    "
	}
	return []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    %s%s TEXT NOT NULL,
    %s TEXT NOT NULL,
    %s BIGINT NOT NULL,
    %s BIGINT NOT NULL,
    %s REAL
)`, table, idColumn, cols.customerID, cols.occurredAt, cols.category, cols.txType, cols.amount),
	}
}
