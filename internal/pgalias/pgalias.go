// Package pgalias loads an alias.Table's canonical->file-specific
// dimension mapping from a Postgres table instead of static
// configuration, for deployments managing many datasets' mappings
// centrally (an alternate C2 backend). Grounded on the teacher's
// context-timeout + prepared-statement Postgres resolver in
// mapping/metadata_resolver_postgres.go.
package pgalias

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"gridserver/internal/alias"
)

// Loader reads alias mappings for a named dataset from Postgres.
type Loader struct {
	db      *sql.DB
	timeout time.Duration

	stmt *sql.Stmt
}

// Open connects to dsn and prepares the mapping lookup statement.
func Open(dsn string, timeout time.Duration) (*Loader, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgalias: opening database: %w", err)
	}
	stmt, err := db.Prepare(`
		SELECT canonical_name, file_dimension_name
		FROM dimension_aliases
		WHERE dataset_id = $1
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgalias: preparing statement: %w", err)
	}
	return &Loader{db: db, timeout: timeout, stmt: stmt}, nil
}

// Close releases the prepared statement and connection pool.
func (l *Loader) Close() error {
	if l.stmt != nil {
		_ = l.stmt.Close()
	}
	return l.db.Close()
}

// LoadTable reads every (canonical, file-specific) pair registered for
// datasetID and builds an alias.Table from them.
func (l *Loader) LoadTable(ctx context.Context, datasetID string) (*alias.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	rows, err := l.stmt.QueryContext(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("pgalias: querying mappings for %s: %w", datasetID, err)
	}
	defer rows.Close()

	mapping := make(map[string]string)
	for rows.Next() {
		var canonical, fileName string
		if err := rows.Scan(&canonical, &fileName); err != nil {
			return nil, fmt.Errorf("pgalias: scanning row: %w", err)
		}
		mapping[canonical] = fileName
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgalias: reading rows: %w", err)
	}

	table, err := alias.NewTable(mapping)
	if err != nil {
		return nil, fmt.Errorf("pgalias: building alias table for %s: %w", datasetID, err)
	}
	return table, nil
}
