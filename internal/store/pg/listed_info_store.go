package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// ListedInfoStore is the Postgres-backed store.ListedInfoStore.
type ListedInfoStore struct {
	db *sqlx.DB
}

func NewListedInfoStore(db *sql.DB) *ListedInfoStore {
	return &ListedInfoStore{db: sqlx.NewDb(db, "pgx")}
}

// BulkUpsert writes all records in a single transaction, one upsert
// statement per record, keyed on (date, code); a conflicting row is
// overwritten with the new values.
func (s *ListedInfoStore) BulkUpsert(ctx context.Context, records []model.ListedInfo) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	const stmt = `
INSERT INTO listed_info (date, code, company_name, market_code, market_name, sector_code_17, sector_code_33)
VALUES (:date, :code, :company_name, :market_code, :market_name, :sector_code_17, :sector_code_33)
ON CONFLICT (date, code) DO UPDATE SET
	company_name = EXCLUDED.company_name,
	market_code = EXCLUDED.market_code,
	market_name = EXCLUDED.market_name,
	sector_code_17 = EXCLUDED.sector_code_17,
	sector_code_33 = EXCLUDED.sector_code_33`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("pg: begin bulk upsert: %w", err)
	}
	defer tx.Rollback()

	saved := 0
	for _, rec := range records {
		if _, err := tx.NamedExecContext(ctx, stmt, rec); err != nil {
			return saved, fmt.Errorf("pg: upsert listed_info %s/%s: %w", rec.Date, rec.Code, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("pg: commit bulk upsert: %w", err)
	}
	return saved, nil
}
