package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// ListedInfoStore is the SQLite-backed store.ListedInfoStore.
type ListedInfoStore struct {
	db *sql.DB
}

func NewListedInfoStore(db *sql.DB) *ListedInfoStore {
	return &ListedInfoStore{db: db}
}

const upsertListedInfo = `
INSERT INTO listed_info (date, code, company_name, market_code, market_name, sector_code_17, sector_code_33)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (date, code) DO UPDATE SET
	company_name = excluded.company_name,
	market_code = excluded.market_code,
	market_name = excluded.market_name,
	sector_code_17 = excluded.sector_code_17,
	sector_code_33 = excluded.sector_code_33`

func (s *ListedInfoStore) BulkUpsert(ctx context.Context, records []model.ListedInfo) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin bulk upsert: %w", err)
	}
	defer tx.Rollback()

	saved := 0
	for _, rec := range records {
		_, err := tx.ExecContext(ctx, upsertListedInfo,
			rec.Date, rec.Code, rec.CompanyName, rec.MarketCode, rec.MarketName, rec.SectorCode17, rec.SectorCode33)
		if err != nil {
			return saved, fmt.Errorf("sqlite: upsert listed_info %s/%s: %w", rec.Date, rec.Code, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit bulk upsert: %w", err)
	}
	return saved, nil
}
