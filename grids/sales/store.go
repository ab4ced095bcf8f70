// ABOUTME: Database operations and schema for the sales grid.
// ABOUTME: Handles sales records and the export audit trail.

package sales

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sale is one sales record.
type Sale struct {
	ID        int64
	Customer  string
	Product   string
	Region    string
	Amount    float64
	ClosedAt  string
	UpdatedAt time.Time
}

// Export records who exported which sale.
type Export struct {
	ID        string
	SaleID    int64
	UserName  string
	CreatedAt time.Time
}

// Summary aggregates all sales.
type Summary struct {
	Count    int                `json:"count"`
	Total    float64            `json:"total"`
	ByRegion map[string]float64 `json:"by_region"`
}

type SalesStore struct {
	db *sql.DB
}

func NewSalesStore(db *sql.DB) (*SalesStore, error) {
	store := &SalesStore{db: db}
	if err := store.createTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SalesStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer TEXT NOT NULL,
		product TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		amount REAL NOT NULL DEFAULT 0,
		closed_at TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sales_exports (
		id TEXT PRIMARY KEY,
		sale_id INTEGER NOT NULL,
		user_name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sales_region ON sales(region);
	CREATE INDEX IF NOT EXISTS idx_sales_exports_sale ON sales_exports(sale_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSale inserts a sale and returns its id.
func (s *SalesStore) CreateSale(sale *Sale) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO sales (customer, product, region, amount, closed_at) VALUES (?, ?, ?, ?, ?)
	`, sale.Customer, sale.Product, sale.Region, sale.Amount, sale.ClosedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListSales returns all sales, most recently closed first.
func (s *SalesStore) ListSales() ([]*Sale, error) {
	rows, err := s.db.Query(`
		SELECT id, customer, product, region, amount, closed_at, updated_at
		FROM sales
		ORDER BY closed_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*Sale
	for rows.Next() {
		sale := &Sale{}
		if err := rows.Scan(&sale.ID, &sale.Customer, &sale.Product, &sale.Region, &sale.Amount, &sale.ClosedAt, &sale.UpdatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// GetSale returns the sale with id, or nil if none exists.
func (s *SalesStore) GetSale(id int64) (*Sale, error) {
	sale := &Sale{}
	err := s.db.QueryRow(`
		SELECT id, customer, product, region, amount, closed_at, updated_at
		FROM sales WHERE id = ?
	`, id).Scan(&sale.ID, &sale.Customer, &sale.Product, &sale.Region, &sale.Amount, &sale.ClosedAt, &sale.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// DeleteSale removes a sale and its export records. It reports whether the
// sale existed.
func (s *SalesStore) DeleteSale(id int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sales_exports WHERE sale_id = ?`, id); err != nil {
		return false, err
	}
	res, err := tx.Exec(`DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

// TouchSale bumps a sale's updated_at timestamp.
func (s *SalesStore) TouchSale(id int64) error {
	_, err := s.db.Exec(`UPDATE sales SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// RecordExport stores an export of saleID by userName and returns it.
func (s *SalesStore) RecordExport(saleID int64, userName string) (*Export, error) {
	export := &Export{
		ID:        uuid.New().String(),
		SaleID:    saleID,
		UserName:  userName,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO sales_exports (id, sale_id, user_name, created_at) VALUES (?, ?, ?, ?)
	`, export.ID, export.SaleID, export.UserName, export.CreatedAt)
	if err != nil {
		return nil, err
	}
	return export, nil
}

// CountExports returns the number of exports recorded for saleID.
func (s *SalesStore) CountExports(saleID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sales_exports WHERE sale_id = ?`, saleID).Scan(&count)
	return count, err
}

// Summarize aggregates all sales.
func (s *SalesStore) Summarize() (*Summary, error) {
	rows, err := s.db.Query(`SELECT region, COUNT(*), COALESCE(SUM(amount), 0) FROM sales GROUP BY region ORDER BY region`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sum := &Summary{ByRegion: make(map[string]float64)}
	for rows.Next() {
		var region string
		var count int
		var total float64
		if err := rows.Scan(&region, &count, &total); err != nil {
			return nil, err
		}
		sum.Count += count
		sum.Total += total
		sum.ByRegion[region] = total
	}
	return sum, rows.Err()
}

// Reset deletes all sales and export records.
func (s *SalesStore) Reset() error {
	_, err := s.db.Exec(`DELETE FROM sales_exports; DELETE FROM sales;`)
	return err
}
