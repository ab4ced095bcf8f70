// ABOUTME: Sales grid: closed deals with export, delete and touch row actions.
// ABOUTME: Registers itself with the grid registry on import.

package sales

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"strconv"

	apperrors "github.com/2389/tabulator/internal/errors"
	"github.com/2389/tabulator/internal/grid"
)

func init() {
	grid.Register(&SalesGrid{})
}

// Roles the grid checks.
const (
	RoleSales  = "sales"
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

type SalesGrid struct {
	store *SalesStore
}

func (g *SalesGrid) Name() string {
	return "sales"
}

func (g *SalesGrid) Location() string {
	return "grids/sales"
}

func (g *SalesGrid) SetDB(db *sql.DB) error {
	store, err := NewSalesStore(db)
	if err != nil {
		return err
	}
	g.store = store
	return nil
}

var columnTitles = map[string][]string{
	"en-gb": {"ID", "Customer", "Product", "Region", "Amount", "Closed"},
	"de-de": {"ID", "Kunde", "Produkt", "Region", "Betrag", "Abschluss"},
}

var columnFields = []string{"id", "customer", "product", "region", "amount", "closed_at"}

func columns(loc string) []grid.Column {
	titles, ok := columnTitles[loc]
	if !ok {
		titles = columnTitles["en-gb"]
	}
	cols := make([]grid.Column, len(columnFields))
	for i, f := range columnFields {
		cols[i] = grid.Column{Field: f, Title: titles[i]}
	}
	cols[0].Sorter = "number"
	cols[4].Sorter = "number"
	return cols
}

func (g *SalesGrid) Load(_ context.Context, req *grid.Request) (*grid.Descriptor, error) {
	if g.store == nil {
		return nil, fmt.Errorf("database not configured")
	}

	title := "Sales"
	if req.Locale == "de-de" {
		title = "Verkäufe"
	}

	d := &grid.Descriptor{
		Title:   title,
		Columns: columns(req.Locale),
		Access:  grid.RequireRole(RoleSales),
		Rows:    g.rows,
	}
	d.AddRowAction(&grid.Action{Name: "export", Title: "Export CSV", Access: grid.RequireRole(RoleAdmin), Execute: g.export})
	d.AddRowAction(&grid.Action{Name: "delete", Title: "Delete", Access: grid.RequireRole(RoleEditor), Execute: g.remove})
	d.AddRowAction(&grid.Action{Name: "touch", Title: "Mark as reviewed", Access: grid.Allow, Execute: g.touch})
	d.AddGridAction(&grid.Action{Name: "summary", Title: "Summary", Access: grid.Allow, Execute: g.summary})
	return d, nil
}

func (g *SalesGrid) rows(_ context.Context, _ *grid.Request) ([]grid.Row, error) {
	sales, err := g.store.ListSales()
	if err != nil {
		return nil, err
	}
	rows := make([]grid.Row, 0, len(sales))
	for _, s := range sales {
		rows = append(rows, grid.Row{
			"id":        s.ID,
			"customer":  s.Customer,
			"product":   s.Product,
			"region":    s.Region,
			"amount":    s.Amount,
			"closed_at": s.ClosedAt,
		})
	}
	return rows, nil
}

// saleParam loads the sale named by the "id" request parameter.
func (g *SalesGrid) saleParam(req *grid.Request) (*Sale, error) {
	id, err := strconv.ParseInt(req.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid sale id %q", req.Param("id"))
	}
	sale, err := g.store.GetSale(id)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, apperrors.NotFound("Sale %d not found", id)
	}
	return sale, nil
}

func (g *SalesGrid) export(_ context.Context, req *grid.Request) (any, error) {
	sale, err := g.saleParam(req)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(columnFields)
	w.Write([]string{
		strconv.FormatInt(sale.ID, 10),
		sale.Customer,
		sale.Product,
		sale.Region,
		strconv.FormatFloat(sale.Amount, 'f', 2, 64),
		sale.ClosedAt,
	})
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	export, err := g.store.RecordExport(sale.ID, req.User.Name)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"export_id": export.ID,
		"filename":  fmt.Sprintf("sale-%d.csv", sale.ID),
		"csv":       buf.String(),
	}, nil
}

func (g *SalesGrid) remove(_ context.Context, req *grid.Request) (any, error) {
	sale, err := g.saleParam(req)
	if err != nil {
		return nil, err
	}
	if _, err := g.store.DeleteSale(sale.ID); err != nil {
		return nil, err
	}
	return "deleted", nil
}

func (g *SalesGrid) touch(_ context.Context, req *grid.Request) (any, error) {
	sale, err := g.saleParam(req)
	if err != nil {
		return nil, err
	}
	return nil, g.store.TouchSale(sale.ID)
}

func (g *SalesGrid) summary(_ context.Context, _ *grid.Request) (any, error) {
	return g.store.Summarize()
}
