// ABOUTME: Tests for the sales grid's descriptor, rows and actions.
// ABOUTME: Each test runs against a fresh SQLite file.

package sales

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2389/tabulator/internal/auth"
	apperrors "github.com/2389/tabulator/internal/errors"
	"github.com/2389/tabulator/internal/grid"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "sales.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupTestGrid(t *testing.T) *SalesGrid {
	t.Helper()
	g := &SalesGrid{}
	if err := g.SetDB(setupTestDB(t)); err != nil {
		t.Fatalf("Failed to set DB: %v", err)
	}
	return g
}

func createSale(t *testing.T, g *SalesGrid, customer, region string, amount float64) int64 {
	t.Helper()
	id, err := g.store.CreateSale(&Sale{Customer: customer, Product: "License", Region: region, Amount: amount, ClosedAt: "2026-10-01"})
	if err != nil {
		t.Fatalf("CreateSale() error = %v", err)
	}
	return id
}

func request(roles ...string) *grid.Request {
	return &grid.Request{Name: "sales", User: &auth.User{Name: "tester", Roles: roles}}
}

func TestRegistered(t *testing.T) {
	src, ok := grid.Get("sales")
	if !ok {
		t.Fatal("sales grid not registered")
	}
	if _, ok := src.(grid.DatabaseSource); !ok {
		t.Error("sales grid does not implement DatabaseSource")
	}
	if _, ok := src.(grid.Seeder); !ok {
		t.Error("sales grid does not implement Seeder")
	}
}

func TestLoad_WithoutDatabase(t *testing.T) {
	if _, err := (&SalesGrid{}).Load(context.Background(), request()); err == nil {
		t.Error("Load() without database succeeded, want error")
	}
}

func TestAccess(t *testing.T) {
	g := setupTestGrid(t)

	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"no roles", nil, false},
		{"editor only", []string{RoleEditor}, false},
		{"sales", []string{RoleSales}, true},
		{"superuser", []string{auth.RoleSuperuser}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(tt.roles...)
			d, err := g.Load(context.Background(), req)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			got, err := d.Access(context.Background(), req)
			if err != nil || got != tt.want {
				t.Errorf("Access() = (%v, %v), want (%v, nil)", got, err, tt.want)
			}
		})
	}
}

func TestRowsAndLocalizedColumns(t *testing.T) {
	g := setupTestGrid(t)
	createSale(t, g, "Acme", "EMEA", 100)
	createSale(t, g, "Globex", "NA", 50)

	req := request(RoleSales)
	req.LoadRows = true
	req.Locale = "de-de"
	d, _ := g.Load(context.Background(), req)

	p, err := d.JSONObject(context.Background(), req)
	if err != nil {
		t.Fatalf("JSONObject() error = %v", err)
	}
	if len(p.Data) != 2 {
		t.Fatalf("len(Data) = %d, want 2", len(p.Data))
	}
	if p.Title != "Verkäufe" || p.Columns[1].Title != "Kunde" {
		t.Errorf("title = %q, column = %q, want German titles", p.Title, p.Columns[1].Title)
	}
	if len(p.RowActions) != 3 || len(p.GridActions) != 1 {
		t.Errorf("actions = %d row, %d grid, want 3 and 1", len(p.RowActions), len(p.GridActions))
	}
}

func runAction(t *testing.T, g *SalesGrid, name string, req *grid.Request) (any, error) {
	t.Helper()
	d, err := g.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	a, ok := d.RowAction(name)
	if !ok {
		a, ok = d.GridAction(name)
	}
	if !ok {
		t.Fatalf("action %q not found", name)
	}
	return a.Execute(context.Background(), req)
}

func TestExport(t *testing.T) {
	g := setupTestGrid(t)
	id := createSale(t, g, "Acme, Inc.", "EMEA", 1234.5)

	req := request(RoleAdmin)
	req.Params = map[string][]string{"id": {"1"}}

	result, err := runAction(t, g, "export", req)
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	out := result.(map[string]any)

	if _, err := uuid.Parse(out["export_id"].(string)); err != nil {
		t.Errorf("export_id %q is not a uuid: %v", out["export_id"], err)
	}
	if out["filename"] != "sale-1.csv" {
		t.Errorf("filename = %v, want sale-1.csv", out["filename"])
	}
	csvText := out["csv"].(string)
	if !strings.HasPrefix(csvText, "id,customer,product,region,amount,closed_at\n") {
		t.Errorf("csv header wrong: %q", csvText)
	}
	if !strings.Contains(csvText, `"Acme, Inc."`) || !strings.Contains(csvText, "1234.50") {
		t.Errorf("csv row wrong: %q", csvText)
	}

	if n, _ := g.store.CountExports(id); n != 1 {
		t.Errorf("CountExports() = %d, want 1", n)
	}
}

func TestDeleteAndTouch(t *testing.T) {
	g := setupTestGrid(t)
	id := createSale(t, g, "Acme", "EMEA", 10)

	req := request(RoleEditor)
	req.Params = map[string][]string{"id": {"1"}}

	result, err := runAction(t, g, "touch", req)
	if err != nil || result != nil {
		t.Errorf("touch = (%v, %v), want (nil, nil)", result, err)
	}

	result, err = runAction(t, g, "delete", req)
	if err != nil || result != "deleted" {
		t.Fatalf("delete = (%v, %v), want deleted", result, err)
	}
	if sale, _ := g.store.GetSale(id); sale != nil {
		t.Error("sale still present after delete")
	}

	_, err = runAction(t, g, "delete", req)
	if !apperrors.Is(err, apperrors.KindNotFound) || err.Error() != "Sale 1 not found" {
		t.Errorf("second delete error = %v, want Sale 1 not found", err)
	}

	req.Params = map[string][]string{"id": {"abc"}}
	if _, err := runAction(t, g, "touch", req); err == nil {
		t.Error("touch with invalid id succeeded, want error")
	}
}

func TestSummary(t *testing.T) {
	g := setupTestGrid(t)
	createSale(t, g, "Acme", "EMEA", 100)
	createSale(t, g, "Initech", "EMEA", 50)
	createSale(t, g, "Globex", "NA", 25)

	result, err := runAction(t, g, "summary", request())
	if err != nil {
		t.Fatalf("summary error = %v", err)
	}
	sum := result.(*Summary)
	if sum.Count != 3 || sum.Total != 175 {
		t.Errorf("summary = %+v, want 3 sales totaling 175", sum)
	}
	if sum.ByRegion["EMEA"] != 150 || sum.ByRegion["NA"] != 25 {
		t.Errorf("ByRegion = %v", sum.ByRegion)
	}
}

func TestSeed(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	g := setupTestGrid(t)
	createSale(t, g, "Stale Corp", "NA", 1)

	seedData, err := g.Seed(context.Background(), "small")
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if seedData.Summary == "" {
		t.Fatal("Seed summary should not be empty")
	}
	if seedData.Records["sales"] != 5 {
		t.Fatalf("Expected 5 sales, got %d", seedData.Records["sales"])
	}

	sales, err := g.store.ListSales()
	if err != nil {
		t.Fatalf("ListSales() error = %v", err)
	}
	if len(sales) != 5 {
		t.Fatalf("Expected 5 sales in DB, got %d", len(sales))
	}
	for _, s := range sales {
		if s.Customer == "Stale Corp" {
			t.Error("Seed should replace existing sales")
		}
	}
}
