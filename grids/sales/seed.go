// ABOUTME: Seed data generation for the sales grid.
// ABOUTME: Creates sales records via the shared seed generator.

package sales

import (
	"context"
	"fmt"

	"github.com/2389/tabulator/internal/grid"
	"github.com/2389/tabulator/internal/seed"
)

func (g *SalesGrid) Seed(ctx context.Context, size string) (grid.SeedData, error) {
	if g.store == nil {
		return grid.SeedData{}, fmt.Errorf("database not configured")
	}

	var numSales int
	switch size {
	case "small":
		numSales = 5
	case "medium":
		numSales = 20
	case "large":
		numSales = 60
	default:
		numSales = 20
	}

	records, err := seed.NewGenerator().Sales(ctx, numSales)
	if err != nil {
		return grid.SeedData{}, err
	}

	// Seeding replaces what is there, so re-running seed does not pile up rows.
	if err := g.store.Reset(); err != nil {
		return grid.SeedData{}, fmt.Errorf("failed to clear sales: %w", err)
	}

	created := 0
	for _, r := range records {
		_, err := g.store.CreateSale(&Sale{
			Customer: r.Customer,
			Product:  r.Product,
			Region:   r.Region,
			Amount:   r.Amount,
			ClosedAt: r.ClosedAt,
		})
		if err != nil {
			return grid.SeedData{}, fmt.Errorf("failed to create sale: %w", err)
		}
		created++
	}

	return grid.SeedData{
		Summary: fmt.Sprintf("Created %d sales", created),
		Records: map[string]int{"sales": created},
	}, nil
}
