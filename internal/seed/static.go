// ABOUTME: Static fallback sales records when no OpenAI API key is available.
// ABOUTME: Cycles through a fixed set of customers with dates relative to today.

package seed

import "time"

func generateStaticSales(count int) []SaleData {
	templates := []SaleData{
		{Customer: "Acme Industrial GmbH", Product: "Enterprise License", Region: "EMEA", Amount: 24000},
		{Customer: "Globex Corporation", Product: "Support Plan Gold", Region: "NA", Amount: 8400},
		{Customer: "Initech", Product: "Training Workshop", Region: "NA", Amount: 3200},
		{Customer: "Umbrella Logistics", Product: "Consulting Days (5)", Region: "EMEA", Amount: 6250},
		{Customer: "Stark Components", Product: "Team License", Region: "APAC", Amount: 4800},
		{Customer: "Wayne Freight", Product: "Support Plan Silver", Region: "LATAM", Amount: 2900},
		{Customer: "Hooli", Product: "Enterprise License", Region: "NA", Amount: 48000},
		{Customer: "Vandelay Imports", Product: "Starter License", Region: "EMEA", Amount: 450},
		{Customer: "Soylent Foods", Product: "Consulting Days (2)", Region: "APAC", Amount: 2500},
		{Customer: "Tyrell Systems", Product: "Team License", Region: "APAC", Amount: 9600},
		{Customer: "Cyberdyne Robotics", Product: "Support Plan Gold", Region: "NA", Amount: 12600},
		{Customer: "Oceanic Air", Product: "Training Workshop", Region: "LATAM", Amount: 1800},
	}

	today := time.Now()
	result := make([]SaleData, count)
	for i := 0; i < count; i++ {
		s := templates[i%len(templates)]
		s.ClosedAt = today.AddDate(0, 0, -(i*7)%90).Format("2006-01-02")
		result[i] = s
	}
	return result
}
