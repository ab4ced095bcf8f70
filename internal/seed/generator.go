// ABOUTME: AI-powered generator for realistic sample sales records.
// ABOUTME: Uses the OpenAI chat API when a key is configured, static data otherwise.

package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sashabaranov/go-openai"
)

// Generator creates fake data using OpenAI or falls back to static data.
type Generator struct {
	client *openai.Client
	useAI  bool
	model  string
}

// NewGenerator creates a generator, loading the API key from .env if available.
func NewGenerator() *Generator {
	g := &Generator{}

	// Try to load .env from current dir or parent dirs
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		godotenv.Load(filepath.Join(home, ".env"))
	}

	g.model = os.Getenv("OPENAI_MODEL")
	if g.model == "" {
		g.model = "gpt-5-mini"
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		g.client = openai.NewClient(apiKey)
		g.useAI = true
		log.Printf("OpenAI API key found, using AI-generated data with model: %s", g.model)
	} else {
		log.Println("No OPENAI_API_KEY found, using static fallback data")
	}

	return g
}

// UsesAI reports whether records come from the OpenAI API.
func (g *Generator) UsesAI() bool {
	return g.useAI
}

// SaleData represents one generated sales record.
type SaleData struct {
	Customer string  `json:"customer"`
	Product  string  `json:"product"`
	Region   string  `json:"region"`
	Amount   float64 `json:"amount"`
	ClosedAt string  `json:"closed_at"`
}

// Sales creates count sales records. AI failures fall back to static data.
func (g *Generator) Sales(ctx context.Context, count int) ([]SaleData, error) {
	if count <= 0 {
		return nil, nil
	}
	if !g.useAI {
		return generateStaticSales(count), nil
	}

	log.Printf("Generating %d sales records via AI...", count)
	sales, err := g.generateSales(ctx, count)
	if err == nil {
		sales = cleanSales(sales, count, time.Now())
	}
	if err != nil || len(sales) == 0 {
		log.Printf("AI generation failed (%v), falling back to static data...", err)
		return generateStaticSales(count), nil
	}
	log.Printf("Generated %d sales records", len(sales))
	return sales, nil
}

// cleanSales drops generated records the sales grid cannot show (no
// customer or product, non-positive amount), normalizes regions and dates,
// and caps the result at count. Unparseable dates become now.
func cleanSales(in []SaleData, count int, now time.Time) []SaleData {
	out := make([]SaleData, 0, min(len(in), count))
	for _, s := range in {
		if len(out) == count {
			break
		}
		s.Customer = strings.TrimSpace(s.Customer)
		s.Product = strings.TrimSpace(s.Product)
		if s.Customer == "" || s.Product == "" || s.Amount <= 0 {
			continue
		}
		s.Region = strings.ToUpper(strings.TrimSpace(s.Region))
		if _, err := time.Parse(time.DateOnly, s.ClosedAt); err != nil {
			s.ClosedAt = now.Format(time.DateOnly)
		}
		s.Amount = math.Round(s.Amount*100) / 100
		out = append(out, s)
	}
	return out
}

func (g *Generator) generateSales(ctx context.Context, count int) ([]SaleData, error) {
	prompt := fmt.Sprintf(`Generate %d realistic fake B2B sales records for a mid-sized software vendor. Include:
- Customers of different sizes and industries
- Products: licenses, support plans, training, consulting days
- Regions: EMEA, NA, APAC, LATAM

Return as JSON array with objects containing: customer, product, region, amount (number, EUR), closed_at (YYYY-MM-DD within the last 90 days).
Amounts should range from 200 to 50000.`, count)

	return callOpenAI[[]SaleData](ctx, g.client, g.model, prompt)
}

func callOpenAI[T any](ctx context.Context, client *openai.Client, model, prompt string) (T, error) {
	var result T

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a data generator. Always respond with valid JSON only, no markdown or explanation.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return result, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return result, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return result, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return result, nil
}
