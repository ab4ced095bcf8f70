// ABOUTME: Entry point for the tabulator grid server.
// ABOUTME: Wires together store, auth, grid sources and the AJAX interceptor with CLI commands.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/2389/tabulator/internal/admin"
	"github.com/2389/tabulator/internal/auth"
	"github.com/2389/tabulator/internal/grid"
	"github.com/2389/tabulator/internal/locale"
	"github.com/2389/tabulator/internal/logging"
	"github.com/2389/tabulator/internal/scriptgrid"
	"github.com/2389/tabulator/internal/store"
	"github.com/2389/tabulator/internal/tabulator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "github.com/2389/tabulator/grids/requestlog" // Register request log grid
	_ "github.com/2389/tabulator/grids/sales"      // Register sales grid
)

var (
	port          string
	dbPath        string
	scriptsDir    string
	langs         string
	localeStrings string
	seedSize      string
)

// serverConfig carries everything newServer needs besides the database.
type serverConfig struct {
	ScriptsDir    string
	Langs         string
	LocaleStrings string
}

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "tabulator",
		Short: "Tabulator - AJAX backend for browser data grids",
		Long: `Tabulator serves the AJAX endpoint of a browser data-grid widget.

A grid names a server-side row source plus row and grid actions. Requests to
/rocktabulator/ resolve the grid, check access, then either run an action or
return the rows as (gzip-compressed) JSON.

Grids come from two places:
  • Built-in Go grids (sales, requestlog)
  • Starlark scripts in the scripts directory (<name>.star)

Quick Start:
  tabulator seed          # Generate sample rows
  tabulator serve         # Start server on port 9000
  tabulator reset         # Wipe and reseed database`,
	}

	// Calculate default database path once (not per-command)
	defaultDBPath := getDefaultDBPath()

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the tabulator HTTP server on the specified port.

The server provides:
  • Grid AJAX endpoint at http://localhost:PORT/rocktabulator/
  • Admin UI at http://localhost:PORT/admin
  • Health check at http://localhost:PORT/healthz

Grid requests must send "X-Requested-With: XMLHttpRequest" and a "name" form
field. Optional fields: "lang" (language id), "gridaction"; optional query
parameter: "rowaction".

Authentication:
  Use Bearer tokens in the format: Bearer user:USERNAME
  Example: curl -X POST -H "X-Requested-With: XMLHttpRequest" \
    -H "Authorization: Bearer user:admin" -d name=sales http://localhost:9000/rocktabulator/

Environment Variables:
  TABULATOR_PORT            Server port (default: 9000)
  TABULATOR_DB_PATH         Database path
  TABULATOR_SCRIPTS_DIR     Grid script directory (default: ./scripts)
  TABULATOR_LANGS           Language to locale mapping, "name=locale" per line
  TABULATOR_LOCALE_STRINGS  YAML file with widget translations`,
		RunE: runServe,
	}
	serveCmd.Flags().StringVarP(&port, "port", "p", getEnv("TABULATOR_PORT", "9000"), "Port to listen on")
	serveCmd.Flags().StringVarP(&dbPath, "db", "d", defaultDBPath, "Database path")
	serveCmd.Flags().StringVar(&scriptsDir, "scripts", getEnv("TABULATOR_SCRIPTS_DIR", "./scripts"), "Grid script directory")
	serveCmd.Flags().StringVar(&langs, "langs", getEnv("TABULATOR_LANGS", locale.DefaultMapping), "Language to locale mapping")
	serveCmd.Flags().StringVar(&localeStrings, "locale-strings", getEnv("TABULATOR_LOCALE_STRINGS", ""), "YAML file with widget translations")

	seedCmd := &cobra.Command{
		Use:   "seed [grid]",
		Short: "Seed the database with sample rows",
		Long: `Seed the database with sample rows for all grids or a specific one.

AI-Powered Generation:
  Set OPENAI_API_KEY to use AI for generating realistic sales records.
  Falls back to static sample data if no API key is provided.

Usage:
  tabulator seed              # Seed every grid that supports seeding
  tabulator seed sales        # Seed only the sales grid
  tabulator seed --size large # small, medium or large

Note: Seed is not idempotent. Use 'tabulator reset' to clear data before reseeding.`,
		RunE: runSeed,
		Args: cobra.MaximumNArgs(1),
	}
	seedCmd.Flags().StringVarP(&dbPath, "db", "d", defaultDBPath, "Database path")
	seedCmd.Flags().StringVar(&seedSize, "size", "medium", "Amount of data: small, medium or large")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the database (wipe and reseed)",
		Long: `Delete the database file and create a fresh one with new sample rows.

Warning: This permanently deletes all data in the database!`,
		RunE: runReset,
	}
	resetCmd.Flags().StringVarP(&dbPath, "db", "d", defaultDBPath, "Database path")
	resetCmd.Flags().StringVar(&seedSize, "size", "medium", "Amount of data: small, medium or large")

	rootCmd.AddCommand(serveCmd, seedCmd, resetCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// validateAndCleanDBPath validates and cleans a database path.
// Handles Unix/Linux, macOS, and Windows paths (including UNC and drive letters).
func validateAndCleanDBPath(path string) (string, error) {
	cleanPath := strings.TrimSpace(path)
	cleanPath = filepath.Clean(cleanPath)

	// Reject empty and root-like paths
	if cleanPath == "" || cleanPath == "." || cleanPath == "/" {
		return "", fmt.Errorf("database path cannot be empty, '.', or '/'")
	}

	// Windows: reject bare drive letters (e.g., "C:", "D:")
	if runtime.GOOS == "windows" && len(cleanPath) == 2 && cleanPath[1] == ':' {
		return "", fmt.Errorf("database path cannot be a bare drive letter")
	}

	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("database path cannot contain '..'")
	}

	badPatterns := []string{
		".git",
		".svn",
		"node_modules",
		".env",
		"credentials",
		"secret",
	}
	lowerPath := strings.ToLower(cleanPath)
	for _, pattern := range badPatterns {
		if strings.Contains(lowerPath, pattern) {
			return "", fmt.Errorf("database path cannot contain '%s' directory", pattern)
		}
	}

	return cleanPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	var err error
	dbPath, err = validateAndCleanDBPath(dbPath)
	if err != nil {
		return err
	}

	srv, s, err := newServer(dbPath, serverConfig{
		ScriptsDir:    scriptsDir,
		Langs:         langs,
		LocaleStrings: localeStrings,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	addr := ":" + port
	log.Printf("Tabulator server listening on %s", addr)
	log.Printf("Database: %s", dbPath)
	return http.ListenAndServe(addr, srv)
}

// newServer opens the store and builds the router. The caller closes the
// returned store.
func newServer(dbPath string, cfg serverConfig) (http.Handler, *store.Store, error) {
	s, err := store.New(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	r, err := newRouter(s, cfg)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return r, s, nil
}

func newRouter(s *store.Store, cfg serverConfig) (http.Handler, error) {
	strs, err := locale.LoadStringsFile(cfg.LocaleStrings)
	if err != nil {
		return nil, fmt.Errorf("failed to load locale strings: %w", err)
	}
	mapping := locale.ParseMapping(cfg.Langs)
	if len(mapping) == 0 {
		mapping = locale.ParseMapping(locale.DefaultMapping)
	}
	locales := locale.NewResolver(mapping, strs)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(s))
	r.Use(auth.Middleware(s))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Initialize all built-in grids with database access
	if err := initGrids(s); err != nil {
		return nil, err
	}

	finders := grid.Finders{grid.Registered}
	var scripts admin.ScriptLister
	if dir, err := openScripts(cfg.ScriptsDir); err != nil {
		return nil, err
	} else if dir != nil {
		log.Printf("Grid scripts: %s", dir.Path())
		finders = append(finders, dir)
		scripts = dir
	}
	resolver := grid.NewResolver(finders)

	admin.NewHandlers(s, resolver, scripts, locales).RegisterRoutes(r)

	// Everything the router does not know goes through the grid interceptor,
	// which hands non-grid requests on to the plain 404.
	r.NotFound(tabulator.NewHandler(resolver, s, locales, http.NotFoundHandler()).ServeHTTP)

	return r, nil
}

// openScripts opens the grid script directory. A missing directory disables
// script grids.
func openScripts(dir string) (*scriptgrid.Dir, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		log.Printf("Grid script directory %s not found, script grids disabled", dir)
		return nil, nil
	}
	return scriptgrid.Open(dir)
}

func initGrids(s *store.Store) error {
	for _, src := range grid.All() {
		if dbSource, ok := src.(grid.DatabaseSource); ok {
			if err := dbSource.SetDB(s.GetDB()); err != nil {
				return fmt.Errorf("failed to initialize grid %s: %w", src.Name(), err)
			}
		}
	}
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	var err error
	dbPath, err = validateAndCleanDBPath(dbPath)
	if err != nil {
		return err
	}

	s, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	var gridName string
	if len(args) > 0 {
		gridName = args[0]
	}

	return seedData(cmd.Context(), s, gridName, seedSize)
}

func runReset(cmd *cobra.Command, args []string) error {
	var err error
	dbPath, err = validateAndCleanDBPath(dbPath)
	if err != nil {
		return err
	}

	// Remove existing database - ignore if file doesn't exist
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing database: %w", err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	return seedData(cmd.Context(), s, "", seedSize) // Reset always seeds all grids
}

func seedData(ctx context.Context, s *store.Store, gridFilter, size string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if gridFilter != "" {
		log.Printf("Seeding database with sample rows for grid: %s", gridFilter)
	} else {
		log.Println("Seeding database with sample rows...")
	}

	if err := initGrids(s); err != nil {
		return err
	}

	totalRecords := 0
	seededCount := 0
	hasUniqueError := false
	for _, src := range grid.All() {
		if gridFilter != "" && src.Name() != gridFilter {
			continue
		}
		seeder, ok := src.(grid.Seeder)
		if !ok {
			continue
		}

		seedData, err := seeder.Seed(ctx, size)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				hasUniqueError = true
			}
			log.Printf("Failed to seed %s: %v", src.Name(), err)
			continue
		}

		log.Printf("%s: %s", src.Name(), seedData.Summary)
		for _, count := range seedData.Records {
			totalRecords += count
		}
		seededCount++
	}

	if hasUniqueError {
		log.Println("\nNote: Database already contains seed data. Use 'tabulator reset' to clear and reseed.")
	}

	if gridFilter != "" && seededCount == 0 {
		log.Printf("Grid '%s' not found or has no seed implementation", gridFilter)
		log.Println("\nAvailable grids:")
		for _, src := range grid.All() {
			if _, ok := src.(grid.Seeder); ok {
				log.Printf("  - %s", src.Name())
			}
		}
		return fmt.Errorf("grid '%s' not found", gridFilter)
	}

	if gridFilter != "" {
		log.Printf("\nSeeding complete! Created %d records for %s", totalRecords, gridFilter)
	} else {
		log.Printf("\nSeeding complete! Created %d total records across all grids", totalRecords)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getDefaultDBPath returns the default database path following the XDG Base Directory layout
// Priority: TABULATOR_DB_PATH env var > ./tabulator.db > XDG_DATA_HOME/tabulator/tabulator.db
func getDefaultDBPath() string {
	if envPath := os.Getenv("TABULATOR_DB_PATH"); envPath != "" {
		envPath = filepath.Clean(strings.TrimSpace(envPath))
		if envPath == "" || envPath == "." {
			log.Printf("Warning: TABULATOR_DB_PATH is invalid (empty or '.'), using default path")
		} else {
			return envPath
		}
	}

	cwdPath := "./tabulator.db"
	if _, err := os.Stat(cwdPath); err == nil {
		return cwdPath
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil || homeDir == "" || homeDir == "/" {
			log.Printf("Warning: Could not determine valid home directory (%q): %v, using ./tabulator.db", homeDir, err)
			return cwdPath
		}

		// Windows: %LOCALAPPDATA% or ~/AppData/Local
		// Unix/Linux/macOS: ~/.local/share
		if runtime.GOOS == "windows" {
			dataHome = os.Getenv("LOCALAPPDATA")
			if dataHome == "" {
				dataHome = filepath.Join(homeDir, "AppData", "Local")
			}
		} else {
			dataHome = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(dataHome, "tabulator")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Printf("Warning: Could not create data directory %s: %v, using ./tabulator.db", dataDir, err)
		return cwdPath
	}

	if os.Getenv("TABULATOR_DEBUG") != "" {
		log.Printf("Using database location: %s", filepath.Join(dataDir, "tabulator.db"))
	}
	return filepath.Join(dataDir, "tabulator.db")
}
