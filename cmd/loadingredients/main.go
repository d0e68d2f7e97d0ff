// Command loadingredients bulk-loads the ingredient catalog from a JSON
// file into the configured database.
//
//	loadingredients --file data/ingredients.json
//
// The file is either a plain list of {"name", "measurement_unit"} objects
// or a fixture list whose entries carry those keys under "fields". Pairs
// already in the catalog are skipped, so the command can be re-run.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/sakif/foodgram/internal/config"
	"github.com/sakif/foodgram/internal/model"
	sqliteRepo "github.com/sakif/foodgram/internal/repository/sqlite"
	"github.com/sakif/foodgram/internal/service"
)

func main() {
	file := flag.String("file", "data/ingredients.json", "JSON file with the ingredient catalog")
	dbPath := flag.String("db", "", "database path (defaults to the configured one)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(*file, *dbPath, logger); err != nil {
		logger.Error("loading ingredients failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(file, dbPath string, logger *slog.Logger) error {
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		dbPath = cfg.Database.Path
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file, err)
	}
	defer f.Close()

	items, err := parseIngredients(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", file, err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqliteRepo.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	inserted, err := service.NewIngredientService(db, logger).Import(ctx, items)
	if err != nil {
		return err
	}
	logger.Info("done",
		slog.String("file", file),
		slog.Int("read", len(items)),
		slog.Int("inserted", inserted),
		slog.Int("skipped", len(items)-inserted),
	)
	return nil
}

// catalogEntry accepts both layouts: the keys at the top level, or nested
// under "fields".
type catalogEntry struct {
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
	Fields          *struct {
		Name            string `json:"name"`
		MeasurementUnit string `json:"measurement_unit"`
	} `json:"fields"`
}

func parseIngredients(r io.Reader) ([]model.Ingredient, error) {
	var entries []catalogEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}

	items := make([]model.Ingredient, 0, len(entries))
	for _, e := range entries {
		if e.Fields != nil {
			e.Name, e.MeasurementUnit = e.Fields.Name, e.Fields.MeasurementUnit
		}
		items = append(items, model.Ingredient{Name: e.Name, MeasurementUnit: e.MeasurementUnit})
	}
	return items, nil
}
