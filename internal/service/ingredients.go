package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

const ingredientsField = "ingredients"

// jsonNumber is satisfied by json.Number from both encoding/json and
// goccy/go-json, which is what a decoder with UseNumber produces.
type jsonNumber interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// =========================================================================
// INGREDIENT LIST VALIDATION
// =========================================================================

// ValidateIngredients checks a raw ingredient list as decoded from JSON and
// returns amount by ingredient id.
//
// Shape, type and range problems are reported for the first bad entry.
// Duplicate and missing ids are collected over the whole list, in that
// order, so the error names every offending id.
func ValidateIngredients(ctx context.Context, raw any, catalog repository.IngredientCatalog) (map[int64]int, error) {
	entries, ok := raw.([]any)
	if !ok || len(entries) == 0 {
		return nil, apperror.Schema(ingredientsField, "ingredients must be a non-empty list")
	}

	ids := make([]int64, 0, len(entries))
	amounts := make(map[int64]int, len(entries))
	for i, entry := range entries {
		id, amount, err := parseIngredientEntry(i, entry)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		amounts[id] = amount
	}

	if dups := duplicateIDs(ids); len(dups) > 0 {
		return nil, apperror.Duplicate(ingredientsField, dups)
	}

	existing, err := catalog.ExistingIngredientIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service/ingredients: checking catalog: %w", err)
	}
	var missing []int64
	for _, id := range ids {
		if !existing[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, apperror.MissingReferences(ingredientsField, "ingredient", missing)
	}

	return amounts, nil
}

func parseIngredientEntry(i int, entry any) (int64, int, error) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return 0, 0, apperror.Schema(ingredientsField,
			fmt.Sprintf("ingredients[%d] must be an object with id and amount", i))
	}
	rawID, hasID := obj["id"]
	rawAmount, hasAmount := obj["amount"]
	if !hasID || !hasAmount {
		return 0, 0, apperror.Schema(ingredientsField,
			fmt.Sprintf("ingredients[%d] must have both id and amount", i))
	}

	id, ok := integerValue(rawID)
	if !ok {
		return 0, 0, apperror.Type(ingredientsField,
			fmt.Sprintf("ingredients[%d].id must be an integer", i))
	}

	amount, ok := numericValue(rawAmount)
	if !ok {
		return 0, 0, apperror.Type(ingredientsField,
			fmt.Sprintf("ingredients[%d].amount must be a number", i))
	}
	if amount <= 0 {
		return 0, 0, apperror.Value(ingredientsField,
			fmt.Sprintf("ingredients[%d].amount must be greater than 0", i))
	}
	if amount != math.Trunc(amount) {
		return 0, 0, apperror.Value(ingredientsField,
			fmt.Sprintf("ingredients[%d].amount must be a whole number", i))
	}
	if amount < model.MinIngredientAmount || amount > model.MaxIngredientAmount {
		return 0, 0, apperror.Value(ingredientsField,
			fmt.Sprintf("ingredients[%d].amount must be between %d and %d",
				i, model.MinIngredientAmount, model.MaxIngredientAmount))
	}

	return id, int(amount), nil
}

// integerValue accepts JSON integers only. A number written with a fraction
// or exponent ("1.0", "1e3") is not an id.
func integerValue(v any) (int64, bool) {
	switch n := v.(type) {
	case jsonNumber:
		s := n.String()
		if strings.ContainsAny(s, ".eE") {
			return 0, false
		}
		id, err := n.Int64()
		return id, err == nil
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		// Decoders without UseNumber cannot tell 1 from 1.0.
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case jsonNumber:
		f, err := n.Float64()
		return f, err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, !math.IsInf(n, 0) && !math.IsNaN(n)
	default:
		return 0, false
	}
}

// duplicateIDs returns every id that occurs more than once, each listed
// once, in the order of its second occurrence.
func duplicateIDs(ids []int64) []int64 {
	seen := make(map[int64]int, len(ids))
	var dups []int64
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id)
		}
	}
	return dups
}

// =========================================================================
// INGREDIENT CATALOG
// =========================================================================

type IngredientService struct {
	repo   repository.IngredientRepository
	logger *slog.Logger
}

func NewIngredientService(repo repository.IngredientRepository, logger *slog.Logger) *IngredientService {
	return &IngredientService{repo: repo, logger: logger}
}

// Search lists ingredients whose name starts with prefix, ignoring case.
// An empty prefix lists the whole catalog.
func (s *IngredientService) Search(ctx context.Context, prefix string) ([]model.Ingredient, error) {
	items, err := s.repo.SearchIngredients(ctx, strings.ToLower(strings.TrimSpace(prefix)))
	if err != nil {
		return nil, fmt.Errorf("service/ingredients: searching %q: %w", prefix, err)
	}
	return items, nil
}

func (s *IngredientService) Get(ctx context.Context, id int64) (*model.Ingredient, error) {
	return s.repo.GetIngredient(ctx, id)
}

// Import bulk-loads catalog entries, skipping (name, unit) pairs that
// already exist. Returns how many rows were inserted.
func (s *IngredientService) Import(ctx context.Context, items []model.Ingredient) (int, error) {
	for i := range items {
		items[i].Normalize()
		if items[i].Name == "" || items[i].MeasurementUnit == "" {
			return 0, apperror.ValidationFailed("ingredients",
				fmt.Sprintf("entry %d needs both name and measurement_unit", i))
		}
	}
	n, err := s.repo.CreateIngredients(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("service/ingredients: importing: %w", err)
	}
	s.logger.Info("ingredients imported",
		slog.Int("submitted", len(items)),
		slog.Int("inserted", n),
	)
	return n, nil
}
