package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

var _ repository.IngredientRepository = (*DB)(nil)

// CreateIngredients bulk-loads catalog entries in one transaction. Entries
// are normalized first; pairs that already exist are skipped. It returns
// the number of rows actually inserted.
func (db *DB) CreateIngredients(ctx context.Context, items []model.Ingredient) (int, error) {
	created := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO ingredients (name, measurement_unit) VALUES (?, ?)
			 ON CONFLICT (name, measurement_unit) DO NOTHING`,
		)
		if err != nil {
			return fmt.Errorf("sqlite: preparing ingredient insert: %w", err)
		}
		defer stmt.Close()

		for i := range items {
			items[i].Normalize()
			if items[i].Name == "" || items[i].MeasurementUnit == "" {
				continue
			}
			res, err := stmt.ExecContext(ctx, items[i].Name, items[i].MeasurementUnit)
			if err != nil {
				return fmt.Errorf("sqlite: inserting ingredient %q: %w", items[i].Name, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("sqlite: checking rows affected: %w", err)
			}
			created += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (db *DB) GetIngredient(ctx context.Context, id int64) (*model.Ingredient, error) {
	var ing model.Ingredient
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, measurement_unit FROM ingredients WHERE id = ?`, id,
	).Scan(&ing.ID, &ing.Name, &ing.MeasurementUnit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("ingredient", id)
		}
		return nil, fmt.Errorf("sqlite: getting ingredient %d: %w", id, err)
	}
	return &ing, nil
}

// SearchIngredients returns ingredients whose name starts with prefix,
// ignoring case, ordered by name. An empty prefix returns the whole catalog.
//
// Names are stored lowercased, so lowering the prefix makes the match
// case-insensitive for non-ASCII names too, which LIKE alone does not.
func (db *DB) SearchIngredients(ctx context.Context, prefix string) ([]model.Ingredient, error) {
	pattern := escapeLike(strings.ToLower(strings.TrimSpace(prefix))) + "%"

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, measurement_unit FROM ingredients
		 WHERE name LIKE ? ESCAPE '\'
		 ORDER BY name, measurement_unit`,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching ingredients: %w", err)
	}
	defer rows.Close()

	ingredients := []model.Ingredient{}
	for rows.Next() {
		var ing model.Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.MeasurementUnit); err != nil {
			return nil, fmt.Errorf("sqlite: scanning ingredient row: %w", err)
		}
		ingredients = append(ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ingredients: %w", err)
	}
	return ingredients, nil
}

// ExistingIngredientIDs reports which of ids are present in the catalog.
func (db *DB) ExistingIngredientIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	marks, args := placeholders(ids)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM ingredients WHERE id IN (`+marks+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking ingredient ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning ingredient id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ingredient ids: %w", err)
	}
	return found, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
