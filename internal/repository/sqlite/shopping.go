package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

var _ repository.ShoppingRepository = (*DB)(nil)

// CartRecipes returns the recipes in userID's cart with their author's
// username, ordered by recipe name.
func (db *DB) CartRecipes(ctx context.Context, userID int64) ([]model.CartRecipe, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT r.id, r.name, COALESCE(u.username, '')
		 FROM `+cartsTable+` c
		 JOIN recipes r ON r.id = c.recipe_id
		 LEFT JOIN users u ON u.id = r.author_id
		 WHERE c.user_id = ?
		 ORDER BY r.name, r.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing cart of user %d: %w", userID, err)
	}
	defer rows.Close()

	recipes := []model.CartRecipe{}
	for rows.Next() {
		var cr model.CartRecipe
		if err := rows.Scan(&cr.ID, &cr.Name, &cr.AuthorName); err != nil {
			return nil, fmt.Errorf("sqlite: scanning cart row: %w", err)
		}
		recipes = append(recipes, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating cart: %w", err)
	}
	return recipes, nil
}

// IngredientLines returns every ingredient link of the given recipes joined
// with the catalog. Aggregation happens in the service layer.
func (db *DB) IngredientLines(ctx context.Context, recipeIDs []int64) ([]model.IngredientLine, error) {
	lines := []model.IngredientLine{}
	if len(recipeIDs) == 0 {
		return lines, nil
	}

	marks, args := placeholders(recipeIDs)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT ri.recipe_id, i.name, i.measurement_unit, ri.amount
		 FROM recipe_ingredients ri
		 JOIN ingredients i ON i.id = ri.ingredient_id
		 WHERE ri.recipe_id IN (`+marks+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing cart ingredients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l model.IngredientLine
		if err := rows.Scan(&l.RecipeID, &l.Name, &l.MeasurementUnit, &l.Amount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning cart ingredient: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating cart ingredients: %w", err)
	}
	return lines, nil
}
