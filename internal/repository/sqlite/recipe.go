package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

var _ repository.RecipeRepository = (*DB)(nil)

const recipeColumns = `r.id, r.author_id, r.name, r.text, r.cooking_time, r.image, r.created_at, r.updated_at`

func scanRecipe(row rowScanner) (*model.Recipe, error) {
	var (
		r        model.Recipe
		authorID sql.NullInt64
	)
	err := row.Scan(
		&r.ID,
		&authorID,
		&r.Name,
		&r.Text,
		&r.CookingTime,
		&r.Image,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if authorID.Valid {
		id := authorID.Int64
		r.AuthorID = &id
	}
	return &r, nil
}

func recipeNameConflict() error {
	return apperror.Conflict("recipe", "you already have a recipe with this name")
}

// CreateRecipe inserts the recipe and its ingredient links in one
// transaction. On success recipe.ID and timestamps are set.
func (db *DB) CreateRecipe(ctx context.Context, recipe *model.Recipe, ingredients map[int64]int) error {
	recipe.Touch(time.Now().UTC())

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var authorID sql.NullInt64
		if recipe.AuthorID != nil {
			authorID = nullableID(*recipe.AuthorID)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO recipes (author_id, name, text, cooking_time, image, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			authorID,
			recipe.Name,
			recipe.Text,
			recipe.CookingTime,
			recipe.Image,
			recipe.CreatedAt,
			recipe.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return recipeNameConflict()
			}
			if isCheckViolation(err) {
				return apperror.Value("cooking_time", "cooking time is out of range")
			}
			return fmt.Errorf("sqlite: inserting recipe %q: %w", recipe.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading recipe id: %w", err)
		}
		if err := replaceLinks(ctx, tx, id, ingredients); err != nil {
			return err
		}
		recipe.ID = id
		return nil
	})
}

// UpdateRecipe rewrites the recipe's editable fields and replaces its whole
// ingredient link set in one transaction.
func (db *DB) UpdateRecipe(ctx context.Context, recipe *model.Recipe, ingredients map[int64]int) error {
	recipe.UpdatedAt = time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE recipes
			 SET name = ?, text = ?, cooking_time = ?, image = ?, updated_at = ?
			 WHERE id = ?`,
			recipe.Name,
			recipe.Text,
			recipe.CookingTime,
			recipe.Image,
			recipe.UpdatedAt,
			recipe.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return recipeNameConflict()
			}
			if isCheckViolation(err) {
				return apperror.Value("cooking_time", "cooking time is out of range")
			}
			return fmt.Errorf("sqlite: updating recipe %d: %w", recipe.ID, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("recipe", recipe.ID)
		}
		return replaceLinks(ctx, tx, recipe.ID, ingredients)
	})
}

// replaceLinks deletes every link of the recipe and inserts one row per
// entry. Entries are written in id order so failures are reproducible.
func replaceLinks(ctx context.Context, tx *sql.Tx, recipeID int64, ingredients map[int64]int) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recipe_ingredients WHERE recipe_id = ?`, recipeID,
	); err != nil {
		return fmt.Errorf("sqlite: clearing ingredients of recipe %d: %w", recipeID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recipe_ingredients (recipe_id, ingredient_id, amount) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("sqlite: preparing link insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(ingredients))
	for id := range ingredients {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, recipeID, id, ingredients[id]); err != nil {
			switch {
			case isForeignKeyViolation(err):
				return apperror.MissingReferences("ingredients", "ingredient", []int64{id})
			case isCheckViolation(err):
				return apperror.Value("amount",
					fmt.Sprintf("amount for ingredient %d must be between %d and %d",
						id, model.MinIngredientAmount, model.MaxIngredientAmount))
			case isUniqueViolation(err):
				return apperror.Duplicate("ingredients", []int64{id})
			}
			return fmt.Errorf("sqlite: linking ingredient %d to recipe %d: %w", id, recipeID, err)
		}
	}
	return nil
}

func (db *DB) GetRecipe(ctx context.Context, id int64) (*model.Recipe, error) {
	r, err := scanRecipe(db.conn.QueryRowContext(ctx,
		`SELECT `+recipeColumns+` FROM recipes r WHERE r.id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("recipe", id)
		}
		return nil, fmt.Errorf("sqlite: getting recipe %d: %w", id, err)
	}
	return r, nil
}

// DeleteRecipe removes the recipe. Links, favorites and cart entries go with
// it through ON DELETE CASCADE.
func (db *DB) DeleteRecipe(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting recipe %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("recipe", id)
	}
	return nil
}

// ListRecipes returns one page of recipes, newest first, and the number of
// recipes matching the filter.
func (db *DB) ListRecipes(ctx context.Context, filter repository.RecipeFilter) ([]model.Recipe, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.AuthorID != 0 {
		where = append(where, "r.author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.ViewerID != 0 {
		if filter.Favorited != nil {
			where = append(where, membershipClause(favoritesTable, *filter.Favorited))
			args = append(args, filter.ViewerID)
		}
		if filter.InCart != nil {
			where = append(where, membershipClause(cartsTable, *filter.InCart))
			args = append(args, filter.ViewerID)
		}
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recipes r`+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting recipes: %w", err)
	}

	limit, offset := pageBounds(filter.ListOptions)
	recipes, err := db.queryRecipes(ctx,
		`SELECT `+recipeColumns+` FROM recipes r`+clause+`
		 ORDER BY r.created_at DESC, r.id DESC
		 LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	return recipes, total, nil
}

func membershipClause(table string, member bool) string {
	exists := fmt.Sprintf("EXISTS (SELECT 1 FROM %s m WHERE m.recipe_id = r.id AND m.user_id = ?)", table)
	if member {
		return exists
	}
	return "NOT " + exists
}

// ListRecipesByAuthor returns up to limit of the author's newest recipes and
// the author's total recipe count. A limit <= 0 returns all of them.
func (db *DB) ListRecipesByAuthor(ctx context.Context, authorID int64, limit int) ([]model.Recipe, int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recipes WHERE author_id = ?`, authorID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting recipes of user %d: %w", authorID, err)
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	recipes, err := db.queryRecipes(ctx,
		`SELECT `+recipeColumns+` FROM recipes r
		 WHERE r.author_id = ?
		 ORDER BY r.created_at DESC, r.id DESC
		 LIMIT ?`,
		authorID, limit,
	)
	if err != nil {
		return nil, 0, err
	}
	return recipes, total, nil
}

func (db *DB) queryRecipes(ctx context.Context, query string, args ...any) ([]model.Recipe, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing recipes: %w", err)
	}
	defer rows.Close()

	recipes := []model.Recipe{}
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning recipe row: %w", err)
		}
		recipes = append(recipes, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating recipes: %w", err)
	}
	return recipes, nil
}

// RecipeIngredients returns the recipe's links joined with the catalog,
// ordered by ingredient name.
func (db *DB) RecipeIngredients(ctx context.Context, recipeID int64) ([]model.IngredientAmount, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT i.id, i.name, i.measurement_unit, ri.amount
		 FROM recipe_ingredients ri
		 JOIN ingredients i ON i.id = ri.ingredient_id
		 WHERE ri.recipe_id = ?
		 ORDER BY i.name, i.measurement_unit`,
		recipeID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing ingredients of recipe %d: %w", recipeID, err)
	}
	defer rows.Close()

	items := []model.IngredientAmount{}
	for rows.Next() {
		var it model.IngredientAmount
		if err := rows.Scan(&it.ID, &it.Name, &it.MeasurementUnit, &it.Amount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning recipe ingredient: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating recipe ingredients: %w", err)
	}
	return items, nil
}

// RecipeNameTaken reports whether the author already has another recipe
// called name. exceptID excludes the recipe being edited.
func (db *DB) RecipeNameTaken(ctx context.Context, authorID int64, name string, exceptID int64) (bool, error) {
	var taken bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM recipes WHERE author_id = ? AND name = ? AND id <> ?)`,
		authorID, name, exceptID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking recipe name: %w", err)
	}
	return taken, nil
}

// Flags computes is_favorited / is_in_shopping_cart of each recipe for
// viewerID. Anonymous viewers get an empty map.
func (db *DB) Flags(ctx context.Context, viewerID int64, recipeIDs []int64) (map[int64]model.RecipeFlags, error) {
	flags := make(map[int64]model.RecipeFlags, len(recipeIDs))
	if viewerID == 0 || len(recipeIDs) == 0 {
		return flags, nil
	}

	marks, idArgs := placeholders(recipeIDs)
	args := append([]any{viewerID, viewerID}, idArgs...)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT r.id,
		        EXISTS (SELECT 1 FROM `+favoritesTable+` f WHERE f.recipe_id = r.id AND f.user_id = ?),
		        EXISTS (SELECT 1 FROM `+cartsTable+` c WHERE c.recipe_id = r.id AND c.user_id = ?)
		 FROM recipes r WHERE r.id IN (`+marks+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: computing recipe flags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			f  model.RecipeFlags
		)
		if err := rows.Scan(&id, &f.Favorited, &f.InCart); err != nil {
			return nil, fmt.Errorf("sqlite: scanning recipe flags: %w", err)
		}
		flags[id] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating recipe flags: %w", err)
	}
	return flags, nil
}
