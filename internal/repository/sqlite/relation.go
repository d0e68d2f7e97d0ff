package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

var _ repository.RelationRepository = (*DB)(nil)

const (
	favoritesTable = "favorites"
	cartsTable     = "carts"
)

// relationTables share one schema: (user_id, recipe_id) UNIQUE.
var relationTables = []string{favoritesTable, cartsTable}

// tableFor maps a relation kind to its table. Only these literals ever reach
// the SQL text.
func tableFor(kind model.RelationKind) (string, error) {
	switch kind {
	case model.RelationFavorite:
		return favoritesTable, nil
	case model.RelationCart:
		return cartsTable, nil
	default:
		return "", fmt.Errorf("sqlite: unknown relation kind %q", kind)
	}
}

func (db *DB) HasRelation(ctx context.Context, kind model.RelationKind, userID, recipeID int64) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	var exists bool
	err = db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE user_id = ? AND recipe_id = ?)`,
		userID, recipeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking %s of user %d: %w", table, userID, err)
	}
	return exists, nil
}

// AddRelation inserts the pair. The UNIQUE constraint decides races: the
// losing insert comes back as apperror.ErrAlreadyExists.
func (db *DB) AddRelation(ctx context.Context, kind model.RelationKind, userID, recipeID int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO `+table+` (user_id, recipe_id, created_at) VALUES (?, ?, ?)`,
		userID, recipeID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.AlreadyExists(fmt.Sprintf("recipe is already in your %s", kind.Label()))
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("recipe", recipeID)
		}
		return fmt.Errorf("sqlite: adding recipe %d to %s: %w", recipeID, table, err)
	}
	return nil
}

// RemoveRelation deletes the pair and reports whether it existed.
func (db *DB) RemoveRelation(ctx context.Context, kind model.RelationKind, userID, recipeID int64) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE user_id = ? AND recipe_id = ?`,
		userID, recipeID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: removing recipe %d from %s: %w", recipeID, table, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
