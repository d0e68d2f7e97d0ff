// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// The driver is modernc.org/sqlite, a pure Go translation of SQLite; tests
// run against ":memory:" databases.
//
// CONSTRAINTS ARE THE SOURCE OF TRUTH:
// Every uniqueness rule of the domain (one favorite per user and recipe, one
// subscription per pair, unique ingredient per recipe, unique (name, unit)
// ingredient) is declared in the schema. Services may check first to give a
// friendly error early, but a racing insert is always rejected here and
// translated into the same apperror (see errors.go).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/foodgram/internal/model"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath, applies connection pragmas and runs
// migrations.
//
// dbPath examples:
//   - "data/foodgram.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
//
// SINGLE CONNECTION:
// SQLite serialises writers anyway, and PRAGMA settings as well as ":memory:"
// databases are per connection. Capping the pool at one connection keeps
// foreign_keys=ON in force for every statement and gives tests one shared
// in-memory database. Code running inside withTx must therefore only use the
// *sql.Tx it was handed, never db.conn.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. Cascades and ON DELETE SET
	// NULL on recipes.author_id depend on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn inside a transaction. The transaction is rolled back on any
// error returned by fn (or a panic) and committed otherwise.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			email         TEXT NOT NULL UNIQUE,
			username      TEXT NOT NULL UNIQUE,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			avatar        TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// GitHub sign-in arrived after password accounts; NULL for password-only users.
	if err := db.addColumnIfNotExists("users", "github_id", "INTEGER"); err != nil {
		return fmt.Errorf("adding github_id to users: %w", err)
	}
	_, err = db.conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id ON users(github_id);
	`)
	if err != nil {
		return fmt.Errorf("creating users github_id index: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS ingredients (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			name             TEXT NOT NULL,
			measurement_unit TEXT NOT NULL,
			UNIQUE (name, measurement_unit)
		);
		CREATE INDEX IF NOT EXISTS idx_ingredients_name ON ingredients(name);
	`)
	if err != nil {
		return fmt.Errorf("creating ingredients table: %w", err)
	}

	_, err = db.conn.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS recipes (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			author_id    INTEGER REFERENCES users(id) ON DELETE SET NULL,
			name         TEXT NOT NULL,
			text         TEXT NOT NULL,
			cooking_time INTEGER NOT NULL CHECK (cooking_time BETWEEN %d AND %d),
			image        TEXT NOT NULL DEFAULT '',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (name, author_id)
		);
		CREATE INDEX IF NOT EXISTS idx_recipes_created_at ON recipes(created_at);
		CREATE INDEX IF NOT EXISTS idx_recipes_author_id ON recipes(author_id);
	`, model.MinCookingTime, model.MaxCookingTime))
	if err != nil {
		return fmt.Errorf("creating recipes table: %w", err)
	}

	_, err = db.conn.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS recipe_ingredients (
			recipe_id     INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
			ingredient_id INTEGER NOT NULL REFERENCES ingredients(id) ON DELETE RESTRICT,
			amount        INTEGER NOT NULL CHECK (amount BETWEEN %d AND %d),
			PRIMARY KEY (recipe_id, ingredient_id)
		);
		CREATE INDEX IF NOT EXISTS idx_recipe_ingredients_ingredient ON recipe_ingredients(ingredient_id);
	`, model.MinIngredientAmount, model.MaxIngredientAmount))
	if err != nil {
		return fmt.Errorf("creating recipe_ingredients table: %w", err)
	}

	for _, table := range relationTables {
		_, err = db.conn.Exec(fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				recipe_id  INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (user_id, recipe_id)
			);
			CREATE INDEX IF NOT EXISTS idx_%[1]s_recipe_id ON %[1]s(recipe_id);
		`, table))
		if err != nil {
			return fmt.Errorf("creating %s table: %w", table, err)
		}
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS subscriptions (
			subscriber_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			author_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (subscriber_id, author_id),
			CHECK (subscriber_id <> author_id)
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_author_id ON subscriptions(author_id);
	`)
	if err != nil {
		return fmt.Errorf("creating subscriptions table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// ALTER TABLE migrations stay idempotent this way.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// placeholders returns "?, ?, ?" for n arguments and the ids as []any.
func placeholders(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	marks := make([]byte, 0, len(ids)*3)
	for i, id := range ids {
		if i > 0 {
			marks = append(marks, ", "...)
		}
		marks = append(marks, '?')
		args[i] = id
	}
	return string(marks), args
}
