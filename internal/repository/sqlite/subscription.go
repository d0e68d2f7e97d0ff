package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

var _ repository.SubscriptionRepository = (*DB)(nil)

func (db *DB) IsSubscribed(ctx context.Context, subscriberID, authorID int64) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE subscriber_id = ? AND author_id = ?)`,
		subscriberID, authorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking subscription %d->%d: %w", subscriberID, authorID, err)
	}
	return exists, nil
}

// Subscribe inserts the pair. The schema rejects duplicates (UNIQUE) and
// self-subscriptions (CHECK); both come back as domain errors.
func (db *DB) Subscribe(ctx context.Context, subscriberID, authorID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO subscriptions (subscriber_id, author_id, created_at) VALUES (?, ?, ?)`,
		subscriberID, authorID, time.Now().UTC(),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.AlreadyExists("you are already subscribed to this user")
		case isCheckViolation(err):
			return apperror.SelfReference("you cannot subscribe to yourself")
		case isForeignKeyViolation(err):
			return apperror.NotFound("user", authorID)
		}
		return fmt.Errorf("sqlite: subscribing %d to %d: %w", subscriberID, authorID, err)
	}
	return nil
}

func (db *DB) Unsubscribe(ctx context.Context, subscriberID, authorID int64) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE subscriber_id = ? AND author_id = ?`,
		subscriberID, authorID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: unsubscribing %d from %d: %w", subscriberID, authorID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// SubscribedAuthors returns one page of the authors subscriberID follows,
// ordered by username, plus the total count.
func (db *DB) SubscribedAuthors(ctx context.Context, subscriberID int64, opts repository.ListOptions) ([]model.User, int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = ?`, subscriberID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting subscriptions of %d: %w", subscriberID, err)
	}

	limit, offset := pageBounds(opts)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.email, u.username, u.first_name, u.last_name, u.avatar,
		        u.password_hash, u.github_id, u.created_at, u.updated_at
		 FROM subscriptions s
		 JOIN users u ON u.id = s.author_id
		 WHERE s.subscriber_id = ?
		 ORDER BY u.username
		 LIMIT ? OFFSET ?`,
		subscriberID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing subscriptions of %d: %w", subscriberID, err)
	}
	defer rows.Close()

	authors := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning author row: %w", err)
		}
		authors = append(authors, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating authors: %w", err)
	}
	return authors, total, nil
}

// SubscribedAmong reports which of authorIDs subscriberID follows.
func (db *DB) SubscribedAmong(ctx context.Context, subscriberID int64, authorIDs []int64) (map[int64]bool, error) {
	subscribed := make(map[int64]bool, len(authorIDs))
	if subscriberID == 0 || len(authorIDs) == 0 {
		return subscribed, nil
	}

	marks, idArgs := placeholders(authorIDs)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT author_id FROM subscriptions WHERE subscriber_id = ? AND author_id IN (`+marks+`)`,
		append([]any{subscriberID}, idArgs...)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking subscriptions of %d: %w", subscriberID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning subscription: %w", err)
		}
		subscribed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating subscriptions: %w", err)
	}
	return subscribed, nil
}
