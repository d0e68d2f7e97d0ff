// Package model defines the data structures used throughout the application.
package model

import "time"

// Timestamps is embedded by every persisted entity. The repository fills it
// on insert and refreshes UpdatedAt on update.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Touch sets both timestamps for a new row, or only UpdatedAt for an
// existing one.
func (t *Timestamps) Touch(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}
