// Package service holds the business rules of foodgram.
//
// Handlers call services with plain values and get domain errors back
// (package apperror); services talk to storage only through the interfaces
// in package repository. Nothing here knows about HTTP or SQL, so the same
// rules serve the HTTP API, the ingredient loader and the tests, which run
// against in-memory fakes.
package service

import (
	"github.com/sakif/foodgram/internal/model"
)

// MediaStore is the part of media.Store the services use.
type MediaStore interface {
	SaveDataURI(kind, field, dataURI string) (string, error)
	Thumbnail(rel string) error
	Delete(rel string) error
	URL(rel string) string
}

// Pagination defaults shared by list endpoints.
const (
	DefaultListLimit = 6
	MaxListLimit     = 100
)

func shortRecipe(r *model.Recipe, media MediaStore) model.ShortRecipe {
	return model.ShortRecipe{
		ID:          r.ID,
		Name:        r.Name,
		Image:       media.URL(r.Image),
		CookingTime: r.CookingTime,
	}
}
