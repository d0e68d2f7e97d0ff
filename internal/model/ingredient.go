package model

import "strings"

type Ingredient struct {
	ID              int64  `json:"id"               db:"id"`
	Name            string `json:"name"             db:"name"`
	MeasurementUnit string `json:"measurement_unit" db:"measurement_unit"`
}

// Normalize trims and lowercases name and unit so that (name, unit)
// uniqueness holds regardless of how the catalog was typed in.
func (i *Ingredient) Normalize() {
	i.Name = strings.ToLower(strings.TrimSpace(i.Name))
	i.MeasurementUnit = strings.ToLower(strings.TrimSpace(i.MeasurementUnit))
}

// IngredientAmount is an ingredient link as shown inside a recipe.
type IngredientAmount struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
	Amount          int    `json:"amount"`
}
