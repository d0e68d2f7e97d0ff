package model

import "time"

// IngredientLine is one recipe-ingredient link of a recipe in the cart,
// already joined with the ingredient's name and unit.
type IngredientLine struct {
	RecipeID        int64
	Name            string
	MeasurementUnit string
	Amount          int
}

// CartRecipe is a recipe in the cart with its author's display name.
type CartRecipe struct {
	ID         int64
	Name       string
	AuthorName string // empty when the author was deleted
}

type ShoppingItem struct {
	Name            string
	MeasurementUnit string
	TotalAmount     int
}

type ShoppingList struct {
	Items       []ShoppingItem
	Recipes     []CartRecipe
	GeneratedAt time.Time
}
