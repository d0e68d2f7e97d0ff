package model

// Bounds shared by request validation and the storage CHECK constraints.
const (
	MinCookingTime      = 1
	MaxCookingTime      = 32000
	MinIngredientAmount = 1
	MaxIngredientAmount = 32000
)

type Recipe struct {
	ID          int64  `json:"id"           db:"id"`
	AuthorID    *int64 `json:"author"       db:"author_id"` // nil once the author account is deleted
	Name        string `json:"name"         db:"name"`
	Text        string `json:"text"         db:"text"`
	CookingTime int    `json:"cooking_time" db:"cooking_time"`
	Image       string `json:"image"        db:"image"` // media-relative path
	Timestamps
}

// IsAuthoredBy reports whether userID owns the recipe. Orphaned recipes have
// no owner.
func (r *Recipe) IsAuthoredBy(userID int64) bool {
	return r.AuthorID != nil && *r.AuthorID == userID
}

// RecipeFlags holds the per-viewer booleans of a recipe.
type RecipeFlags struct {
	Favorited bool
	InCart    bool
}

// RecipeView is the full recipe representation for one viewer.
type RecipeView struct {
	ID               int64              `json:"id"`
	Author           *UserView          `json:"author"`
	Ingredients      []IngredientAmount `json:"ingredients"`
	IsFavorited      bool               `json:"is_favorited"`
	IsInShoppingCart bool               `json:"is_in_shopping_cart"`
	Name             string             `json:"name"`
	Image            string             `json:"image"`
	Text             string             `json:"text"`
	CookingTime      int                `json:"cooking_time"`
}

// ShortRecipe is the minimal projection used in relation responses and
// subscription lists.
type ShortRecipe struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	CookingTime int    `json:"cooking_time"`
}
