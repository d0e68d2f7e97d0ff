package model

// RelationKind names a user-to-recipe relation table.
type RelationKind string

const (
	RelationFavorite RelationKind = "favorite"
	RelationCart     RelationKind = "cart"
)

func (k RelationKind) Valid() bool {
	return k == RelationFavorite || k == RelationCart
}

// Label is the phrase used in user-facing messages.
func (k RelationKind) Label() string {
	switch k {
	case RelationFavorite:
		return "favorites"
	case RelationCart:
		return "shopping cart"
	default:
		return string(k)
	}
}
