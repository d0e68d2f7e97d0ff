// Package repository declares the storage contracts the service layer
// depends on. internal/repository/sqlite is the production implementation;
// service tests use in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/foodgram/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// RecipeFilter narrows a recipe listing. Favorited and InCart are only
// honoured when ViewerID is set; anonymous listings ignore them.
type RecipeFilter struct {
	ListOptions
	AuthorID  int64 // 0 means any author
	ViewerID  int64 // 0 means anonymous
	Favorited *bool
	InCart    *bool
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context, opts ListOptions) ([]model.User, int, error)
	UpsertGitHubUser(ctx context.Context, user *model.User) error
	UpdateAvatar(ctx context.Context, id int64, avatar string) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// IngredientCatalog is the lookup the ingredient validator needs.
type IngredientCatalog interface {
	ExistingIngredientIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
}

type IngredientRepository interface {
	IngredientCatalog
	CreateIngredients(ctx context.Context, items []model.Ingredient) (int, error)
	GetIngredient(ctx context.Context, id int64) (*model.Ingredient, error)
	SearchIngredients(ctx context.Context, prefix string) ([]model.Ingredient, error)
}

// RecipeRepository persists recipes together with their ingredient links.
// Create and Update each run in a single transaction and replace the whole
// link set.
type RecipeRepository interface {
	CreateRecipe(ctx context.Context, recipe *model.Recipe, ingredients map[int64]int) error
	UpdateRecipe(ctx context.Context, recipe *model.Recipe, ingredients map[int64]int) error
	GetRecipe(ctx context.Context, id int64) (*model.Recipe, error)
	DeleteRecipe(ctx context.Context, id int64) error
	ListRecipes(ctx context.Context, filter RecipeFilter) ([]model.Recipe, int, error)
	ListRecipesByAuthor(ctx context.Context, authorID int64, limit int) ([]model.Recipe, int, error)
	RecipeIngredients(ctx context.Context, recipeID int64) ([]model.IngredientAmount, error)
	RecipeNameTaken(ctx context.Context, authorID int64, name string, exceptID int64) (bool, error)
	Flags(ctx context.Context, viewerID int64, recipeIDs []int64) (map[int64]model.RecipeFlags, error)
}

// RelationRepository stores favorite and cart memberships. AddRelation
// returns an apperror.ErrAlreadyExists error when the unique constraint
// rejects the row.
type RelationRepository interface {
	HasRelation(ctx context.Context, kind model.RelationKind, userID, recipeID int64) (bool, error)
	AddRelation(ctx context.Context, kind model.RelationKind, userID, recipeID int64) error
	RemoveRelation(ctx context.Context, kind model.RelationKind, userID, recipeID int64) (bool, error)
}

type SubscriptionRepository interface {
	IsSubscribed(ctx context.Context, subscriberID, authorID int64) (bool, error)
	Subscribe(ctx context.Context, subscriberID, authorID int64) error
	Unsubscribe(ctx context.Context, subscriberID, authorID int64) (bool, error)
	SubscribedAuthors(ctx context.Context, subscriberID int64, opts ListOptions) ([]model.User, int, error)
	SubscribedAmong(ctx context.Context, subscriberID int64, authorIDs []int64) (map[int64]bool, error)
}

type ShoppingRepository interface {
	CartRecipes(ctx context.Context, userID int64) ([]model.CartRecipe, error)
	IngredientLines(ctx context.Context, recipeIDs []int64) ([]model.IngredientLine, error)
}
