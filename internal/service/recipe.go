package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/media"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

const MaxRecipeNameLength = 256

// RecipeInput carries a create or update request. Nil pointers are fields
// the client left out; Ingredients is the raw decoded JSON value.
type RecipeInput struct {
	Name        *string
	Text        *string
	CookingTime *int
	Image       *string
	Ingredients any
}

type RecipeService struct {
	recipes repository.RecipeRepository
	catalog repository.IngredientCatalog
	users   *UserService
	media   MediaStore
	logger  *slog.Logger
}

func NewRecipeService(
	recipes repository.RecipeRepository,
	catalog repository.IngredientCatalog,
	users *UserService,
	media MediaStore,
	logger *slog.Logger,
) *RecipeService {
	return &RecipeService{
		recipes: recipes,
		catalog: catalog,
		users:   users,
		media:   media,
		logger:  logger,
	}
}

// =========================================================================
// WRITES
// =========================================================================

// Create validates in, stores the image and writes the recipe together with
// its ingredient links in one transaction. The thumbnail is produced after
// the commit; a failure there is logged and the recipe stays.
func (s *RecipeService) Create(ctx context.Context, authorID int64, in RecipeInput) (*model.RecipeView, error) {
	if in.Name == nil {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if in.Text == nil {
		return nil, apperror.ValidationFailed("text", "text is required")
	}
	if in.CookingTime == nil {
		return nil, apperror.ValidationFailed("cooking_time", "cooking_time is required")
	}
	if in.Image == nil || strings.TrimSpace(*in.Image) == "" {
		return nil, apperror.ValidationFailed("image", "image is required")
	}

	recipe := &model.Recipe{AuthorID: &authorID}
	if err := applyRecipeFields(recipe, in); err != nil {
		return nil, err
	}
	ingredients, err := ValidateIngredients(ctx, in.Ingredients, s.catalog)
	if err != nil {
		return nil, err
	}
	if err := s.checkNameFree(ctx, authorID, recipe.Name, 0); err != nil {
		return nil, err
	}

	rel, err := s.media.SaveDataURI(media.KindRecipe, "image", *in.Image)
	if err != nil {
		return nil, err
	}
	recipe.Image = rel

	if err := s.recipes.CreateRecipe(ctx, recipe, ingredients); err != nil {
		s.discard(rel)
		return nil, s.wrapWrite("creating", recipe, err)
	}
	s.afterCommit(rel)

	s.logger.Info("recipe created",
		slog.Int64("recipeID", recipe.ID),
		slog.Int64("authorID", authorID),
		slog.Int("ingredients", len(ingredients)),
	)
	return s.View(ctx, recipe, authorID)
}

// Update changes a recipe owned by userID. The ingredient list is required
// and replaces the previous set as a whole; other fields are optional.
func (s *RecipeService) Update(ctx context.Context, userID, recipeID int64, in RecipeInput) (*model.RecipeView, error) {
	recipe, err := s.recipes.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if !recipe.IsAuthoredBy(userID) {
		return nil, apperror.Forbidden("only the author can change this recipe")
	}

	if err := applyRecipeFields(recipe, in); err != nil {
		return nil, err
	}
	ingredients, err := ValidateIngredients(ctx, in.Ingredients, s.catalog)
	if err != nil {
		return nil, err
	}
	if err := s.checkNameFree(ctx, userID, recipe.Name, recipe.ID); err != nil {
		return nil, err
	}

	oldImage := recipe.Image
	newImage := ""
	if in.Image != nil && strings.TrimSpace(*in.Image) != "" {
		newImage, err = s.media.SaveDataURI(media.KindRecipe, "image", *in.Image)
		if err != nil {
			return nil, err
		}
		recipe.Image = newImage
	}

	if err := s.recipes.UpdateRecipe(ctx, recipe, ingredients); err != nil {
		s.discard(newImage)
		return nil, s.wrapWrite("updating", recipe, err)
	}
	if newImage != "" {
		s.discard(oldImage)
		s.afterCommit(newImage)
	}

	s.logger.Info("recipe updated",
		slog.Int64("recipeID", recipe.ID),
		slog.Int64("authorID", userID),
	)
	return s.View(ctx, recipe, userID)
}

func (s *RecipeService) Delete(ctx context.Context, userID, recipeID int64) error {
	recipe, err := s.recipes.GetRecipe(ctx, recipeID)
	if err != nil {
		return err
	}
	if !recipe.IsAuthoredBy(userID) {
		return apperror.Forbidden("only the author can delete this recipe")
	}
	if err := s.recipes.DeleteRecipe(ctx, recipeID); err != nil {
		return fmt.Errorf("service/recipe: deleting %d: %w", recipeID, err)
	}
	s.discard(recipe.Image)

	s.logger.Info("recipe deleted",
		slog.Int64("recipeID", recipeID),
		slog.Int64("authorID", userID),
	)
	return nil
}

// recipeName trims s, upper-cases its first letter and lower-cases the
// rest, so "apple PIE" and "Apple pie" name the same recipe.
func recipeName(s string) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// applyRecipeFields copies the non-nil fields of in onto r, normalising and
// range-checking them.
func applyRecipeFields(r *model.Recipe, in RecipeInput) error {
	if in.Name != nil {
		name := recipeName(*in.Name)
		if name == "" {
			return apperror.ValidationFailed("name", "name must not be empty")
		}
		if len([]rune(name)) > MaxRecipeNameLength {
			return apperror.ValidationFailed("name",
				fmt.Sprintf("name must be at most %d characters", MaxRecipeNameLength))
		}
		r.Name = name
	}
	if in.Text != nil {
		text := strings.TrimSpace(*in.Text)
		if text == "" {
			return apperror.ValidationFailed("text", "text must not be empty")
		}
		r.Text = text
	}
	if in.CookingTime != nil {
		t := *in.CookingTime
		if t < model.MinCookingTime || t > model.MaxCookingTime {
			return apperror.Value("cooking_time",
				fmt.Sprintf("cooking_time must be between %d and %d", model.MinCookingTime, model.MaxCookingTime))
		}
		r.CookingTime = t
	}
	return nil
}

// checkNameFree gives the duplicate-name error before any file is written.
// The (name, author) unique constraint still decides races.
func (s *RecipeService) checkNameFree(ctx context.Context, authorID int64, name string, exceptID int64) error {
	taken, err := s.recipes.RecipeNameTaken(ctx, authorID, name, exceptID)
	if err != nil {
		return fmt.Errorf("service/recipe: checking name %q: %w", name, err)
	}
	if taken {
		return apperror.Conflict("recipe", "you already have a recipe with this name")
	}
	return nil
}

func (s *RecipeService) wrapWrite(verb string, r *model.Recipe, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("service/recipe: %s %q: %w", verb, r.Name, err)
}

// afterCommit runs the image post-processing for a committed write.
func (s *RecipeService) afterCommit(rel string) {
	if err := s.media.Thumbnail(rel); err != nil {
		s.logger.Warn("recipe thumbnail failed",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RecipeService) discard(rel string) {
	if err := s.media.Delete(rel); err != nil {
		s.logger.Warn("media cleanup failed",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
	}
}

// =========================================================================
// READS
// =========================================================================

func (s *RecipeService) Get(ctx context.Context, recipeID, viewerID int64) (*model.RecipeView, error) {
	recipe, err := s.recipes.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	return s.View(ctx, recipe, viewerID)
}

// List returns one page of recipes, newest first. Favorited and InCart are
// dropped for anonymous viewers.
func (s *RecipeService) List(ctx context.Context, filter repository.RecipeFilter) ([]model.RecipeView, int, error) {
	if filter.ViewerID == 0 {
		filter.Favorited = nil
		filter.InCart = nil
	}
	recipes, total, err := s.recipes.ListRecipes(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("service/recipe: listing: %w", err)
	}
	views, err := s.views(ctx, recipes, filter.ViewerID)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// View builds the full representation of r for viewerID (0 for anonymous).
func (s *RecipeService) View(ctx context.Context, r *model.Recipe, viewerID int64) (*model.RecipeView, error) {
	views, err := s.views(ctx, []model.Recipe{*r}, viewerID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *RecipeService) views(ctx context.Context, recipes []model.Recipe, viewerID int64) ([]model.RecipeView, error) {
	ids := make([]int64, len(recipes))
	for i := range recipes {
		ids[i] = recipes[i].ID
	}

	flags := map[int64]model.RecipeFlags{}
	if viewerID != 0 && len(ids) > 0 {
		var err error
		flags, err = s.recipes.Flags(ctx, viewerID, ids)
		if err != nil {
			return nil, fmt.Errorf("service/recipe: loading flags: %w", err)
		}
	}

	authors := make(map[int64]*model.UserView)
	views := make([]model.RecipeView, len(recipes))
	for i := range recipes {
		r := &recipes[i]

		ingredients, err := s.recipes.RecipeIngredients(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("service/recipe: loading ingredients of %d: %w", r.ID, err)
		}

		var author *model.UserView
		if r.AuthorID != nil {
			author, err = s.authorView(ctx, *r.AuthorID, viewerID, authors)
			if err != nil {
				return nil, err
			}
		}

		views[i] = model.RecipeView{
			ID:               r.ID,
			Author:           author,
			Ingredients:      ingredients,
			IsFavorited:      flags[r.ID].Favorited,
			IsInShoppingCart: flags[r.ID].InCart,
			Name:             r.Name,
			Image:            s.media.URL(r.Image),
			Text:             r.Text,
			CookingTime:      r.CookingTime,
		}
	}
	return views, nil
}

func (s *RecipeService) authorView(ctx context.Context, authorID, viewerID int64, cache map[int64]*model.UserView) (*model.UserView, error) {
	if v, ok := cache[authorID]; ok {
		return v, nil
	}
	v, err := s.users.Get(ctx, authorID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("service/recipe: loading author %d: %w", authorID, err)
	}
	cache[authorID] = v
	return v, nil
}

// ShortLink returns the short URL of an existing recipe under base.
func (s *RecipeService) ShortLink(ctx context.Context, recipeID int64, base string) (string, error) {
	if _, err := s.recipes.GetRecipe(ctx, recipeID); err != nil {
		return "", err
	}
	return strings.TrimRight(base, "/") + "/s/" + strconv.FormatInt(recipeID, 10), nil
}
