package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/metrics"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

// RelationService toggles favorite and cart membership. Both kinds share one
// state machine per (user, recipe): absent or present.
type RelationService struct {
	recipes   repository.RecipeRepository
	relations repository.RelationRepository
	media     MediaStore
	logger    *slog.Logger
}

func NewRelationService(
	recipes repository.RecipeRepository,
	relations repository.RelationRepository,
	media MediaStore,
	logger *slog.Logger,
) *RelationService {
	return &RelationService{
		recipes:   recipes,
		relations: relations,
		media:     media,
		logger:    logger,
	}
}

// Add moves (user, recipe) from absent to present and returns the short
// view of the recipe.
//
// The existence check only produces the error early. Two concurrent adds can
// both pass it; the unique constraint then rejects the second insert with
// the same ErrAlreadyExists.
func (s *RelationService) Add(ctx context.Context, kind model.RelationKind, userID, recipeID int64) (*model.ShortRecipe, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("service/relation: unknown relation kind %q", kind)
	}

	recipe, err := s.recipes.GetRecipe(ctx, recipeID)
	if err != nil {
		s.record(kind, "add", err)
		return nil, err
	}

	present, err := s.relations.HasRelation(ctx, kind, userID, recipeID)
	if err != nil {
		s.record(kind, "add", err)
		return nil, fmt.Errorf("service/relation: checking %s: %w", kind, err)
	}
	if present {
		err := alreadyPresent(kind)
		s.record(kind, "add", err)
		return nil, err
	}

	if err := s.relations.AddRelation(ctx, kind, userID, recipeID); err != nil {
		s.record(kind, "add", err)
		if errors.Is(err, apperror.ErrAlreadyExists) || errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/relation: adding %s: %w", kind, err)
	}
	s.record(kind, "add", nil)

	s.logger.Info("relation added",
		slog.String("kind", string(kind)),
		slog.Int64("userID", userID),
		slog.Int64("recipeID", recipeID),
	)
	short := shortRecipe(recipe, s.media)
	return &short, nil
}

// Remove moves (user, recipe) from present to absent.
func (s *RelationService) Remove(ctx context.Context, kind model.RelationKind, userID, recipeID int64) error {
	if !kind.Valid() {
		return fmt.Errorf("service/relation: unknown relation kind %q", kind)
	}

	if _, err := s.recipes.GetRecipe(ctx, recipeID); err != nil {
		s.record(kind, "remove", err)
		return err
	}

	removed, err := s.relations.RemoveRelation(ctx, kind, userID, recipeID)
	if err != nil {
		s.record(kind, "remove", err)
		return fmt.Errorf("service/relation: removing %s: %w", kind, err)
	}
	if !removed {
		err := apperror.NotPresent("recipe", fmt.Sprintf("recipe is not in your %s", kind.Label()))
		s.record(kind, "remove", err)
		return err
	}
	s.record(kind, "remove", nil)

	s.logger.Info("relation removed",
		slog.String("kind", string(kind)),
		slog.Int64("userID", userID),
		slog.Int64("recipeID", recipeID),
	)
	return nil
}

func (s *RelationService) record(kind model.RelationKind, action string, err error) {
	recordToggle(string(kind), action, err)
}

func recordToggle(kind, action string, err error) {
	metrics.RecordRelationToggle(kind, action, toggleOutcome(err))
}

func alreadyPresent(kind model.RelationKind) error {
	return apperror.AlreadyExists(fmt.Sprintf("recipe is already in your %s", kind.Label()))
}

func toggleOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, apperror.ErrAlreadyExists):
		return metrics.OutcomeConflict
	case errors.Is(err, apperror.ErrNotFound):
		return metrics.OutcomeMissing
	case errors.Is(err, apperror.ErrSelfReference):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
