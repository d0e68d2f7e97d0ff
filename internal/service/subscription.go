package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

const subscriptionKind = "subscription"

// SubscriptionService toggles subscriptions between users and lists the
// authors a user follows.
type SubscriptionService struct {
	users   repository.UserRepository
	subs    repository.SubscriptionRepository
	recipes repository.RecipeRepository
	media   MediaStore
	logger  *slog.Logger
}

func NewSubscriptionService(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	recipes repository.RecipeRepository,
	media MediaStore,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		users:   users,
		subs:    subs,
		recipes: recipes,
		media:   media,
		logger:  logger,
	}
}

// Subscribe makes subscriberID follow authorID and returns the author with
// up to recipesLimit of their latest recipes (all when recipesLimit <= 0).
//
// Self-subscription is rejected before any lookup, so it fails the same way
// whether or not a row exists.
func (s *SubscriptionService) Subscribe(ctx context.Context, subscriberID, authorID int64, recipesLimit int) (*model.AuthorView, error) {
	if subscriberID == authorID {
		err := apperror.SelfReference("you cannot subscribe to yourself")
		s.record("add", err)
		return nil, err
	}

	author, err := s.users.GetUserByID(ctx, authorID)
	if err != nil {
		s.record("add", err)
		return nil, err
	}

	subscribed, err := s.subs.IsSubscribed(ctx, subscriberID, authorID)
	if err != nil {
		s.record("add", err)
		return nil, fmt.Errorf("service/subscription: checking %d->%d: %w", subscriberID, authorID, err)
	}
	if subscribed {
		err := apperror.AlreadyExists(fmt.Sprintf("you are already subscribed to %s", author.Username))
		s.record("add", err)
		return nil, err
	}

	if err := s.subs.Subscribe(ctx, subscriberID, authorID); err != nil {
		s.record("add", err)
		if errors.Is(err, apperror.ErrAlreadyExists) ||
			errors.Is(err, apperror.ErrSelfReference) ||
			errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/subscription: subscribing %d->%d: %w", subscriberID, authorID, err)
	}
	s.record("add", nil)

	s.logger.Info("subscribed",
		slog.Int64("subscriberID", subscriberID),
		slog.Int64("authorID", authorID),
	)
	return s.authorView(ctx, author, recipesLimit)
}

func (s *SubscriptionService) Unsubscribe(ctx context.Context, subscriberID, authorID int64) error {
	if subscriberID == authorID {
		err := apperror.SelfReference("you cannot unsubscribe from yourself")
		s.record("remove", err)
		return err
	}

	author, err := s.users.GetUserByID(ctx, authorID)
	if err != nil {
		s.record("remove", err)
		return err
	}

	removed, err := s.subs.Unsubscribe(ctx, subscriberID, authorID)
	if err != nil {
		s.record("remove", err)
		return fmt.Errorf("service/subscription: unsubscribing %d->%d: %w", subscriberID, authorID, err)
	}
	if !removed {
		err := apperror.NotPresent("author", fmt.Sprintf("you are not subscribed to %s", author.Username))
		s.record("remove", err)
		return err
	}
	s.record("remove", nil)

	s.logger.Info("unsubscribed",
		slog.Int64("subscriberID", subscriberID),
		slog.Int64("authorID", authorID),
	)
	return nil
}

// Subscriptions lists the authors subscriberID follows, ordered by username.
func (s *SubscriptionService) Subscriptions(ctx context.Context, subscriberID int64, opts repository.ListOptions, recipesLimit int) ([]model.AuthorView, int, error) {
	authors, total, err := s.subs.SubscribedAuthors(ctx, subscriberID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("service/subscription: listing for %d: %w", subscriberID, err)
	}

	views := make([]model.AuthorView, 0, len(authors))
	for i := range authors {
		v, err := s.authorView(ctx, &authors[i], recipesLimit)
		if err != nil {
			return nil, 0, err
		}
		views = append(views, *v)
	}
	return views, total, nil
}

// authorView is only built for authors the caller follows, so is_subscribed
// is always true.
func (s *SubscriptionService) authorView(ctx context.Context, author *model.User, recipesLimit int) (*model.AuthorView, error) {
	recipes, count, err := s.recipes.ListRecipesByAuthor(ctx, author.ID, recipesLimit)
	if err != nil {
		return nil, fmt.Errorf("service/subscription: loading recipes of %d: %w", author.ID, err)
	}

	shorts := make([]model.ShortRecipe, len(recipes))
	for i := range recipes {
		shorts[i] = shortRecipe(&recipes[i], s.media)
	}
	return &model.AuthorView{
		UserView:     model.NewUserView(author, s.media.URL(author.Avatar), true),
		Recipes:      shorts,
		RecipesCount: count,
	}, nil
}

func (s *SubscriptionService) record(action string, err error) {
	recordToggle(subscriptionKind, action, err)
}
