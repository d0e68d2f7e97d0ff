package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/auth"
	"github.com/sakif/foodgram/internal/media"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

type RegisterInput struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
	Password  string
}

type UserService struct {
	users     repository.UserRepository
	subs      repository.SubscriptionRepository
	passwords *auth.PasswordService
	media     MediaStore
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	passwords *auth.PasswordService,
	media MediaStore,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		subs:      subs,
		passwords: passwords,
		media:     media,
		logger:    logger,
	}
}

// Register creates a password account. Field formats are checked by the
// handler; uniqueness of email and username is enforced by storage.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", err.Error())
		}
		return nil, fmt.Errorf("service/user: hashing password: %w", err)
	}

	user := &model.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Username:     strings.TrimSpace(in.Username),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("service/user: creating %s: %w", user.Username, err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Get returns the profile of id as seen by viewerID (0 for anonymous).
func (s *UserService) Get(ctx context.Context, id, viewerID int64) (*model.UserView, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := s.View(ctx, u, viewerID)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *UserService) List(ctx context.Context, opts repository.ListOptions, viewerID int64) ([]model.UserView, int, error) {
	users, total, err := s.users.ListUsers(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("service/user: listing users: %w", err)
	}

	ids := make([]int64, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	subscribed, err := s.subscribedAmong(ctx, viewerID, ids)
	if err != nil {
		return nil, 0, err
	}

	views := make([]model.UserView, len(users))
	for i := range users {
		views[i] = model.NewUserView(&users[i], s.media.URL(users[i].Avatar), subscribed[users[i].ID])
	}
	return views, total, nil
}

// View projects u for viewerID. is_subscribed is false for anonymous
// viewers and for a user looking at their own profile.
func (s *UserService) View(ctx context.Context, u *model.User, viewerID int64) (model.UserView, error) {
	subscribed, err := s.subscribedAmong(ctx, viewerID, []int64{u.ID})
	if err != nil {
		return model.UserView{}, err
	}
	return model.NewUserView(u, s.media.URL(u.Avatar), subscribed[u.ID]), nil
}

func (s *UserService) subscribedAmong(ctx context.Context, viewerID int64, authorIDs []int64) (map[int64]bool, error) {
	if viewerID == 0 || len(authorIDs) == 0 {
		return map[int64]bool{}, nil
	}
	m, err := s.subs.SubscribedAmong(ctx, viewerID, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("service/user: loading subscriptions of %d: %w", viewerID, err)
	}
	return m, nil
}

// SetAvatar stores a new avatar and returns its URL. The previous file is
// removed once the new path is saved.
func (s *UserService) SetAvatar(ctx context.Context, userID int64, dataURI string) (string, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(dataURI) == "" {
		return "", apperror.ValidationFailed("avatar", "avatar is required")
	}

	rel, err := s.media.SaveDataURI(media.KindAvatar, "avatar", dataURI)
	if err != nil {
		return "", err
	}
	if err := s.users.UpdateAvatar(ctx, userID, rel); err != nil {
		s.discard(rel)
		return "", fmt.Errorf("service/user: saving avatar of %d: %w", userID, err)
	}

	s.discard(u.Avatar)
	if err := s.media.Thumbnail(rel); err != nil {
		s.logger.Warn("avatar thumbnail failed",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
	}
	return s.media.URL(rel), nil
}

func (s *UserService) DeleteAvatar(ctx context.Context, userID int64) error {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Avatar == "" {
		return apperror.ValidationFailed("avatar", "avatar is not set")
	}
	if err := s.users.UpdateAvatar(ctx, userID, ""); err != nil {
		return fmt.Errorf("service/user: clearing avatar of %d: %w", userID, err)
	}
	s.discard(u.Avatar)
	return nil
}

func (s *UserService) SetPassword(ctx context.Context, userID int64, current, next string) error {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.passwords.Verify(u.PasswordHash, current); err != nil {
		return apperror.ValidationFailed("current_password", "current password is incorrect")
	}
	if current == next {
		return apperror.ValidationFailed("new_password", "new password must differ from the current one")
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return apperror.ValidationFailed("new_password", err.Error())
		}
		return fmt.Errorf("service/user: hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("service/user: saving password of %d: %w", userID, err)
	}
	s.logger.Info("password changed", slog.Int64("userID", userID))
	return nil
}

// discard deletes a media file that is no longer referenced. Failures only
// leave an orphan behind, so they are logged.
func (s *UserService) discard(rel string) {
	if err := s.media.Delete(rel); err != nil {
		s.logger.Warn("media cleanup failed",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
	}
}
