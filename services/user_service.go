package services

import (
	"context"
	"errors"
	"sort"

	"linguachat/apperr"
	"linguachat/models"
	"linguachat/repository"
)

type UserService struct {
	users repository.UserRepository
	msgs  repository.MessageRepository
}

func NewUserService(store repository.Store) *UserService {
	return &UserService{users: store.Users(), msgs: store.Messages()}
}

// ListUsers returns everyone except the caller, each with the latest message
// of their thread with the caller. Users with recent activity come first.
func (s *UserService) ListUsers(ctx context.Context, caller *models.Identity) ([]models.User, error) {
	me, err := resolveCaller(ctx, s.users, caller)
	if err != nil {
		return nil, err
	}
	all, err := s.users.List(ctx)
	if err != nil {
		return nil, apperr.ErrInternal.Wrap(err)
	}

	users := make([]models.User, 0, len(all))
	for _, u := range all {
		if u.Username == me.Username {
			continue
		}
		latest, err := s.msgs.LatestInThread(ctx, me.Username, u.Username)
		switch {
		case err == nil:
			u.LatestMessage = latest
		case errors.Is(err, repository.ErrNotFound):
		default:
			return nil, apperr.ErrInternal.Wrap(err)
		}
		users = append(users, u)
	}

	sort.SliceStable(users, func(i, j int) bool {
		li, lj := users[i].LatestMessage, users[j].LatestMessage
		switch {
		case li != nil && lj != nil && !li.CreatedAt.Equal(lj.CreatedAt):
			return li.CreatedAt.After(lj.CreatedAt)
		case li != nil && lj == nil:
			return true
		case li == nil && lj != nil:
			return false
		}
		return users[i].Username < users[j].Username
	})
	return users, nil
}

// resolveCaller loads the stored user behind an identity. A missing identity
// or an identity whose user no longer exists is Unauthenticated.
func resolveCaller(ctx context.Context, users repository.UserRepository, caller *models.Identity) (*models.User, error) {
	if caller == nil || caller.Username == "" {
		return nil, apperr.ErrUnauthenticated
	}
	u, err := users.FindByUsername(ctx, caller.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, apperr.ErrInternal.Wrap(err)
	}
	return u, nil
}

// findUser maps a missing row to ErrUserNotFound.
func findUser(ctx context.Context, users repository.UserRepository, username string) (*models.User, error) {
	u, err := users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, apperr.ErrInternal.Wrap(err)
	}
	return u, nil
}
