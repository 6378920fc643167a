package service

import (
	"context"
	"fmt"
	"time"

	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/repository"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	userCacheSize = 1024
	userCacheTTL  = 5 * time.Minute
)

// cachedUser wraps a cached user with its expiry
type cachedUser struct {
	user      models.User
	expiresAt time.Time
}

// userService is the concrete implementation of UserService
type userService struct {
	userRepo repository.UserRepository
	cache    *lru.Cache[string, cachedUser]
	now      func() time.Time
	log      zerolog.Logger
}

func newUserService(userRepo repository.UserRepository, now func() time.Time, log zerolog.Logger) *userService {
	cache, err := lru.New[string, cachedUser](userCacheSize)
	if err != nil {
		// Only fails for a non-positive size
		panic(err)
	}
	return &userService{
		userRepo: userRepo,
		cache:    cache,
		now:      now,
		log:      log.With().Str("service", "user").Logger(),
	}
}

// GetUser returns the user with the given ID. Lookups are cached briefly
// since every authenticated request resolves its viewer.
func (s *userService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if item, ok := s.cache.Get(id); ok {
		if s.now().Before(item.expiresAt) {
			u := item.user
			return &u, nil
		}
		s.cache.Remove(id)
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	s.cache.Add(id, cachedUser{user: *user, expiresAt: s.now().Add(userCacheTTL)})
	return user, nil
}

// DeleteUser removes an account with its posts and every comment it wrote
// or received. Users may only delete themselves.
func (s *userService) DeleteUser(ctx context.Context, actor *models.User, id string) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	if actor.ID != id {
		return ErrForbidden
	}

	ok, err := s.userRepo.Delete(ctx, id)
	s.cache.Remove(id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	s.log.Info().Str("user_id", id).Msg("User deleted")
	return nil
}
