package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"linguachat/models"
)

type InMemoryUserRepo struct {
	mu  sync.RWMutex
	byU map[string]*models.User
}

func NewInMemoryUserRepo() *InMemoryUserRepo {
	return &InMemoryUserRepo{
		byU: make(map[string]*models.User),
	}
}

func (r *InMemoryUserRepo) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byU[u.Username]; ok {
		return ErrConflict
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	cp.LatestMessage = nil
	r.byU[u.Username] = &cp
	return nil
}

func (r *InMemoryUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byU[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *InMemoryUserRepo) List(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]models.User, 0, len(r.byU))
	for _, u := range r.byU {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}
