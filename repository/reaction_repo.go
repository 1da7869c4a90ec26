package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"linguachat/models"
)

type InMemoryReactionRepo struct {
	mu   sync.RWMutex
	data map[string]*models.Reaction // "messageUUID:username" -> reaction
	byM  map[string][]string         // message uuid -> keys
}

func NewInMemoryReactionRepo() *InMemoryReactionRepo {
	return &InMemoryReactionRepo{
		data: make(map[string]*models.Reaction),
		byM:  make(map[string][]string),
	}
}

func (r *InMemoryReactionRepo) Upsert(_ context.Context, in *models.Reaction) (*models.Reaction, bool, error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	key := formatMessageUserKey(in.MessageUUID, in.Username)
	if existing, ok := r.data[key]; ok {
		existing.Content = in.Content
		existing.UpdatedAt = now.UTC()
		cp := *existing
		return &cp, false, nil
	}

	cp := *in
	cp.Message = nil
	PrepareReaction(&cp, now)
	r.data[key] = &cp
	r.byM[in.MessageUUID] = append(r.byM[in.MessageUUID], key)
	out := cp
	return &out, true, nil
}

func (r *InMemoryReactionRepo) ListByMessage(_ context.Context, messageUUID string) ([]models.Reaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := r.byM[messageUUID]
	out := make([]models.Reaction, 0, len(keys))
	for _, k := range keys {
		out = append(out, *r.data[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func formatMessageUserKey(messageUUID, username string) string {
	return fmt.Sprintf("%s:%s", messageUUID, username)
}

// MemoryStore is the process-local Store used for development and tests.
type MemoryStore struct {
	users     *InMemoryUserRepo
	messages  *InMemoryMessageRepo
	reactions *InMemoryReactionRepo
}

func NewMemoryStore() *MemoryStore {
	reactions := NewInMemoryReactionRepo()
	return &MemoryStore{
		users:     NewInMemoryUserRepo(),
		messages:  NewInMemoryMessageRepo(reactions),
		reactions: reactions,
	}
}

func (s *MemoryStore) Users() UserRepository         { return s.users }
func (s *MemoryStore) Messages() MessageRepository   { return s.messages }
func (s *MemoryStore) Reactions() ReactionRepository { return s.reactions }
func (s *MemoryStore) Close() error                  { return nil }
