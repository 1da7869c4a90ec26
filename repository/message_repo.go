package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"linguachat/models"
)

type storedMessage struct {
	seq int
	msg models.Message
}

type InMemoryMessageRepo struct {
	mu        sync.RWMutex
	seq       int
	data      map[string]*storedMessage // by uuid
	byT       map[string][]string       // thread key -> message uuids
	reactions *InMemoryReactionRepo
}

func NewInMemoryMessageRepo(reactions *InMemoryReactionRepo) *InMemoryMessageRepo {
	return &InMemoryMessageRepo{
		data:      make(map[string]*storedMessage),
		byT:       make(map[string][]string),
		reactions: reactions,
	}
}

func (r *InMemoryMessageRepo) Create(_ context.Context, m *models.Message) error {
	PrepareMessage(m, time.Now())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[m.UUID]; ok {
		return ErrConflict
	}
	r.seq++
	cp := *m
	cp.Reactions = nil
	r.data[m.UUID] = &storedMessage{seq: r.seq, msg: cp}
	key := models.ThreadKey(m.From, m.To)
	r.byT[key] = append(r.byT[key], m.UUID)
	return nil
}

func (r *InMemoryMessageRepo) FindByUUID(ctx context.Context, id string) (*models.Message, error) {
	r.mu.RLock()
	sm, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	m := sm.msg
	if err := r.attachReactions(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *InMemoryMessageRepo) ListThread(ctx context.Context, a, b string) ([]models.Message, error) {
	r.mu.RLock()
	ids := r.byT[models.ThreadKey(a, b)]
	stored := make([]storedMessage, 0, len(ids))
	for _, id := range ids {
		stored = append(stored, *r.data[id])
	}
	r.mu.RUnlock()

	// newest first, later inserts win timestamp ties
	sort.Slice(stored, func(i, j int) bool {
		ti, tj := stored[i].msg.CreatedAt, stored[j].msg.CreatedAt
		if ti.Equal(tj) {
			return stored[i].seq > stored[j].seq
		}
		return ti.After(tj)
	})

	msgs := make([]models.Message, 0, len(stored))
	for _, sm := range stored {
		m := sm.msg
		if err := r.attachReactions(ctx, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *InMemoryMessageRepo) LatestInThread(ctx context.Context, a, b string) (*models.Message, error) {
	msgs, err := r.ListThread(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

func (r *InMemoryMessageRepo) attachReactions(ctx context.Context, m *models.Message) error {
	if r.reactions == nil {
		m.Reactions = []models.Reaction{}
		return nil
	}
	rs, err := r.reactions.ListByMessage(ctx, m.UUID)
	if err != nil {
		return err
	}
	m.Reactions = rs
	return nil
}
