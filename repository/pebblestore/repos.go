package pebblestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	"linguachat/models"
	"linguachat/repository"

	"github.com/cockroachdb/pebble"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	cp.LatestMessage = nil
	b, err := json.Marshal(storedUser{User: cp, Password: cp.Password})
	if err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	exists, err := r.s.has(userKey(u.Username))
	if err != nil {
		return err
	}
	if exists {
		return repository.ErrConflict
	}
	return r.s.db.Set(userKey(u.Username), b, pebble.Sync)
}

// storedUser persists the password hash that models.User hides from JSON.
type storedUser struct {
	models.User
	Password string `json:"password"`
}

func (r *userRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	var su storedUser
	if err := r.s.getJSON(userKey(username), &su); err != nil {
		return nil, err
	}
	u := su.User
	u.Password = su.Password
	return &u, nil
}

func (r *userRepo) List(_ context.Context) ([]models.User, error) {
	users := []models.User{}
	err := r.s.scan([]byte("u/"), func(_, v []byte) error {
		var su storedUser
		if err := json.Unmarshal(v, &su); err != nil {
			return err
		}
		u := su.User
		u.Password = su.Password
		users = append(users, u)
		return nil
	})
	return users, err
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(_ context.Context, m *models.Message) error {
	repository.PrepareMessage(m, time.Now())
	cp := *m
	cp.Reactions = nil
	b, err := json.Marshal(cp)
	if err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	exists, err := r.s.has(messageKey(m.UUID))
	if err != nil {
		return err
	}
	if exists {
		return repository.ErrConflict
	}

	seq := r.s.seq + 1
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)

	batch := r.s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(messageKey(m.UUID), b, nil); err != nil {
		return err
	}
	if err := batch.Set(threadKey(m, seq), []byte(m.UUID), nil); err != nil {
		return err
	}
	if err := batch.Set(seqKey, seqBuf[:], nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	r.s.seq = seq
	return nil
}

func (r *messageRepo) FindByUUID(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := r.s.getJSON(messageKey(id), &m); err != nil {
		return nil, err
	}
	rs, err := r.s.reactions.ListByMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Reactions = rs
	return &m, nil
}

func (r *messageRepo) threadIDs(a, b string, limit int) ([]string, error) {
	var ids []string
	err := r.s.scan(threadPrefix(a, b), func(_, v []byte) error {
		ids = append(ids, string(v))
		if limit > 0 && len(ids) >= limit {
			return errStopScan
		}
		return nil
	})
	return ids, err
}

func (r *messageRepo) ListThread(ctx context.Context, a, b string) ([]models.Message, error) {
	ids, err := r.threadIDs(a, b, 0)
	if err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		m, err := r.FindByUUID(ctx, id)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, nil
}

func (r *messageRepo) LatestInThread(_ context.Context, a, b string) (*models.Message, error) {
	ids, err := r.threadIDs(a, b, 1)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, repository.ErrNotFound
	}
	var m models.Message
	if err := r.s.getJSON(messageKey(ids[0]), &m); err != nil {
		return nil, err
	}
	m.Reactions = []models.Reaction{}
	return &m, nil
}

type reactionRepo struct{ s *Store }

func (r *reactionRepo) Upsert(_ context.Context, in *models.Reaction) (*models.Reaction, bool, error) {
	now := time.Now()
	key := reactionKey(in.MessageUUID, in.Username)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rc models.Reaction
	created := false
	err := r.s.getJSON(key, &rc)
	switch err {
	case nil:
		rc.Content = in.Content
		rc.UpdatedAt = now.UTC()
	case repository.ErrNotFound:
		rc = *in
		rc.Message = nil
		repository.PrepareReaction(&rc, now)
		created = true
	default:
		return nil, false, err
	}

	b, err := json.Marshal(rc)
	if err != nil {
		return nil, false, err
	}
	if err := r.s.db.Set(key, b, pebble.Sync); err != nil {
		return nil, false, err
	}
	return &rc, created, nil
}

func (r *reactionRepo) ListByMessage(_ context.Context, messageUUID string) ([]models.Reaction, error) {
	out := []models.Reaction{}
	err := r.s.scan(reactionPrefix(messageUUID), func(_, v []byte) error {
		var rc models.Reaction
		if err := json.Unmarshal(v, &rc); err != nil {
			return err
		}
		out = append(out, rc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
