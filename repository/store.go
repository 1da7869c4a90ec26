package repository

import (
	"context"
	"errors"
	"time"

	"linguachat/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *models.Message) error
	FindByUUID(ctx context.Context, id string) (*models.Message, error)
	// ListThread returns the messages exchanged between a and b, newest
	// first, each with its reactions.
	ListThread(ctx context.Context, a, b string) ([]models.Message, error)
	LatestInThread(ctx context.Context, a, b string) (*models.Message, error)
}

type ReactionRepository interface {
	// Upsert stores r keyed by (MessageUUID, Username). An existing row keeps
	// its UUID and CreatedAt and takes the new content. created reports
	// whether a new row was inserted.
	Upsert(ctx context.Context, r *models.Reaction) (saved *models.Reaction, created bool, err error)
	ListByMessage(ctx context.Context, messageUUID string) ([]models.Reaction, error)
}

// Store bundles the repositories of one storage backend.
type Store interface {
	Users() UserRepository
	Messages() MessageRepository
	Reactions() ReactionRepository
	Close() error
}

// PrepareMessage fills in the generated fields of a message about to be
// inserted.
func PrepareMessage(m *models.Message, now time.Time) {
	if m.UUID == "" {
		m.UUID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now.UTC()
	}
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
}

// PrepareReaction fills in the generated fields of a reaction about to be
// inserted.
func PrepareReaction(r *models.Reaction, now time.Time) {
	if r.UUID == "" {
		r.UUID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
	r.UpdatedAt = now.UTC()
}
