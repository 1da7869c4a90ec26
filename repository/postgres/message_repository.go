package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"linguachat/models"
	"linguachat/repository"

	"github.com/lib/pq"
)

// MessageRepository handles database operations for messages.
type MessageRepository struct {
	DB *sql.DB
}

const messageColumns = `uuid, from_user, to_user, content, language, created_at`

func scanMessage(row interface{ Scan(...any) error }) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.UUID, &m.From, &m.To, &m.Content, &m.Language, &m.CreatedAt)
	return m, err
}

// Create inserts a new message.
func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	repository.PrepareMessage(m, time.Now())
	query := `INSERT INTO messages (uuid, from_user, to_user, content, language, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.DB.ExecContext(ctx, query, m.UUID, m.From, m.To, m.Content, m.Language, m.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// FindByUUID retrieves one message with its reactions.
func (r *MessageRepository) FindByUUID(ctx context.Context, id string) (*models.Message, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE uuid::text = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	msgs := []models.Message{m}
	if err := r.attachReactions(ctx, msgs); err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

// ListThread retrieves the conversation between a and b, newest first.
func (r *MessageRepository) ListThread(ctx context.Context, a, b string) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE from_user = ANY($1) AND to_user = ANY($1)
		ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array([]string{a, b}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachReactions(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// LatestInThread retrieves the newest message between a and b.
func (r *MessageRepository) LatestInThread(ctx context.Context, a, b string) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE from_user = ANY($1) AND to_user = ANY($1)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	m, err := scanMessage(r.DB.QueryRowContext(ctx, query, pq.Array([]string{a, b})))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Reactions = []models.Reaction{}
	return &m, nil
}

func (r *MessageRepository) attachReactions(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	index := make(map[string]int, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].UUID
		index[msgs[i].UUID] = i
		msgs[i].Reactions = []models.Reaction{}
	}
	query := `
		SELECT ` + reactionColumns + `
		FROM reactions
		WHERE message_uuid::text = ANY($1)
		ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		rc, err := scanReaction(rows)
		if err != nil {
			return err
		}
		i := index[rc.MessageUUID]
		msgs[i].Reactions = append(msgs[i].Reactions, rc)
	}
	return rows.Err()
}
