package postgres

import (
	"context"
	"database/sql"
	"time"

	"linguachat/models"
	"linguachat/repository"
)

// ReactionRepository handles database operations for reactions.
type ReactionRepository struct {
	DB *sql.DB
}

const reactionColumns = `uuid, message_uuid, username, content, created_at, updated_at`

func scanReaction(row interface{ Scan(...any) error }) (models.Reaction, error) {
	var rc models.Reaction
	err := row.Scan(&rc.UUID, &rc.MessageUUID, &rc.Username, &rc.Content, &rc.CreatedAt, &rc.UpdatedAt)
	return rc, err
}

// Upsert inserts the reaction or replaces the content of the caller's
// existing reaction on the same message.
func (r *ReactionRepository) Upsert(ctx context.Context, in *models.Reaction) (*models.Reaction, bool, error) {
	rc := *in
	rc.Message = nil
	repository.PrepareReaction(&rc, time.Now())

	query := `
		INSERT INTO reactions (uuid, message_uuid, username, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_uuid, username)
		DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
		RETURNING ` + reactionColumns + `, (xmax = 0) AS inserted`
	var out models.Reaction
	var inserted bool
	err := r.DB.QueryRowContext(ctx, query, rc.UUID, rc.MessageUUID, rc.Username, rc.Content, rc.CreatedAt, rc.UpdatedAt).
		Scan(&out.UUID, &out.MessageUUID, &out.Username, &out.Content, &out.CreatedAt, &out.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, err
	}
	return &out, inserted, nil
}

// ListByMessage retrieves the reactions of one message, oldest first.
func (r *ReactionRepository) ListByMessage(ctx context.Context, messageUUID string) ([]models.Reaction, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reactionColumns+` FROM reactions WHERE message_uuid::text = $1 ORDER BY created_at, id`, messageUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Reaction{}
	for rows.Next() {
		rc, err := scanReaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
