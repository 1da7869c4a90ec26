package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"linguachat/repository"

	"github.com/lib/pq" // PostgreSQL driver
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    username   TEXT PRIMARY KEY,
    email      TEXT NOT NULL DEFAULT '',
    language   TEXT NOT NULL,
    password   TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
    id         BIGSERIAL PRIMARY KEY,
    uuid       UUID NOT NULL UNIQUE,
    from_user  TEXT NOT NULL REFERENCES users(username),
    to_user    TEXT NOT NULL REFERENCES users(username),
    content    TEXT NOT NULL,
    language   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_participants_idx
    ON messages (from_user, to_user, created_at DESC);
CREATE TABLE IF NOT EXISTS reactions (
    id           BIGSERIAL PRIMARY KEY,
    uuid         UUID NOT NULL UNIQUE,
    message_uuid UUID NOT NULL REFERENCES messages(uuid) ON DELETE CASCADE,
    username     TEXT NOT NULL REFERENCES users(username),
    content      TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL,
    UNIQUE (message_uuid, username)
);
`

// Store is the PostgreSQL backed repository.Store.
type Store struct {
	DB        *sql.DB
	users     *UserRepository
	messages  *MessageRepository
	reactions *ReactionRepository
}

// Open connects to dataSourceName, verifies the connection and creates the
// schema if it does not exist yet.
func Open(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an already opened database handle.
func New(db *sql.DB) *Store {
	return &Store{
		DB:        db,
		users:     &UserRepository{DB: db},
		messages:  &MessageRepository{DB: db},
		reactions: &ReactionRepository{DB: db},
	}
}

func ensureSchema(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *Store) Users() repository.UserRepository         { return s.users }
func (s *Store) Messages() repository.MessageRepository   { return s.messages }
func (s *Store) Reactions() repository.ReactionRepository { return s.reactions }
func (s *Store) Close() error                             { return s.DB.Close() }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
