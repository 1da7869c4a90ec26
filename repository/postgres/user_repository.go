package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"linguachat/models"
	"linguachat/repository"
)

// UserRepository handles database operations for users.
type UserRepository struct {
	DB *sql.DB
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO users (username, email, language, password, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.DB.ExecContext(ctx, query, u.Username, u.Email, u.Language, u.Password, u.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// FindByUsername retrieves a user by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	u := &models.User{}
	query := `SELECT username, email, language, password, created_at FROM users WHERE username = $1`
	err := r.DB.QueryRowContext(ctx, query, username).Scan(&u.Username, &u.Email, &u.Language, &u.Password, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// List retrieves every user ordered by username.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT username, email, language, password, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.Username, &u.Email, &u.Language, &u.Password, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
