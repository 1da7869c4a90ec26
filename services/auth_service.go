package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"linguachat/apperr"
	"linguachat/config"
	"linguachat/models"
	"linguachat/repository"
	"linguachat/utils"

	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	users  repository.UserRepository
	config *config.Config
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{users: userRepo, config: cfg}
}

func (s *AuthService) Register(ctx context.Context, username, email, password, language string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	language = strings.ToLower(strings.TrimSpace(language))

	if len(username) < 3 || len(username) > 20 {
		return nil, apperr.Invalid("username must be between 3 and 20 characters")
	}
	if len(password) < 6 || len(password) > 100 {
		return nil, apperr.Invalid("password must be between 6 and 100 characters")
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, apperr.Invalid("email is invalid")
	}
	if !validLanguage(language) {
		return nil, apperr.Invalid("language must be a language code such as \"en\"")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.ErrInternal.Wrap(err)
	}
	u := &models.User{
		Username:  username,
		Email:     email,
		Language:  language,
		Password:  string(hashed),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.ErrUsernameTaken
		}
		return nil, apperr.ErrInternal.Wrap(err)
	}
	return u, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	if username == "" || password == "" {
		return "", nil, apperr.Invalid("username and password are required")
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperr.ErrInvalidCredentials
		}
		return "", nil, apperr.ErrInternal.Wrap(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return "", nil, apperr.ErrInvalidCredentials
	}
	token, err := s.CreateToken(u.Username)
	if err != nil {
		return "", nil, apperr.ErrInternal.Wrap(err)
	}
	return token, u, nil
}

func (s *AuthService) CreateToken(username string) (string, error) {
	return utils.GenerateJWT(s.config.Auth.JWTSecret, username, s.config.JWTTTL())
}

// ParseToken verifies token and returns the identity it was issued for.
func (s *AuthService) ParseToken(token string) (*models.Identity, error) {
	username, err := utils.ParseJWT(s.config.Auth.JWTSecret, token)
	if err != nil {
		return nil, apperr.ErrUnauthenticated.Wrap(err)
	}
	return &models.Identity{Username: username}, nil
}

// validLanguage accepts codes like "en", "fr" or "zh-tw".
func validLanguage(code string) bool {
	if len(code) < 2 || len(code) > 8 {
		return false
	}
	for _, r := range code {
		if r != '-' && (r < 'a' || r > 'z') {
			return false
		}
	}
	return code[0] != '-' && code[len(code)-1] != '-'
}
