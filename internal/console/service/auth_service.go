package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/infra/auth"
)

const (
	tokenIssuer = "rootgw-console"
	tokenTTL    = 24 * time.Hour
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type AuthService struct {
	repo       AuthProvider
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

func NewAuthService(repo AuthProvider, privateKey *rsa.PrivateKey) *AuthService {
	return &AuthService{
		repo:       repo,
		privateKey: privateKey,
		now:        time.Now,
	}
}

// GenerateToken выдает RS256 токен со скоупами оператора из БД.
// Ошибка одна на любой промах, чтобы не подсказывать перебору.
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	claims := &domain.CustomClaims{
		UserID: user.ID,
		Scopes: user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := auth.SignToken(s.privateKey, claims)
	if err != nil {
		return nil, err
	}
	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(tokenTTL.Seconds()),
	}, nil
}
