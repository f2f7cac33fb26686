package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Скоупы токенов
const (
	ScopeCloudAI  = "cloud_ai" // удаленный агент может слать команды
	ScopeOperator = "operator" // оператор консоли: апрувы и флаги
	ScopeAdmin    = "admin"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"`
	jwt.RegisteredClaims
}

func (c *CustomClaims) HasScope(scope string) bool {
	return c.Scopes[scope] || c.Scopes[ScopeAdmin]
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Role         string          `json:"role"`
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
