package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// TokenValidator resolves admin tokens against the user_sessions table written
// by the authentication service.
type TokenValidator struct {
	pool *pgxpool.Pool
}

func NewTokenValidator(pool *pgxpool.Pool) *TokenValidator {
	return &TokenValidator{pool: pool}
}

func (v *TokenValidator) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrInvalidToken
	}
	var userID string
	err := v.pool.QueryRow(ctx,
		`SELECT user_id FROM user_sessions WHERE token=$1 AND (expires_at IS NULL OR expires_at > now())`,
		token,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("validate token: %w", err)
	}
	return userID, nil
}
