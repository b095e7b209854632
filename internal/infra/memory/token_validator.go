package memory

import (
	"context"

	"live-quiz-service/internal/domain"
)

// StaticTokenValidator resolves tokens from a fixed token -> user id table (demo mode and tests).
type StaticTokenValidator struct {
	tokens map[string]string
}

func NewStaticTokenValidator(tokens map[string]string) *StaticTokenValidator {
	copied := make(map[string]string, len(tokens))
	for token, userID := range tokens {
		copied[token] = userID
	}
	return &StaticTokenValidator{tokens: copied}
}

func (v *StaticTokenValidator) Validate(_ context.Context, token string) (string, error) {
	if userID, ok := v.tokens[token]; ok && token != "" {
		return userID, nil
	}
	return "", domain.ErrInvalidToken
}
