package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/timer"
)

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, etc).
//
// Implementations serialize Update per session: fn receives a private copy of the
// stored record and the copy is written back only when fn returns nil.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (*domain.Session, error)
	// SessionIDForPlayer resolves the session a player joined.
	SessionIDForPlayer(ctx context.Context, playerID string) (string, error)
	ListByQuiz(ctx context.Context, quizID string) ([]*domain.Session, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Session, error)
	Clear(ctx context.Context) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// TokenValidator resolves an opaque admin credential to a user id.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// Scheduler arms delayed callbacks grouped by session id.
type Scheduler interface {
	Schedule(key string, delay time.Duration, fn func(ctx context.Context)) timer.Handle
	CancelKey(key string) int
	CancelAll() int
}

// ArtifactStore keeps rendered exports and returns where they can be fetched.
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Metrics receives service events; see internal/metrics.
type Metrics interface {
	SessionStarted()
	PlayerJoined()
	Transition(from, to domain.State)
	AnswerSubmitted()
	TimerFired(kind string, applied bool)
	ResultsExported(format string)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted() {}
func (nopMetrics) PlayerJoined() {}
func (nopMetrics) Transition(_, _ domain.State) {}
func (nopMetrics) AnswerSubmitted() {}
func (nopMetrics) TimerFired(_ string, _ bool) {}
func (nopMetrics) ResultsExported(_ string) {}
