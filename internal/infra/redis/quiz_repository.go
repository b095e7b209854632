package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/random"
)

// QuizRepository caches whole quiz snapshots in Redis and falls back to a loader on cache miss.
// Snapshots are stored as: SET livequiz:quizcache:{quizID} {quiz JSON} EX ttl
type QuizRepository struct {
	client *redis.Client
	loader memory.QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    random.Random
	logger *slog.Logger
}

func NewQuizRepository(client *redis.Client, loader memory.QuizLoader, ttl time.Duration, logger *slog.Logger) *QuizRepository {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    random.New(),
		logger: logger,
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		raw, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := r.client.Set(ctx, r.cacheKey(quizID), raw, r.ttlWithJitter()).Err(); err != nil {
			r.logger.WarnContext(ctx, "quiz cache write failed", "quiz_id", quizID, "error", err)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz).Clone(), nil
}

// cached treats any cache failure as a miss so the loader stays authoritative.
func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, r.cacheKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WarnContext(ctx, "quiz cache read failed", "quiz_id", quizID, "error", err)
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		r.logger.WarnContext(ctx, "quiz cache entry unreadable", "quiz_id", quizID, "error", err)
		return domain.Quiz{}, false
	}
	return quiz, true
}

// Invalidate drops a cached quiz so the next read goes to the loader.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	return r.client.Del(ctx, r.cacheKey(quizID)).Err()
}

func (r *QuizRepository) cacheKey(quizID string) string {
	return keyPrefix + "quizcache:" + quizID
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int(r.ttl / 10)
	return r.ttl + time.Duration(r.rnd.Intn(jitterMax+1))
}
