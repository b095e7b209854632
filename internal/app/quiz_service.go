package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/export"
	"live-quiz-service/internal/random"
	"live-quiz-service/internal/scoring"
	"live-quiz-service/internal/timer"
)

const (
	DefaultCountdown         = 3 * time.Second
	DefaultMaxActiveSessions = 10
	DefaultMaxAutoStart      = 50
)

// Config holds the session limits and timings.
type Config struct {
	Countdown         time.Duration
	MaxActiveSessions int
	MaxAutoStart      int
	ResubmitPolicy    scoring.ResubmitPolicy
}

func (c Config) withDefaults() Config {
	if c.Countdown <= 0 {
		c.Countdown = DefaultCountdown
	}
	if c.MaxActiveSessions <= 0 {
		c.MaxActiveSessions = DefaultMaxActiveSessions
	}
	if c.MaxAutoStart <= 0 {
		c.MaxAutoStart = DefaultMaxAutoStart
	}
	return c
}

// Deps are the collaborators of QuizService. Clock, Random, Metrics and Logger are optional.
type Deps struct {
	Sessions  SessionRepository
	Quizzes   QuizRepository
	Tokens    TokenValidator
	Scheduler Scheduler
	Artifacts ArtifactStore
	Clock     timer.Clock
	Random    random.Random
	Metrics   Metrics
	Logger    *slog.Logger
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	tokens    TokenValidator
	scheduler Scheduler
	artifacts ArtifactStore
	clock     timer.Clock
	random    random.Random
	metrics   Metrics
	logger    *slog.Logger

	cfg    Config
	engine *scoring.Engine
	hub    *hub
}

func NewQuizService(deps Deps, cfg Config) *QuizService {
	s := &QuizService{
		sessions:  deps.Sessions,
		quizzes:   deps.Quizzes,
		tokens:    deps.Tokens,
		scheduler: deps.Scheduler,
		artifacts: deps.Artifacts,
		clock:     deps.Clock,
		random:    deps.Random,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg.withDefaults(),
		hub:       newHub(),
	}
	if s.clock == nil {
		s.clock = timer.RealClock{}
	}
	if s.random == nil {
		s.random = random.New()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.engine = scoring.New(s.cfg.ResubmitPolicy)
	return s
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

// StartSession creates a LOBBY session over a snapshot of the quiz.
func (s *QuizService) StartSession(ctx context.Context, token, quizID string, autoStart int) (string, error) {
	userID, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	quiz, err := s.ownedQuiz(ctx, userID, quizID)
	if err != nil {
		return "", err
	}
	if autoStart < 0 || autoStart > s.cfg.MaxAutoStart {
		return "", domain.Invalidf("autoStartNum must be between 0 and %d", s.cfg.MaxAutoStart)
	}
	if len(quiz.Questions) == 0 {
		return "", domain.Invalidf("quiz %s has no questions", quizID)
	}

	// The cap spans every quiz of the owner.
	existing, err := s.sessions.ListByOwner(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}
	active := 0
	for _, sess := range existing {
		if sess.State != domain.StateEnd {
			active++
		}
	}
	if active >= s.cfg.MaxActiveSessions {
		return "", domain.Invalidf("owner already has %d active sessions", active)
	}

	id, err := newID()
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	session := &domain.Session{
		ID:                 id,
		QuizID:             quizID,
		OwnerID:            userID,
		State:              domain.StateLobby,
		Quiz:               quiz.Clone(),
		AutoStartThreshold: autoStart,
		Responses:          make(map[string][]domain.PlayerResponse),
		RoundStarts:        make(map[string]time.Time),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	s.metrics.SessionStarted()
	s.logger.InfoContext(ctx, "session started", "session_id", id, "quiz_id", quizID, "auto_start", autoStart)
	return id, nil
}

// JoinSession adds a player to a LOBBY session. An empty name is replaced by a
// generated one. The join that reaches the auto-start threshold also starts question 1.
func (s *QuizService) JoinSession(ctx context.Context, sessionID, name string) (string, error) {
	playerID, err := newID()
	if err != nil {
		return "", err
	}

	var (
		effects []effect
		moved   *transition
	)
	committed, err := s.sessions.Update(ctx, sessionID, func(sess *domain.Session) error {
		effects, moved = nil, nil
		if sess.State != domain.StateLobby {
			return domain.Conflictf("session %s is not accepting players", sessionID)
		}
		joined := name
		if joined == "" {
			joined = generateName(s.random, sess.HasPlayerNamed)
		} else if sess.HasPlayerNamed(joined) {
			return domain.Invalidf("name %q is already taken", joined)
		}

		now := s.clock.Now()
		sess.Players = append(sess.Players, domain.Player{ID: playerID, Name: joined, JoinedAt: now})
		sess.UpdatedAt = now

		if sess.AutoStartThreshold > 0 && len(sess.Players) == sess.AutoStartThreshold {
			from := sess.State
			var err error
			effects, err = apply(sess, domain.ActionNextQuestion)
			if err != nil {
				return err
			}
			moved = &transition{from: from, to: sess.State}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.metrics.PlayerJoined()
	s.logger.InfoContext(ctx, "player joined", "session_id", sessionID, "player_id", playerID, "players", len(committed.Players))
	if moved != nil {
		s.logger.InfoContext(ctx, "session auto-started", "session_id", sessionID)
	}
	s.commit(committed, moved, effects)
	return playerID, nil
}

// ApplyAction runs an administrator action against the session state machine.
func (s *QuizService) ApplyAction(ctx context.Context, token, sessionID, action string) error {
	if _, err := s.ownedSession(ctx, token, sessionID); err != nil {
		return err
	}
	act, err := domain.ParseAction(action)
	if err != nil {
		return err
	}

	var (
		effects []effect
		moved   transition
	)
	committed, err := s.sessions.Update(ctx, sessionID, func(sess *domain.Session) error {
		moved.from = sess.State
		var err error
		effects, err = apply(sess, act)
		if err != nil {
			return err
		}
		moved.to = sess.State
		sess.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "session action applied", "session_id", sessionID, "action", act.String(), "from", moved.from.String(), "to", moved.to.String())
	s.commit(committed, &moved, effects)
	return nil
}

// commit runs post-write side effects: timers, subscribers and metrics.
func (s *QuizService) commit(sess *domain.Session, moved *transition, effects []effect) {
	for _, e := range effects {
		switch e.kind {
		case effectArmRound:
			s.armRound(sess.ID, e.position, e.duration)
		case effectCancelTimers:
			s.scheduler.CancelKey(sess.ID)
		}
	}
	if moved != nil {
		s.metrics.Transition(moved.from, moved.to)
	}
	s.hub.publish(updateOf(sess))
}

// armRound replaces the session's timers with the countdown timer and the close
// timer. The close timer fires once the question has been open for its full duration.
func (s *QuizService) armRound(sessionID string, position int, duration time.Duration) {
	s.scheduler.CancelKey(sessionID)
	s.scheduler.Schedule(sessionID, s.cfg.Countdown, func(ctx context.Context) {
		s.fire(ctx, "countdown", sessionID, position, func(sess *domain.Session) error {
			return openQuestion(sess, position, s.clock.Now())
		})
	})
	s.scheduler.Schedule(sessionID, s.cfg.Countdown+duration, func(ctx context.Context) {
		s.fire(ctx, "close", sessionID, position, func(sess *domain.Session) error {
			return closeQuestion(sess, position)
		})
	})
}

func (s *QuizService) fire(ctx context.Context, kind, sessionID string, position int, fn func(*domain.Session) error) {
	var from domain.State
	committed, err := s.sessions.Update(ctx, sessionID, func(sess *domain.Session) error {
		from = sess.State
		if err := fn(sess); err != nil {
			return err
		}
		sess.UpdatedAt = s.clock.Now()
		return nil
	})
	switch {
	case errors.Is(err, errStaleTimer):
		s.metrics.TimerFired(kind, false)
		s.logger.DebugContext(ctx, "stale timer skipped", "kind", kind, "session_id", sessionID, "position", position, "state", from.String())
		return
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.TimerFired(kind, false)
		s.logger.DebugContext(ctx, "timer for removed session skipped", "kind", kind, "session_id", sessionID)
		return
	case err != nil:
		s.logger.ErrorContext(ctx, "timer transition failed", "kind", kind, "session_id", sessionID, "error", err)
		return
	}

	s.metrics.TimerFired(kind, true)
	s.logger.InfoContext(ctx, "timer transition applied", "kind", kind, "session_id", sessionID, "position", position, "state", committed.State.String())
	s.commit(committed, &transition{from: from, to: committed.State}, nil)
}

// SessionStatus is the owner's view of a session.
func (s *QuizService) SessionStatus(ctx context.Context, token, sessionID string) (domain.SessionStatus, error) {
	sess, err := s.ownedSession(ctx, token, sessionID)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return domain.SessionStatus{
		SessionID:  sess.ID,
		State:      sess.State,
		AtQuestion: sess.AtQuestion,
		Players:    playerNames(sess),
		Metadata: domain.QuizMetadata{
			QuizID:        sess.Quiz.ID,
			Name:          sess.Quiz.Name,
			Description:   sess.Quiz.Description,
			NumQuestions:  len(sess.Quiz.Questions),
			TotalDuration: sess.Quiz.TotalDuration(),
		},
	}, nil
}

// ListSessions partitions the quiz's sessions into active (not END) and inactive ids,
// both ascending.
func (s *QuizService) ListSessions(ctx context.Context, token, quizID string) (domain.SessionList, error) {
	userID, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return domain.SessionList{}, err
	}
	if _, err := s.ownedQuiz(ctx, userID, quizID); err != nil {
		return domain.SessionList{}, err
	}
	sessions, err := s.sessions.ListByQuiz(ctx, quizID)
	if err != nil {
		return domain.SessionList{}, fmt.Errorf("list sessions: %w", err)
	}

	list := domain.SessionList{Active: make([]string, 0), Inactive: make([]string, 0)}
	for _, sess := range sessions {
		if sess.State == domain.StateEnd {
			list.Inactive = append(list.Inactive, sess.ID)
		} else {
			list.Active = append(list.Active, sess.ID)
		}
	}
	sort.Strings(list.Active)
	sort.Strings(list.Inactive)
	return list, nil
}

// PlayerStatus is what a player polls while waiting for the next round.
func (s *QuizService) PlayerStatus(ctx context.Context, playerID string) (domain.PlayerStatus, error) {
	sess, err := s.sessionOfPlayer(ctx, playerID)
	if err != nil {
		return domain.PlayerStatus{}, err
	}
	return domain.PlayerStatus{
		State:        sess.State,
		NumQuestions: len(sess.Quiz.Questions),
		AtQuestion:   sess.AtQuestion,
	}, nil
}

// QuestionForPlayer returns the current question without correctness flags.
func (s *QuizService) QuestionForPlayer(ctx context.Context, playerID string, position int) (domain.PlayerQuestion, error) {
	sess, err := s.sessionOfPlayer(ctx, playerID)
	if err != nil {
		return domain.PlayerQuestion{}, err
	}
	q, err := currentQuestion(sess, position)
	if err != nil {
		return domain.PlayerQuestion{}, err
	}
	switch sess.State {
	case domain.StateQuestionOpen, domain.StateQuestionClose, domain.StateAnswerShow:
	default:
		return domain.PlayerQuestion{}, domain.Conflictf("question is not visible in state %s", sess.State)
	}

	out := domain.PlayerQuestion{
		QuestionID: q.ID,
		Prompt:     q.Prompt,
		Duration:   q.Duration,
		Thumbnail:  q.Thumbnail,
		Points:     q.Points,
		Answers:    make([]domain.PlayerAnswer, len(q.Answers)),
	}
	for i, a := range q.Answers {
		out.Answers[i] = domain.PlayerAnswer{ID: a.ID, Text: a.Text, Colour: a.Colour}
	}
	return out, nil
}

// SubmitAnswer appends a response to the open question. Earlier responses are kept;
// the scoring engine's resubmit policy decides which one counts.
func (s *QuizService) SubmitAnswer(ctx context.Context, playerID string, position int, answerIDs []string) error {
	sessionID, err := s.sessions.SessionIDForPlayer(ctx, playerID)
	if err != nil {
		return err
	}

	_, err = s.sessions.Update(ctx, sessionID, func(sess *domain.Session) error {
		if position < 1 || position > len(sess.Quiz.Questions) {
			return domain.Invalidf("question position %d is out of range", position)
		}
		if sess.State != domain.StateQuestionOpen {
			return domain.Invalidf("answers are not accepted in state %s", sess.State)
		}
		if sess.AtQuestion != position {
			return domain.Invalidf("question %d is not the current question", position)
		}
		if len(answerIDs) == 0 {
			return domain.Invalidf("at least one answer id is required")
		}
		q, _ := sess.CurrentQuestion()
		seen := make(map[string]struct{}, len(answerIDs))
		for _, id := range answerIDs {
			if _, dup := seen[id]; dup {
				return domain.Invalidf("answer id %s submitted twice", id)
			}
			seen[id] = struct{}{}
			if !q.HasAnswer(id) {
				return domain.Invalidf("answer id %s does not belong to question %d", id, position)
			}
		}

		if sess.Responses == nil {
			sess.Responses = make(map[string][]domain.PlayerResponse)
		}
		sess.Responses[q.ID] = append(sess.Responses[q.ID], domain.PlayerResponse{
			PlayerID:    playerID,
			AnswerIDs:   append([]string(nil), answerIDs...),
			SubmittedAt: s.clock.Now(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.AnswerSubmitted()
	s.logger.DebugContext(ctx, "answer submitted", "session_id", sessionID, "player_id", playerID, "position", position)
	return nil
}

// QuestionResults is the breakdown of the current question while answers are shown.
func (s *QuizService) QuestionResults(ctx context.Context, playerID string, position int) (domain.QuestionResult, error) {
	sess, err := s.sessionOfPlayer(ctx, playerID)
	if err != nil {
		return domain.QuestionResult{}, err
	}
	if position < 1 || position > len(sess.Quiz.Questions) {
		return domain.QuestionResult{}, domain.Invalidf("question position %d is out of range", position)
	}
	if sess.State != domain.StateAnswerShow {
		return domain.QuestionResult{}, domain.Conflictf("results are not available in state %s", sess.State)
	}
	q, err := currentQuestion(sess, position)
	if err != nil {
		return domain.QuestionResult{}, err
	}
	return s.engine.QuestionResult(sess, q), nil
}

// FinalResults is the player's view of the leaderboard.
func (s *QuizService) FinalResults(ctx context.Context, playerID string) (domain.FinalResults, error) {
	sess, err := s.sessionOfPlayer(ctx, playerID)
	if err != nil {
		return domain.FinalResults{}, err
	}
	return s.finalResults(sess)
}

// SessionFinalResults is the owner's view of the leaderboard.
func (s *QuizService) SessionFinalResults(ctx context.Context, token, sessionID string) (domain.FinalResults, error) {
	sess, err := s.ownedSession(ctx, token, sessionID)
	if err != nil {
		return domain.FinalResults{}, err
	}
	return s.finalResults(sess)
}

func (s *QuizService) finalResults(sess *domain.Session) (domain.FinalResults, error) {
	if sess.State != domain.StateFinalResults {
		return domain.FinalResults{}, domain.Conflictf("final results are not available in state %s", sess.State)
	}
	return s.engine.FinalResults(sess), nil
}

// ExportResultsCSV renders the rank table as CSV and returns the artifact URL.
func (s *QuizService) ExportResultsCSV(ctx context.Context, token, sessionID string) (string, error) {
	return s.ExportResults(ctx, token, sessionID, "csv")
}

// ExportResults renders the rank table in the given format ("csv" or "xlsx").
func (s *QuizService) ExportResults(ctx context.Context, token, sessionID, format string) (string, error) {
	sess, err := s.ownedSession(ctx, token, sessionID)
	if err != nil {
		return "", err
	}
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		return "", domain.Invalidf("unsupported export format %q", format)
	}
	if sess.State != domain.StateFinalResults {
		return "", domain.Conflictf("results can only be exported in state %s", domain.StateFinalResults)
	}

	rows := s.engine.RankTable(sess)
	var data []byte
	switch format {
	case "csv":
		data, err = export.CSV(rows)
	case "xlsx":
		data, err = export.XLSX(sess.Quiz, rows)
	}
	if err != nil {
		return "", fmt.Errorf("render %s export: %w", format, err)
	}

	ref, err := s.artifacts.Save(ctx, fmt.Sprintf("%s.%s", sess.ID, format), data)
	if err != nil {
		return "", fmt.Errorf("store export: %w", err)
	}
	s.metrics.ResultsExported(format)
	s.logger.InfoContext(ctx, "results exported", "session_id", sessionID, "format", format, "bytes", len(data))
	return ref, nil
}

// Subscribe streams committed updates of a session, starting with its current status.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.SessionUpdate, func(), error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(sessionID, updateOf(sess))
	return ch, cancel, nil
}

// Reset cancels every pending timer, then drops all sessions and subscriptions.
func (s *QuizService) Reset(ctx context.Context) error {
	cancelled := s.scheduler.CancelAll()
	if err := s.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	s.hub.closeAll()
	s.logger.InfoContext(ctx, "state reset", "timers_cancelled", cancelled)
	return nil
}

func (s *QuizService) ownedQuiz(ctx context.Context, userID, quizID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.OwnerID != userID {
		return domain.Quiz{}, domain.ErrNotQuizOwner
	}
	return quiz, nil
}

func (s *QuizService) ownedSession(ctx context.Context, token, sessionID string) (*domain.Session, error) {
	userID, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != userID {
		return nil, domain.ErrNotQuizOwner
	}
	return sess, nil
}

func (s *QuizService) sessionOfPlayer(ctx context.Context, playerID string) (*domain.Session, error) {
	sessionID, err := s.sessions.SessionIDForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return s.sessions.Get(ctx, sessionID)
}

// currentQuestion resolves position and requires it to be the session's current question.
func currentQuestion(sess *domain.Session, position int) (domain.Question, error) {
	q, ok := sess.QuestionAt(position)
	if !ok {
		return domain.Question{}, domain.Invalidf("question position %d is out of range", position)
	}
	if sess.AtQuestion != position {
		return domain.Question{}, domain.Invalidf("question %d is not the current question", position)
	}
	return q, nil
}
