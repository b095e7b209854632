package app

import (
	"errors"
	"time"

	"live-quiz-service/internal/domain"
)

// errStaleTimer marks a timer callback whose round was already left; the store
// writes nothing and the callback is dropped.
var errStaleTimer = errors.New("stale timer")

type effectKind int

const (
	// effectArmRound cancels the session's timers and arms countdown and close timers.
	effectArmRound effectKind = iota + 1
	// effectCancelTimers drops whatever the session still has pending.
	effectCancelTimers
)

// effect is a side effect requested by a transition. Effects run only after the
// mutation has been committed to the store.
type effect struct {
	kind     effectKind
	position int
	duration time.Duration
}

// transition records a committed state change for publishing and metrics.
type transition struct {
	from, to domain.State
}

// apply executes action against s in place. On error s must be discarded.
func apply(s *domain.Session, action domain.Action) ([]effect, error) {
	switch s.State {
	case domain.StateLobby:
		switch action {
		case domain.ActionNextQuestion:
			return enterCountdown(s, 1)
		case domain.ActionEnd:
			return enterEnd(s), nil
		}
	case domain.StateQuestionCountdown:
		if action == domain.ActionEnd {
			return enterEnd(s), nil
		}
	case domain.StateQuestionOpen:
		switch action {
		case domain.ActionGoToAnswer:
			s.State = domain.StateAnswerShow
			return nil, nil
		case domain.ActionEnd:
			return enterEnd(s), nil
		}
	case domain.StateQuestionClose:
		switch action {
		case domain.ActionGoToAnswer:
			s.State = domain.StateAnswerShow
			return nil, nil
		case domain.ActionNextQuestion:
			return enterCountdown(s, s.AtQuestion+1)
		case domain.ActionGoToFinalResults:
			return enterFinalResults(s), nil
		case domain.ActionEnd:
			return enterEnd(s), nil
		}
	case domain.StateAnswerShow:
		switch action {
		case domain.ActionNextQuestion:
			return enterCountdown(s, s.AtQuestion+1)
		case domain.ActionGoToFinalResults:
			return enterFinalResults(s), nil
		case domain.ActionEnd:
			return enterEnd(s), nil
		}
	case domain.StateFinalResults:
		if action == domain.ActionEnd {
			return enterEnd(s), nil
		}
	case domain.StateEnd:
	}
	return nil, domain.Conflictf("action %s is not allowed in state %s", action, s.State)
}

func enterCountdown(s *domain.Session, position int) ([]effect, error) {
	q, ok := s.QuestionAt(position)
	if !ok {
		return nil, domain.Conflictf("no question after position %d", s.AtQuestion)
	}
	s.State = domain.StateQuestionCountdown
	s.AtQuestion = position
	return []effect{{
		kind:     effectArmRound,
		position: position,
		duration: time.Duration(q.Duration) * time.Second,
	}}, nil
}

func enterFinalResults(s *domain.Session) []effect {
	s.State = domain.StateFinalResults
	s.AtQuestion = 0
	return []effect{{kind: effectCancelTimers}}
}

func enterEnd(s *domain.Session) []effect {
	s.State = domain.StateEnd
	s.AtQuestion = 0
	return []effect{{kind: effectCancelTimers}}
}

// openQuestion is the countdown timer's effect.
func openQuestion(s *domain.Session, position int, now time.Time) error {
	if s.State != domain.StateQuestionCountdown || s.AtQuestion != position {
		return errStaleTimer
	}
	q, _ := s.CurrentQuestion()
	s.State = domain.StateQuestionOpen
	s.RoundStartedAt = now
	if s.RoundStarts == nil {
		s.RoundStarts = make(map[string]time.Time)
	}
	s.RoundStarts[q.ID] = now
	s.QuestionsVisited = append(s.QuestionsVisited, q.ID)
	return nil
}

// closeQuestion is the question-duration timer's effect.
func closeQuestion(s *domain.Session, position int) error {
	if s.State != domain.StateQuestionOpen || s.AtQuestion != position {
		return errStaleTimer
	}
	s.State = domain.StateQuestionClose
	return nil
}
