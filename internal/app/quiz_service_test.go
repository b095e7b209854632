package app_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/scoring"
	"live-quiz-service/internal/timer/timertest"
)

const (
	ownerToken = "owner-token"
	otherToken = "other-token"
	countdown  = 3 * time.Second
)

type fakeArtifacts struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (f *fakeArtifacts) Save(_ context.Context, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[name] = data
	return "http://test/exports/" + name, nil
}

type QuizServiceSuite struct {
	suite.Suite

	ctx       context.Context
	clock     *timertest.Manual
	sessions  *memory.SessionStore
	artifacts *fakeArtifacts
	service   *app.QuizService
}

func TestQuizServiceSuite(t *testing.T) {
	suite.Run(t, new(QuizServiceSuite))
}

func (s *QuizServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.service = s.newService(scoring.Legacy)
}

func (s *QuizServiceSuite) newService(policy scoring.ResubmitPolicy) *app.QuizService {
	s.clock = timertest.New(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	s.sessions = memory.NewSessionStore()
	s.artifacts = &fakeArtifacts{}
	return app.NewQuizService(app.Deps{
		Sessions:  s.sessions,
		Quizzes:   memory.NewQuizRepository(memory.NewStaticQuizLoader(testQuizzes()), time.Minute),
		Tokens:    memory.NewStaticTokenValidator(map[string]string{ownerToken: "owner-1", otherToken: "owner-2"}),
		Scheduler: s.clock,
		Artifacts: s.artifacts,
		Clock:     s.clock,
	}, app.Config{Countdown: countdown, ResubmitPolicy: policy})
}

func testQuizzes() map[string]domain.Quiz {
	answers := func(correct ...string) []domain.Answer {
		out := make([]domain.Answer, 0, 4)
		for _, id := range []string{"A", "B", "C", "D"} {
			isCorrect := false
			for _, c := range correct {
				isCorrect = isCorrect || c == id
			}
			out = append(out, domain.Answer{ID: id, Text: "answer " + id, Colour: "red", Correct: isCorrect})
		}
		return out
	}
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:      "quiz-1",
			OwnerID: "owner-1",
			Name:    "General",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "first", Duration: 10, Points: 9, Answers: answers("A")},
				{ID: "q2", Prompt: "second", Duration: 5, Points: 4, Answers: answers("A", "B")},
			},
		},
		"quiz-2": {
			ID:        "quiz-2",
			OwnerID:   "owner-1",
			Name:      "Geography",
			Questions: []domain.Question{{ID: "g1", Prompt: "capital", Duration: 10, Points: 5, Answers: answers("C")}},
		},
		"empty": {ID: "empty", OwnerID: "owner-1"},
	}
}

func (s *QuizServiceSuite) start(autoStart int) string {
	id, err := s.service.StartSession(s.ctx, ownerToken, "quiz-1", autoStart)
	s.Require().NoError(err)
	return id
}

func (s *QuizServiceSuite) join(sessionID, name string) string {
	id, err := s.service.JoinSession(s.ctx, sessionID, name)
	s.Require().NoError(err)
	return id
}

func (s *QuizServiceSuite) act(sessionID, action string) {
	s.Require().NoError(s.service.ApplyAction(s.ctx, ownerToken, sessionID, action))
}

func (s *QuizServiceSuite) state(sessionID string) domain.State {
	status, err := s.service.SessionStatus(s.ctx, ownerToken, sessionID)
	s.Require().NoError(err)
	return status.State
}

// forceState drives a fresh session into the wanted state through the public API.
func (s *QuizServiceSuite) forceState(want domain.State) string {
	id := s.start(0)
	switch want {
	case domain.StateLobby:
	case domain.StateQuestionCountdown:
		s.act(id, "NEXT_QUESTION")
	case domain.StateQuestionOpen:
		s.act(id, "NEXT_QUESTION")
		s.clock.Advance(countdown)
	case domain.StateQuestionClose:
		s.act(id, "NEXT_QUESTION")
		s.clock.Advance(countdown + 10*time.Second)
	case domain.StateAnswerShow:
		s.act(id, "NEXT_QUESTION")
		s.clock.Advance(countdown)
		s.act(id, "GO_TO_ANSWER")
	case domain.StateFinalResults:
		s.act(id, "NEXT_QUESTION")
		s.clock.Advance(countdown)
		s.act(id, "GO_TO_ANSWER")
		s.act(id, "GO_TO_FINAL_RESULTS")
	case domain.StateEnd:
		s.act(id, "END")
	}
	s.Require().Equal(want, s.state(id))
	return id
}

func (s *QuizServiceSuite) TestTransitionTable() {
	allowed := map[domain.State]map[domain.Action]domain.State{
		domain.StateLobby: {
			domain.ActionNextQuestion: domain.StateQuestionCountdown,
			domain.ActionEnd:          domain.StateEnd,
		},
		domain.StateQuestionCountdown: {
			domain.ActionEnd: domain.StateEnd,
		},
		domain.StateQuestionOpen: {
			domain.ActionGoToAnswer: domain.StateAnswerShow,
			domain.ActionEnd:        domain.StateEnd,
		},
		domain.StateQuestionClose: {
			domain.ActionGoToAnswer:       domain.StateAnswerShow,
			domain.ActionNextQuestion:     domain.StateQuestionCountdown,
			domain.ActionGoToFinalResults: domain.StateFinalResults,
			domain.ActionEnd:              domain.StateEnd,
		},
		domain.StateAnswerShow: {
			domain.ActionNextQuestion:     domain.StateQuestionCountdown,
			domain.ActionGoToFinalResults: domain.StateFinalResults,
			domain.ActionEnd:              domain.StateEnd,
		},
		domain.StateFinalResults: {
			domain.ActionEnd: domain.StateEnd,
		},
		domain.StateEnd: {},
	}

	for _, from := range domain.AllStates() {
		for _, action := range domain.AllActions() {
			// A fresh service per case keeps the active-session cap out of the way.
			s.service = s.newService(scoring.Legacy)
			id := s.forceState(from)
			err := s.service.ApplyAction(s.ctx, ownerToken, id, action.String())

			want, ok := allowed[from][action]
			if ok {
				s.Require().NoError(err, "%s from %s", action, from)
				s.Equal(want, s.state(id), "%s from %s", action, from)
			} else {
				s.ErrorIs(err, domain.ErrStateConflict, "%s from %s", action, from)
				s.Equal(from, s.state(id), "%s from %s must not change state", action, from)
			}
		}
	}
}

func (s *QuizServiceSuite) TestUnknownActionIsInvalid() {
	id := s.start(0)
	err := s.service.ApplyAction(s.ctx, ownerToken, id, "JUMP")
	s.ErrorIs(err, domain.ErrInvalid)
	s.Equal(domain.StateLobby, s.state(id))
}

func (s *QuizServiceSuite) TestRoundTimers() {
	id := s.start(0)
	s.act(id, "NEXT_QUESTION")

	status, err := s.service.SessionStatus(s.ctx, ownerToken, id)
	s.Require().NoError(err)
	s.Equal(1, status.AtQuestion)
	s.Equal(2, s.clock.Pending())

	s.clock.Advance(countdown - time.Millisecond)
	s.Equal(domain.StateQuestionCountdown, s.state(id))

	s.clock.Advance(time.Millisecond)
	s.Equal(domain.StateQuestionOpen, s.state(id))

	sess, err := s.sessions.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal([]string{"q1"}, sess.QuestionsVisited)
	s.Equal(s.clock.Now(), sess.RoundStartedAt)
	s.Equal(s.clock.Now(), sess.RoundStarts["q1"])

	s.clock.Advance(10*time.Second - time.Millisecond)
	s.Equal(domain.StateQuestionOpen, s.state(id))
	s.clock.Advance(time.Millisecond)
	s.Equal(domain.StateQuestionClose, s.state(id))
	s.Equal(0, s.clock.Pending())
}

func (s *QuizServiceSuite) TestStaleCloseTimerDoesNotResurrectClose() {
	id := s.start(0)
	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)
	s.act(id, "GO_TO_ANSWER")

	s.clock.Advance(time.Minute)
	s.Equal(domain.StateAnswerShow, s.state(id))
}

func (s *QuizServiceSuite) TestStaleTimersFromPreviousRound() {
	id := s.start(0)
	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)
	s.act(id, "GO_TO_ANSWER")
	s.act(id, "NEXT_QUESTION")

	s.Equal(2, s.clock.Pending(), "the new round replaces the old timers")
	s.clock.Advance(countdown)
	s.Equal(domain.StateQuestionOpen, s.state(id))

	status, _ := s.service.SessionStatus(s.ctx, ownerToken, id)
	s.Equal(2, status.AtQuestion)
	s.clock.Advance(5 * time.Second)
	s.Equal(domain.StateQuestionClose, s.state(id))
}

func (s *QuizServiceSuite) TestEndCancelsTimers() {
	id := s.start(0)
	s.act(id, "NEXT_QUESTION")
	s.act(id, "END")

	s.Equal(0, s.clock.Pending())
	status, _ := s.service.SessionStatus(s.ctx, ownerToken, id)
	s.Equal(domain.StateEnd, status.State)
	s.Equal(0, status.AtQuestion)
}

func (s *QuizServiceSuite) TestNextQuestionPastLastIsConflict() {
	id := s.start(0)
	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)
	s.act(id, "GO_TO_ANSWER")
	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)
	s.act(id, "GO_TO_ANSWER")

	err := s.service.ApplyAction(s.ctx, ownerToken, id, "NEXT_QUESTION")
	s.ErrorIs(err, domain.ErrStateConflict)
	s.Equal(domain.StateAnswerShow, s.state(id))
}

func (s *QuizServiceSuite) TestAutoStartAtThreshold() {
	id := s.start(3)

	s.join(id, "Amy")
	s.Equal(domain.StateLobby, s.state(id))
	s.join(id, "Bo")
	s.Equal(domain.StateLobby, s.state(id))
	s.join(id, "Cy")
	s.Equal(domain.StateQuestionCountdown, s.state(id))

	s.clock.Advance(countdown)
	s.Equal(domain.StateQuestionOpen, s.state(id))

	_, err := s.service.JoinSession(s.ctx, id, "Late")
	s.ErrorIs(err, domain.ErrStateConflict)
}

func (s *QuizServiceSuite) TestZeroThresholdNeverAutoStarts() {
	id := s.start(0)
	for _, name := range []string{"a", "b", "c", "d"} {
		s.join(id, name)
	}
	s.Equal(domain.StateLobby, s.state(id))
}

func (s *QuizServiceSuite) TestJoinNames() {
	id := s.start(0)
	s.join(id, "Amy")

	_, err := s.service.JoinSession(s.ctx, id, "Amy")
	s.ErrorIs(err, domain.ErrInvalid)

	generated := s.join(id, "")
	sess, err := s.sessions.Get(s.ctx, id)
	s.Require().NoError(err)
	player, ok := sess.Player(generated)
	s.Require().True(ok)
	s.Regexp(`^[a-z]{5}[0-9]{3}$`, player.Name)

	seen := map[rune]bool{}
	for _, r := range player.Name[:5] {
		s.False(seen[r], "letters are drawn without replacement")
		seen[r] = true
	}

	_, err = s.service.JoinSession(s.ctx, "missing", "Bo")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *QuizServiceSuite) TestStartSessionLimits() {
	_, err := s.service.StartSession(s.ctx, ownerToken, "quiz-1", 51)
	s.ErrorIs(err, domain.ErrInvalid)
	_, err = s.service.StartSession(s.ctx, ownerToken, "quiz-1", -1)
	s.ErrorIs(err, domain.ErrInvalid)
	_, err = s.service.StartSession(s.ctx, ownerToken, "empty", 0)
	s.ErrorIs(err, domain.ErrInvalid)
	_, err = s.service.StartSession(s.ctx, "bad", "quiz-1", 0)
	s.ErrorIs(err, domain.ErrUnauthenticated)
	_, err = s.service.StartSession(s.ctx, otherToken, "quiz-1", 0)
	s.ErrorIs(err, domain.ErrForbidden)
	_, err = s.service.StartSession(s.ctx, ownerToken, "nope", 0)
	s.ErrorIs(err, domain.ErrNotFound)

	ids := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		ids = append(ids, s.start(50))
	}
	_, err = s.service.StartSession(s.ctx, ownerToken, "quiz-1", 0)
	s.ErrorIs(err, domain.ErrInvalid)

	s.act(ids[0], "END")
	s.start(0)
}

func (s *QuizServiceSuite) TestOwnershipChecks() {
	id := s.start(0)

	_, err := s.service.SessionStatus(s.ctx, otherToken, id)
	s.ErrorIs(err, domain.ErrForbidden)
	s.ErrorIs(s.service.ApplyAction(s.ctx, otherToken, id, "END"), domain.ErrForbidden)
	_, err = s.service.SessionStatus(s.ctx, "", id)
	s.ErrorIs(err, domain.ErrUnauthenticated)
	_, err = s.service.SessionStatus(s.ctx, ownerToken, "missing")
	s.ErrorIs(err, domain.ErrNotFound)
	_, err = s.service.ListSessions(s.ctx, otherToken, "quiz-1")
	s.ErrorIs(err, domain.ErrForbidden)
	s.Equal(domain.StateLobby, s.state(id))
}

func (s *QuizServiceSuite) TestSessionStatusIsIdempotent() {
	id := s.start(0)
	s.join(id, "Amy")

	first, err := s.service.SessionStatus(s.ctx, ownerToken, id)
	s.Require().NoError(err)
	second, err := s.service.SessionStatus(s.ctx, ownerToken, id)
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal([]string{"Amy"}, first.Players)
	s.Equal(domain.QuizMetadata{QuizID: "quiz-1", Name: "General", NumQuestions: 2, TotalDuration: 15}, first.Metadata)
}

func (s *QuizServiceSuite) TestListSessions() {
	a := s.start(0)
	b := s.start(0)
	c := s.start(0)
	s.act(b, "END")

	list, err := s.service.ListSessions(s.ctx, ownerToken, "quiz-1")
	s.Require().NoError(err)

	active := []string{a, c}
	sort.Strings(active)
	s.Equal(active, list.Active)
	s.Equal([]string{b}, list.Inactive)
}

func (s *QuizServiceSuite) TestPlayerViews() {
	id := s.start(0)
	player := s.join(id, "Amy")

	status, err := s.service.PlayerStatus(s.ctx, player)
	s.Require().NoError(err)
	s.Equal(domain.PlayerStatus{State: domain.StateLobby, NumQuestions: 2}, status)

	_, err = s.service.QuestionForPlayer(s.ctx, player, 1)
	s.Error(err)

	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)

	q, err := s.service.QuestionForPlayer(s.ctx, player, 1)
	s.Require().NoError(err)
	s.Equal("q1", q.QuestionID)
	s.Equal(9, q.Points)
	s.Len(q.Answers, 4)
	s.Equal(domain.PlayerAnswer{ID: "A", Text: "answer A", Colour: "red"}, q.Answers[0])

	_, err = s.service.QuestionForPlayer(s.ctx, player, 2)
	s.ErrorIs(err, domain.ErrInvalid)
	_, err = s.service.QuestionForPlayer(s.ctx, player, 3)
	s.ErrorIs(err, domain.ErrInvalid)

	_, err = s.service.PlayerStatus(s.ctx, "ghost")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *QuizServiceSuite) TestActiveSessionCapSpansOwnerQuizzes() {
	ids := make([]string, 0, 10)
	for i := 0; i < 5; i++ {
		ids = append(ids, s.start(0))
		id, err := s.service.StartSession(s.ctx, ownerToken, "quiz-2", 0)
		s.Require().NoError(err)
		ids = append(ids, id)
	}

	_, err := s.service.StartSession(s.ctx, ownerToken, "quiz-2", 0)
	s.ErrorIs(err, domain.ErrInvalid, "the eleventh session of the owner is refused")
	_, err = s.service.StartSession(s.ctx, ownerToken, "quiz-1", 0)
	s.ErrorIs(err, domain.ErrInvalid)

	s.act(ids[1], "END")
	_, err = s.service.StartSession(s.ctx, ownerToken, "quiz-1", 0)
	s.NoError(err, "an ended session on another quiz frees a slot")
}

func (s *QuizServiceSuite) TestSubmitAnswerValidation() {
	id := s.start(0)
	player := s.join(id, "Amy")

	s.ErrorIs(s.service.SubmitAnswer(s.ctx, player, 1, []string{"A"}), domain.ErrInvalid, "lobby")

	s.act(id, "NEXT_QUESTION")
	s.ErrorIs(s.service.SubmitAnswer(s.ctx, player, 1, []string{"A"}), domain.ErrInvalid, "countdown")

	s.clock.Advance(countdown)
	cases := map[string]struct {
		position int
		answers  []string
	}{
		"empty":         {1, nil},
		"duplicate":     {1, []string{"A", "A"}},
		"foreign id":    {1, []string{"Z"}},
		"not current":   {2, []string{"A"}},
		"out of range":  {3, []string{"A"}},
		"zero position": {0, []string{"A"}},
	}
	for name, tc := range cases {
		err := s.service.SubmitAnswer(s.ctx, player, tc.position, tc.answers)
		s.ErrorIs(err, domain.ErrInvalid, name)
	}

	s.ErrorIs(s.service.SubmitAnswer(s.ctx, "ghost", 1, []string{"A"}), domain.ErrNotFound)

	s.Require().NoError(s.service.SubmitAnswer(s.ctx, player, 1, []string{"A"}))
	s.Require().NoError(s.service.SubmitAnswer(s.ctx, player, 1, []string{"B"}))

	sess, _ := s.sessions.Get(s.ctx, id)
	s.Len(sess.Responses["q1"], 2, "every submission is appended")
	s.Equal(domain.StateQuestionOpen, sess.State)

	s.clock.Advance(10 * time.Second)
	s.ErrorIs(s.service.SubmitAnswer(s.ctx, player, 1, []string{"A"}), domain.ErrInvalid, "closed")
}

func (s *QuizServiceSuite) playRound(sessionID string, answers map[string][]string, order []string, gap time.Duration) {
	for _, player := range order {
		s.clock.Advance(gap)
		s.Require().NoError(s.service.SubmitAnswer(s.ctx, player, s.atQuestion(sessionID), answers[player]))
	}
}

func (s *QuizServiceSuite) atQuestion(sessionID string) int {
	status, err := s.service.SessionStatus(s.ctx, ownerToken, sessionID)
	s.Require().NoError(err)
	return status.AtQuestion
}

func (s *QuizServiceSuite) TestScoringEndToEnd() {
	id := s.start(0)
	amy := s.join(id, "Amy")
	bo := s.join(id, "Bo")
	cy := s.join(id, "Cy")

	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)
	// Bo answers first, then Amy, then Cy.
	s.playRound(id, map[string][]string{amy: {"A"}, bo: {"A"}, cy: {"A"}}, []string{bo, amy, cy}, time.Second)
	s.act(id, "GO_TO_ANSWER")

	result, err := s.service.QuestionResults(s.ctx, amy, 1)
	s.Require().NoError(err)
	s.Equal([]domain.AnswerPlayers{{AnswerID: "A", PlayerNames: []string{"Amy", "Bo", "Cy"}}}, result.PlayersCorrect)
	s.Equal(2, result.AverageAnswerTime)
	s.Equal(33, result.PercentCorrect)

	_, err = s.service.FinalResults(s.ctx, amy)
	s.ErrorIs(err, domain.ErrStateConflict)

	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)
	// Amy picks a correct subset only.
	s.playRound(id, map[string][]string{amy: {"A"}, bo: {"B", "A"}}, []string{amy, bo}, time.Second)
	s.clock.Advance(5 * time.Second)
	s.Equal(domain.StateQuestionClose, s.state(id))

	_, err = s.service.QuestionResults(s.ctx, amy, 2)
	s.ErrorIs(err, domain.ErrStateConflict)

	s.act(id, "GO_TO_FINAL_RESULTS")

	final, err := s.service.FinalResults(s.ctx, cy)
	s.Require().NoError(err)
	s.Require().Len(final.UsersRankedByScore, 3)
	s.Equal("Bo", final.UsersRankedByScore[0].Name)
	s.Equal("13.0", final.UsersRankedByScore[0].Score.StringFixed(1))
	s.Equal("Amy", final.UsersRankedByScore[1].Name)
	s.Equal("4.5", final.UsersRankedByScore[1].Score.StringFixed(1))
	s.Equal("Cy", final.UsersRankedByScore[2].Name)
	s.Equal("3.0", final.UsersRankedByScore[2].Score.StringFixed(1))
	s.Len(final.QuestionResults, 2)

	owner, err := s.service.SessionFinalResults(s.ctx, ownerToken, id)
	s.Require().NoError(err)
	s.Equal(final, owner)

	ref, err := s.service.ExportResultsCSV(s.ctx, ownerToken, id)
	s.Require().NoError(err)
	s.Equal("http://test/exports/"+id+".csv", ref)
	s.Equal("4.5,2,0.0,2\n9.0,1,4.0,1\n3.0,3,0.0,2\n", string(s.artifacts.saved[id+".csv"]))

	ref, err = s.service.ExportResults(s.ctx, ownerToken, id, "xlsx")
	s.Require().NoError(err)
	s.Equal("http://test/exports/"+id+".xlsx", ref)
	s.NotEmpty(s.artifacts.saved[id+".xlsx"])

	_, err = s.service.ExportResults(s.ctx, ownerToken, id, "pdf")
	s.ErrorIs(err, domain.ErrInvalid)
}

func (s *QuizServiceSuite) TestExportRequiresFinalResults() {
	id := s.start(0)
	_, err := s.service.ExportResultsCSV(s.ctx, ownerToken, id)
	s.ErrorIs(err, domain.ErrStateConflict)
	_, err = s.service.SessionFinalResults(s.ctx, ownerToken, id)
	s.ErrorIs(err, domain.ErrStateConflict)
}

func (s *QuizServiceSuite) TestResubmitPolicyLatest() {
	s.service = s.newService(scoring.KeepLatest)
	id := s.start(0)
	amy := s.join(id, "Amy")
	bo := s.join(id, "Bo")

	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)
	s.playRound(id, map[string][]string{amy: {"B"}, bo: {"A"}}, []string{amy, bo}, time.Second)
	s.playRound(id, map[string][]string{amy: {"A"}}, []string{amy}, time.Second)
	s.act(id, "GO_TO_ANSWER")
	s.act(id, "GO_TO_FINAL_RESULTS")

	final, err := s.service.FinalResults(s.ctx, amy)
	s.Require().NoError(err)
	s.Equal("Bo", final.UsersRankedByScore[0].Name)
	s.Equal("9.0", final.UsersRankedByScore[0].Score.StringFixed(1))
	s.Equal("Amy", final.UsersRankedByScore[1].Name)
	s.Equal("4.5", final.UsersRankedByScore[1].Score.StringFixed(1))
}

func (s *QuizServiceSuite) TestResubmitLegacyResubmissionHoldsRankingSlot() {
	id := s.start(0)
	amy := s.join(id, "Amy")
	bo := s.join(id, "Bo")

	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)
	s.playRound(id, map[string][]string{amy: {"B"}}, []string{amy}, time.Second)
	s.playRound(id, map[string][]string{amy: {"A"}, bo: {"A"}}, []string{amy, bo}, time.Second)
	s.act(id, "GO_TO_ANSWER")
	s.act(id, "GO_TO_FINAL_RESULTS")

	final, err := s.service.FinalResults(s.ctx, bo)
	s.Require().NoError(err)
	s.Equal("Bo", final.UsersRankedByScore[0].Name)
	s.Equal("4.5", final.UsersRankedByScore[0].Score.StringFixed(1))
	s.True(final.UsersRankedByScore[1].Score.IsZero())
}

func (s *QuizServiceSuite) TestResubmitPolicyFirstIgnoresResubmission() {
	s.service = s.newService(scoring.KeepFirst)
	id := s.start(0)
	amy := s.join(id, "Amy")

	s.act(id, "NEXT_QUESTION")
	s.clock.Advance(countdown)
	s.playRound(id, map[string][]string{amy: {"B"}}, []string{amy}, time.Second)
	s.playRound(id, map[string][]string{amy: {"A"}}, []string{amy}, time.Second)
	s.act(id, "GO_TO_ANSWER")
	s.act(id, "GO_TO_FINAL_RESULTS")

	final, err := s.service.FinalResults(s.ctx, amy)
	s.Require().NoError(err)
	s.True(final.UsersRankedByScore[0].Score.IsZero())
}

func (s *QuizServiceSuite) TestSubscribeReceivesUpdates() {
	id := s.start(0)
	updates, cancel, err := s.service.Subscribe(s.ctx, id)
	s.Require().NoError(err)
	defer cancel()

	initial := <-updates
	s.Equal(domain.StateLobby, initial.State)

	s.join(id, "Amy")
	joined := <-updates
	s.Equal([]string{"Amy"}, joined.Players)

	s.act(id, "NEXT_QUESTION")
	s.Equal(domain.StateQuestionCountdown, (<-updates).State)

	s.clock.Advance(countdown)
	opened := <-updates
	s.Equal(domain.StateQuestionOpen, opened.State)
	s.Equal(1, opened.AtQuestion)

	_, _, err = s.service.Subscribe(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *QuizServiceSuite) TestResetCancelsTimersAndClearsSessions() {
	id := s.start(0)
	player := s.join(id, "Amy")
	s.act(id, "NEXT_QUESTION")
	updates, _, err := s.service.Subscribe(s.ctx, id)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Reset(s.ctx))
	s.Equal(0, s.clock.Pending())

	s.clock.Advance(time.Minute)
	_, err = s.service.SessionStatus(s.ctx, ownerToken, id)
	s.ErrorIs(err, domain.ErrNotFound)
	_, err = s.service.PlayerStatus(s.ctx, player)
	s.ErrorIs(err, domain.ErrNotFound)

	for range updates {
	}
}

func (s *QuizServiceSuite) TestTimerOnRemovedSessionIsIgnored() {
	id := s.start(0)
	s.act(id, "NEXT_QUESTION")
	s.Require().NoError(s.sessions.Clear(s.ctx))

	s.NotPanics(func() { s.clock.Advance(time.Minute) })
	_, err := s.sessions.Get(s.ctx, id)
	s.True(errors.Is(err, domain.ErrNotFound))
}
