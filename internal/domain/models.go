package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Answer is one selectable option of a question.
type Answer struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Colour  string `json:"colour" yaml:"colour"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question models a multiple-choice question with one or more correct answers.
type Question struct {
	ID        string   `json:"id" yaml:"id"`
	Prompt    string   `json:"prompt" yaml:"prompt"`
	Duration  int      `json:"duration" yaml:"duration"` // seconds the question stays open
	Points    int      `json:"points" yaml:"points"`
	Thumbnail string   `json:"thumbnail,omitempty" yaml:"thumbnail"`
	Answers   []Answer `json:"answers" yaml:"answers"`
}

// CorrectAnswerIDs returns the ids flagged correct, in answer order.
func (q Question) CorrectAnswerIDs() []string {
	ids := make([]string, 0, len(q.Answers))
	for _, a := range q.Answers {
		if a.Correct {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// HasAnswer reports whether id belongs to the question.
func (q Question) HasAnswer(id string) bool {
	for _, a := range q.Answers {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Quiz is the definition produced by quiz authoring.
type Quiz struct {
	ID          string     `json:"id" yaml:"id"`
	OwnerID     string     `json:"ownerId" yaml:"owner_id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// Clone deep-copies the quiz so later edits to the master never reach a running session.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Answers = append([]Answer(nil), question.Answers...)
		out.Questions[i] = question
	}
	return out
}

// TotalDuration sums all question durations in seconds.
func (q Quiz) TotalDuration() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Duration
	}
	return total
}

// Player is an anonymous participant of a session.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// PlayerResponse is one submission; responses are never edited once recorded.
type PlayerResponse struct {
	PlayerID    string    `json:"playerId"`
	AnswerIDs   []string  `json:"answerIds"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Session is one live run-through of a quiz.
type Session struct {
	ID                 string                      `json:"id"`
	QuizID             string                      `json:"quizId"`
	OwnerID            string                      `json:"ownerId"`
	State              State                       `json:"state"`
	Quiz               Quiz                        `json:"quiz"`
	AtQuestion         int                         `json:"atQuestion"`
	AutoStartThreshold int                         `json:"autoStartThreshold"`
	Players            []Player                    `json:"players"`
	QuestionsVisited   []string                    `json:"questionsVisited"`
	Responses          map[string][]PlayerResponse `json:"responses"`
	RoundStartedAt     time.Time                   `json:"roundStartedAt"`
	RoundStarts        map[string]time.Time        `json:"roundStarts"`
	CreatedAt          time.Time                   `json:"createdAt"`
	UpdatedAt          time.Time                   `json:"updatedAt"`
	// Revision counts committed updates; the store bumps it on every successful Update.
	Revision int64 `json:"revision"`
}

// CurrentQuestion returns the question at AtQuestion, if any.
func (s *Session) CurrentQuestion() (Question, bool) {
	return s.QuestionAt(s.AtQuestion)
}

// QuestionAt resolves a 1-based position.
func (s *Session) QuestionAt(position int) (Question, bool) {
	if position < 1 || position > len(s.Quiz.Questions) {
		return Question{}, false
	}
	return s.Quiz.Questions[position-1], true
}

// Player looks a player up by id.
func (s *Session) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// HasPlayerNamed reports whether name is taken in this session.
func (s *Session) HasPlayerNamed(name string) bool {
	for _, p := range s.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	out := *s
	out.Quiz = s.Quiz.Clone()
	out.Players = append([]Player(nil), s.Players...)
	out.QuestionsVisited = append([]string(nil), s.QuestionsVisited...)
	out.Responses = make(map[string][]PlayerResponse, len(s.Responses))
	for qid, responses := range s.Responses {
		copied := make([]PlayerResponse, len(responses))
		for i, r := range responses {
			r.AnswerIDs = append([]string(nil), r.AnswerIDs...)
			copied[i] = r
		}
		out.Responses[qid] = copied
	}
	out.RoundStarts = make(map[string]time.Time, len(s.RoundStarts))
	for qid, at := range s.RoundStarts {
		out.RoundStarts[qid] = at
	}
	return &out
}

// QuizMetadata is the quiz summary shown to the session owner.
type QuizMetadata struct {
	QuizID        string `json:"quizId"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	NumQuestions  int    `json:"numQuestions"`
	TotalDuration int    `json:"duration"`
}

// SessionStatus is the owner's view of a session.
type SessionStatus struct {
	SessionID  string       `json:"sessionId"`
	State      State        `json:"state"`
	AtQuestion int          `json:"atQuestion"`
	Players    []string     `json:"players"`
	Metadata   QuizMetadata `json:"metadata"`
}

// PlayerStatus is what a player polls while waiting.
type PlayerStatus struct {
	State        State `json:"state"`
	NumQuestions int   `json:"numQuestions"`
	AtQuestion   int   `json:"atQuestion"`
}

// PlayerAnswer is an answer as shown to players, without its correctness flag.
type PlayerAnswer struct {
	ID     string `json:"answerId"`
	Text   string `json:"answer"`
	Colour string `json:"colour"`
}

// PlayerQuestion is a question as shown to players.
type PlayerQuestion struct {
	QuestionID string         `json:"questionId"`
	Prompt     string         `json:"question"`
	Duration   int            `json:"duration"`
	Thumbnail  string         `json:"thumbnailUrl,omitempty"`
	Points     int            `json:"points"`
	Answers    []PlayerAnswer `json:"answers"`
}

// AnswerPlayers lists who picked a correct answer as part of a fully correct submission.
type AnswerPlayers struct {
	AnswerID    string   `json:"answerId"`
	PlayerNames []string `json:"playersCorrect"`
}

// QuestionResult is the per-question breakdown.
type QuestionResult struct {
	QuestionID        string          `json:"questionId"`
	PlayersCorrect    []AnswerPlayers `json:"playersCorrectList"`
	AverageAnswerTime int             `json:"averageAnswerTime"`
	PercentCorrect    int             `json:"percentCorrect"`
}

// PlayerScore is one leaderboard row.
type PlayerScore struct {
	Name  string          `json:"name"`
	Score decimal.Decimal `json:"score"`
}

// MarshalJSON writes the score as a JSON number with one decimal place.
func (p PlayerScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name  string      `json:"name"`
		Score json.Number `json:"score"`
	}{Name: p.Name, Score: json.Number(p.Score.StringFixed(1))})
}

// FinalResults is the leaderboard plus per-question breakdowns.
type FinalResults struct {
	UsersRankedByScore []PlayerScore    `json:"usersRankedByScore"`
	QuestionResults    []QuestionResult `json:"questionResults"`
}

// SessionList partitions an owner's sessions of one quiz.
type SessionList struct {
	Active   []string `json:"activeSessions"`
	Inactive []string `json:"inactiveSessions"`
}

// SessionUpdate is pushed to subscribers after every committed change.
type SessionUpdate struct {
	SessionID  string    `json:"sessionId"`
	State      State     `json:"state"`
	AtQuestion int       `json:"atQuestion"`
	Players    []string  `json:"players"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Revision   int64     `json:"revision"`
}
