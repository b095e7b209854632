// Package scoring ranks exact-match answers by submission time and builds
// per-question breakdowns, the final leaderboard and the export rank table.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"live-quiz-service/internal/domain"
)

// ResubmitPolicy selects which of a player's responses to a question counts.
type ResubmitPolicy int

const (
	// Legacy ranks every exact-match entry of the log, resubmissions included, and
	// gives each player the position of their earliest entry. The player's answer
	// itself is their first response.
	Legacy ResubmitPolicy = iota
	// KeepFirst scores a player's earliest response and ignores resubmissions.
	KeepFirst
	// KeepLatest lets a resubmission replace the earlier response.
	KeepLatest
)

// ParseResubmitPolicy accepts "legacy" (or empty), "first" and "latest".
func ParseResubmitPolicy(raw string) (ResubmitPolicy, error) {
	switch raw {
	case "", "legacy":
		return Legacy, nil
	case "first":
		return KeepFirst, nil
	case "latest":
		return KeepLatest, nil
	}
	return 0, fmt.Errorf("unknown resubmit policy %q", raw)
}

// Engine computes scores. It holds no session state.
type Engine struct {
	policy ResubmitPolicy
}

func New(policy ResubmitPolicy) *Engine {
	return &Engine{policy: policy}
}

// effective reduces the append-only log to one response per player, keeping log order
// of each player's first appearance.
func (e *Engine) effective(responses []domain.PlayerResponse) []domain.PlayerResponse {
	index := make(map[string]int, len(responses))
	out := make([]domain.PlayerResponse, 0, len(responses))
	for _, r := range responses {
		i, seen := index[r.PlayerID]
		switch {
		case !seen:
			index[r.PlayerID] = len(out)
			out = append(out, r)
		case e.policy == KeepLatest:
			out[i] = r
		}
	}
	return out
}

// ranked returns the responses that compete for positions, earliest submission first.
// Under Legacy a player may hold several slots.
func (e *Engine) ranked(q domain.Question, responses []domain.PlayerResponse) []domain.PlayerResponse {
	if e.policy == Legacy {
		return exactMatches(q, responses)
	}
	return exactMatches(q, e.effective(responses))
}

func exactMatches(q domain.Question, responses []domain.PlayerResponse) []domain.PlayerResponse {
	valid := q.CorrectAnswerIDs()
	var matches []domain.PlayerResponse
	for _, r := range responses {
		if exactMatch(r.AnswerIDs, valid) {
			matches = append(matches, r)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SubmittedAt.Before(matches[j].SubmittedAt)
	})
	return matches
}

// Position is the 1-based rank of the player's earliest ranked response, or 0.
func (e *Engine) Position(q domain.Question, responses []domain.PlayerResponse, playerID string) int {
	for i, r := range e.ranked(q, responses) {
		if r.PlayerID == playerID {
			return i + 1
		}
	}
	return 0
}

// QuestionScore is points/position rounded to one decimal place.
//
// Two checks are applied on purpose: the response must first pass the subset gate
// (every chosen id is correct) and is then ranked only if it is an exact match, so a
// correct-subset answer passes the gate and still scores zero.
func (e *Engine) QuestionScore(q domain.Question, responses []domain.PlayerResponse, playerID string) decimal.Decimal {
	r, ok := e.responseOf(responses, playerID)
	if !ok || !allCorrect(r.AnswerIDs, q.CorrectAnswerIDs()) {
		return decimal.Zero
	}
	pos := e.Position(q, responses, playerID)
	if pos < 1 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(q.Points)).Div(decimal.NewFromInt(int64(pos))).Round(1)
}

func (e *Engine) responseOf(responses []domain.PlayerResponse, playerID string) (domain.PlayerResponse, bool) {
	for _, r := range e.effective(responses) {
		if r.PlayerID == playerID {
			return r, true
		}
	}
	return domain.PlayerResponse{}, false
}

// QuestionResult builds the breakdown for one question of a session.
func (e *Engine) QuestionResult(s *domain.Session, q domain.Question) domain.QuestionResult {
	// One entry per player: the breakdown counts respondents, not submissions.
	matches := exactMatches(q, e.effective(s.Responses[q.ID]))

	names := make(map[string]string, len(s.Players))
	for _, p := range s.Players {
		names[p.ID] = p.Name
	}

	result := domain.QuestionResult{
		QuestionID:     q.ID,
		PlayersCorrect: make([]domain.AnswerPlayers, 0),
	}
	for _, answerID := range q.CorrectAnswerIDs() {
		entry := domain.AnswerPlayers{AnswerID: answerID, PlayerNames: make([]string, 0)}
		for _, m := range matches {
			if contains(m.AnswerIDs, answerID) {
				entry.PlayerNames = append(entry.PlayerNames, names[m.PlayerID])
			}
		}
		sort.Strings(entry.PlayerNames)
		result.PlayersCorrect = append(result.PlayersCorrect, entry)
	}

	if len(matches) > 0 {
		start := s.RoundStarts[q.ID]
		var total float64
		for _, m := range matches {
			total += m.SubmittedAt.Sub(start).Seconds()
		}
		result.AverageAnswerTime = int(math.Ceil(total / float64(len(matches))))
	}

	result.PercentCorrect = percentCorrect(len(matches), len(s.Players))
	return result
}

// percentCorrect keeps the legacy arithmetic: the percentage is divided again by the
// number of correct respondents when more than one player answered correctly.
func percentCorrect(correct, players int) int {
	if players == 0 {
		return 0
	}
	pct := float64(correct) / float64(players) * 100
	if correct > 1 {
		pct /= float64(correct)
	}
	return int(math.Round(pct))
}

// FinalResults aggregates the leaderboard over visited questions.
// A visited question with no responses at all stops the aggregation early.
func (e *Engine) FinalResults(s *domain.Session) domain.FinalResults {
	totals := make([]decimal.Decimal, len(s.Players))
	results := domain.FinalResults{QuestionResults: make([]domain.QuestionResult, 0, len(s.QuestionsVisited))}

	for _, qid := range s.QuestionsVisited {
		responses := s.Responses[qid]
		if len(responses) == 0 {
			break
		}
		q, ok := questionByID(s.Quiz, qid)
		if !ok {
			continue
		}
		for i, p := range s.Players {
			totals[i] = totals[i].Add(e.QuestionScore(q, responses, p.ID))
		}
		results.QuestionResults = append(results.QuestionResults, e.QuestionResult(s, q))
	}

	results.UsersRankedByScore = make([]domain.PlayerScore, len(s.Players))
	for i, p := range s.Players {
		results.UsersRankedByScore[i] = domain.PlayerScore{Name: p.Name, Score: totals[i]}
	}
	sort.SliceStable(results.UsersRankedByScore, func(i, j int) bool {
		return results.UsersRankedByScore[i].Score.GreaterThan(results.UsersRankedByScore[j].Score)
	})
	return results
}

// Cell is one player's outcome on one question.
type Cell struct {
	Score decimal.Decimal
	Rank  int
}

// Row is one player's outcomes across the quiz, in quiz order.
type Row struct {
	PlayerName string
	Cells      []Cell
}

// RankTable scores every player on every question of the quiz. Rows are sorted by
// player name; rank 1 is best and equal scores share a rank.
func (e *Engine) RankTable(s *domain.Session) []Row {
	rows := make([]Row, len(s.Players))
	for i, p := range s.Players {
		rows[i] = Row{PlayerName: p.Name, Cells: make([]Cell, len(s.Quiz.Questions))}
	}

	for qi, q := range s.Quiz.Questions {
		responses := s.Responses[q.ID]
		for i, p := range s.Players {
			rows[i].Cells[qi].Score = e.QuestionScore(q, responses, p.ID)
		}
		for i := range rows {
			rank := 1
			for j := range rows {
				if rows[j].Cells[qi].Score.GreaterThan(rows[i].Cells[qi].Score) {
					rank++
				}
			}
			rows[i].Cells[qi].Rank = rank
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].PlayerName < rows[j].PlayerName })
	return rows
}

func questionByID(quiz domain.Quiz, id string) (domain.Question, bool) {
	for _, q := range quiz.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func exactMatch(chosen, valid []string) bool {
	if len(chosen) != len(valid) {
		return false
	}
	set := make(map[string]struct{}, len(valid))
	for _, id := range valid {
		set[id] = struct{}{}
	}
	for _, id := range chosen {
		if _, ok := set[id]; !ok {
			return false
		}
		delete(set, id)
	}
	return len(set) == 0
}

func allCorrect(chosen, valid []string) bool {
	for _, id := range chosen {
		if !contains(valid, id) {
			return false
		}
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
