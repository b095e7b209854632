package domain

import "fmt"

// State is a session lifecycle state.
type State int

const (
	StateLobby State = iota + 1
	StateQuestionCountdown
	StateQuestionOpen
	StateQuestionClose
	StateAnswerShow
	StateFinalResults
	StateEnd
)

var stateNames = map[State]string{
	StateLobby:             "LOBBY",
	StateQuestionCountdown: "QUESTION_COUNTDOWN",
	StateQuestionOpen:      "QUESTION_OPEN",
	StateQuestionClose:     "QUESTION_CLOSE",
	StateAnswerShow:        "ANSWER_SHOW",
	StateFinalResults:      "FINAL_RESULTS",
	StateEnd:               "END",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateEnd
}

// MarshalText encodes the state by name so stored and transmitted sessions stay readable.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("unknown state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState resolves a state name.
func ParseState(raw string) (State, error) {
	for state, name := range stateNames {
		if name == raw {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", raw)
}

// Action is an administrator command applied to a session.
type Action int

const (
	ActionNextQuestion Action = iota + 1
	ActionGoToAnswer
	ActionGoToFinalResults
	ActionEnd
)

var actionNames = map[Action]string{
	ActionNextQuestion:     "NEXT_QUESTION",
	ActionGoToAnswer:       "GO_TO_ANSWER",
	ActionGoToFinalResults: "GO_TO_FINAL_RESULTS",
	ActionEnd:              "END",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction resolves an action name; unknown names are a validation error.
func ParseAction(raw string) (Action, error) {
	for action, name := range actionNames {
		if name == raw {
			return action, nil
		}
	}
	return 0, Invalidf("unknown action %q", raw)
}

// AllStates lists every state in lifecycle order.
func AllStates() []State {
	return []State{
		StateLobby,
		StateQuestionCountdown,
		StateQuestionOpen,
		StateQuestionClose,
		StateAnswerShow,
		StateFinalResults,
		StateEnd,
	}
}

// AllActions lists every action.
func AllActions() []Action {
	return []Action{ActionNextQuestion, ActionGoToAnswer, ActionGoToFinalResults, ActionEnd}
}
