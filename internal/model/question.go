// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

// Question is a yes/no question in the shared pool.
//
// The text is the natural key: two questions are the same question only when
// their texts are byte-for-byte equal (case and punctuation included).
// ID is the 1-based position in the pool, so sorting by ID gives insertion order.
//
// The `json:"..."` tags tell encoding/json how to name each field on the wire:
//
//	Question{ID: 3, Text: "Do you like pets?"} → {"id":3,"text":"Do you like pets?"}
type Question struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// AnswerState is the per-(user, question) state of the answer state machine.
//
//	Unset    --answer--> Answered
//	Answered --answer--> Answered  (overwrite)
//	Answered --skip----> Skipped   (answer discarded)
//	Skipped  --answer--> Answered
//	Skipped  --skip----> Skipped
//
// "Answered" is split into AnswerYes and AnswerNo so that "no answer" and
// "answered false" can never be confused.
type AnswerState int

const (
	AnswerUnset AnswerState = iota
	AnswerYes
	AnswerNo
	AnswerSkipped
)

// Answered reports whether the state carries a boolean answer.
func (s AnswerState) Answered() bool {
	return s == AnswerYes || s == AnswerNo
}

// Value returns the boolean answer and true, or false/false when unanswered.
func (s AnswerState) Value() (bool, bool) {
	switch s {
	case AnswerYes:
		return true, true
	case AnswerNo:
		return false, true
	default:
		return false, false
	}
}

func (s AnswerState) String() string {
	switch s {
	case AnswerYes:
		return "yes"
	case AnswerNo:
		return "no"
	case AnswerSkipped:
		return "skipped"
	default:
		return "unset"
	}
}

// MarshalText lets AnswerState appear as "yes"/"no"/"skipped"/"unset" in JSON.
func (s AnswerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// answerStateOf converts a boolean answer to its state.
func answerStateOf(answer bool) AnswerState {
	if answer {
		return AnswerYes
	}
	return AnswerNo
}

// QuestionStatus pairs a pool question with one user's state for it.
type QuestionStatus struct {
	Question
	State    AnswerState `json:"state"`
	Answered bool        `json:"answered"`
}

// Match is the result of a best-match query.
type Match struct {
	Name  string  `json:"match"`
	Score float64 `json:"score"`
}
