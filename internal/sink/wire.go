package sink

import (
	"encoding/json"
	"fmt"
)

// WireFormat selects the field mapping used on the wire. The payload shape
// is an external contract owned by the quiz server, and two incompatible
// shapes exist in the wild, so the mapping is pluggable rather than baked
// into the client.
type WireFormat string

const (
	// WireQuiz is the shape the current quiz server validates:
	// {secret, code, quizData: {question, answers, correctAnswerIdx}}.
	// This is the default.
	WireQuiz WireFormat = "quiz"

	// WireLegacy is the shape older deployments accept:
	// {secret, code, questionData: {question, options, correctAnswerIdx}}.
	WireLegacy WireFormat = "legacy"
)

// Valid reports whether f names a known wire format. The empty string is
// valid and means [WireQuiz].
func (f WireFormat) Valid() bool {
	switch f {
	case "", WireQuiz, WireLegacy:
		return true
	}
	return false
}

// quizPayload is the WireQuiz request body.
type quizPayload struct {
	Secret   string   `json:"secret"`
	Code     string   `json:"code"`
	QuizData quizData `json:"quizData"`
}

type quizData struct {
	Question         string   `json:"question"`
	Answers          []string `json:"answers"`
	CorrectAnswerIdx int      `json:"correctAnswerIdx"`
}

// legacyPayload is the WireLegacy request body.
type legacyPayload struct {
	Secret       string     `json:"secret"`
	Code         string     `json:"code"`
	QuestionData legacyData `json:"questionData"`
}

type legacyData struct {
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	CorrectAnswerIdx int      `json:"correctAnswerIdx"`
}

// encodePayload maps q onto the requested wire shape and marshals it.
func encodePayload(format WireFormat, secret, code string, q Question) ([]byte, error) {
	switch format {
	case "", WireQuiz:
		return json.Marshal(quizPayload{
			Secret: secret,
			Code:   code,
			QuizData: quizData{
				Question:         q.Text,
				Answers:          q.Options,
				CorrectAnswerIdx: q.CorrectIndex,
			},
		})
	case WireLegacy:
		return json.Marshal(legacyPayload{
			Secret: secret,
			Code:   code,
			QuestionData: legacyData{
				Question:         q.Text,
				Options:          q.Options,
				CorrectAnswerIdx: q.CorrectIndex,
			},
		})
	default:
		return nil, fmt.Errorf("sink: unknown wire format %q", format)
	}
}
