package domain

import "time"

// SessionStatus tracks the linear lifecycle of a live session.
type SessionStatus string

const (
	StatusOpen       SessionStatus = "open"
	StatusInProgress SessionStatus = "in_progress"
	StatusEnded      SessionStatus = "ended"
)

// QuestionKind distinguishes plain text questions from media-backed ones.
type QuestionKind string

const (
	KindText  QuestionKind = "text"
	KindImage QuestionKind = "image"
	KindVideo QuestionKind = "video"
)

// Option is one selectable answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionDef is a single question within a quiz definition. Media fields are
// only set for image/video kinds; scoring depends solely on ID, Options and
// CorrectOptionID.
type QuestionDef struct {
	ID              string       `json:"id"`
	Text            string       `json:"text"`
	Kind            QuestionKind `json:"kind"`
	Options         []Option     `json:"options"`
	CorrectOptionID string       `json:"correctOptionId"`
	ImageURL        string       `json:"imageUrl,omitempty"`
	VideoURL        string       `json:"videoUrl,omitempty"`
	Order           int          `json:"order"`
	TimeLimitSec    int          `json:"timeLimitSec"` // defaults to 30 if zero
}

// QuizDefinition is the read-only quiz content a session runs against.
// It must not be mutated once a session has started.
type QuizDefinition struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Questions []QuestionDef `json:"questions"`
}

// Participant is one player inside a session.
type Participant struct {
	ID       string
	Nickname string
	Score    int
	JoinedAt time.Time
}

// AnswerRecord is the permanent record of one participant's single answer to
// one question. At most one record exists per (participant, question) pair.
type AnswerRecord struct {
	ParticipantID    string
	QuestionID       string
	SelectedOptionID string
	IsCorrect        bool
	AnsweredAt       time.Time
}

// AnswerResult is what the submitting participant gets back.
type AnswerResult struct {
	ParticipantID string `json:"participantId"`
	QuestionID    string `json:"questionId"`
	IsCorrect     bool   `json:"isCorrect"`
	Score         int    `json:"score"`
}

// ParticipantView is a snapshot-friendly view of a participant.
type ParticipantView struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

// Leaderboard is the ordered scoreboard for a session: score descending,
// ties broken by earliest join.
type Leaderboard struct {
	SessionCode string            `json:"sessionCode"`
	Entries     []ParticipantView `json:"entries"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// QuestionView is the participant-facing shape of the current question.
// Correctness markers are stripped before it leaves the engine.
type QuestionView struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Kind         QuestionKind `json:"kind"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	VideoURL     string       `json:"videoUrl,omitempty"`
	Options      []Option     `json:"options"`
	Index        int          `json:"index"`
	TimeLimitSec int          `json:"timeLimitSec"`
	RemainingSec int          `json:"remainingSec"`
}

// Snapshot is the full current state handed to a connection when it joins.
// It is synthesized on demand, never replayed from history.
type Snapshot struct {
	SessionCode  string            `json:"sessionCode"`
	QuizTitle    string            `json:"quizTitle"`
	Status       SessionStatus     `json:"status"`
	Question     *QuestionView     `json:"question,omitempty"`
	Participants []ParticipantView `json:"participants"`
}
