package domain

// EventType discriminates events on the wire.
type EventType string

const (
	// EventSessionInfo carries the full snapshot sent to a newly joined connection.
	EventSessionInfo EventType = "session_info"
	// EventParticipantsUpdate carries the refreshed participant list after a join.
	EventParticipantsUpdate EventType = "participants_update"
	// EventQuestionChanged announces the new current question.
	EventQuestionChanged EventType = "question_changed"
	// EventAnswerResult reports correctness and score to the submitting
	// participant only. Never broadcast to the room.
	EventAnswerResult EventType = "answer_result"
	// EventAnswerProgress is the non-identifying "N of M answered" counter.
	EventAnswerProgress EventType = "answer_progress"
	// EventSessionEnded carries the final leaderboard.
	EventSessionEnded EventType = "quiz_ended"
)

// Event is the envelope published to the broadcast hub. ParticipantID, when
// set, restricts delivery to that participant's connections (unicast).
type Event struct {
	Type          EventType `json:"type"`
	Payload       any       `json:"payload"`
	ParticipantID string    `json:"-"`
}

// ParticipantsUpdate is the payload for EventParticipantsUpdate,
// ordered by join time.
type ParticipantsUpdate struct {
	Participants []ParticipantView `json:"participants"`
}

// AnswerProgress is the payload for EventAnswerProgress.
type AnswerProgress struct {
	QuestionID string `json:"questionId"`
	Answered   int    `json:"answered"`
	Total      int    `json:"total"`
}

// SessionEnded is the payload for EventSessionEnded.
type SessionEnded struct {
	Leaderboard Leaderboard `json:"leaderboard"`
}
