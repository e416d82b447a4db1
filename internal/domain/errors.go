package domain

import "errors"

var (
	// ErrInvalidState is returned when an operation is not valid in the
	// session's current status (e.g. advancing an ended session).
	ErrInvalidState = errors.New("operation not valid in current session state")
	// ErrSessionClosed is returned on join or submit after the session ended.
	ErrSessionClosed = errors.New("session has ended")
	// ErrDuplicateNickname is returned when a nickname is already taken in the session.
	ErrDuplicateNickname = errors.New("nickname already taken in this session")
	// ErrAlreadyAnswered is returned on a second answer to the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrStaleQuestion is returned when the submitted question is not the current one.
	ErrStaleQuestion = errors.New("question is not the current question")
	// ErrDeadlineExceeded is returned when the question's time limit has passed.
	ErrDeadlineExceeded = errors.New("question deadline exceeded")
	// ErrSessionNotFound is returned for an unknown session code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a participant id is unknown to the session.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuestionNotFound indicates a question id absent from the definition.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates an option id absent from the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrQuizNotFound indicates the quiz definition could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
)
