package app

import (
	"context"
	"fmt"

	"quizroom/internal/domain"

	"github.com/sirupsen/logrus"
)

// maxCodeAttempts bounds the retry-on-collision loop for session codes.
const maxCodeAttempts = 10

// SessionRegistry is the process-wide mapping from session code to live
// session. Implementations guard it with their own lock, distinct from the
// per-session locks.
type SessionRegistry interface {
	Insert(code string, session *Session) bool
	Get(code string) (*Session, bool)
	Remove(code string)
}

// DefinitionRepository loads quiz definitions (from cache/backing store).
type DefinitionRepository interface {
	GetDefinition(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// ResultsStore persists final leaderboards when a session ends.
type ResultsStore interface {
	PersistFinalResults(ctx context.Context, sessionCode string, leaderboard domain.Leaderboard) error
}

// Broadcaster is the slice of the hub the service needs to publish events.
type Broadcaster interface {
	Broadcast(sessionCode string, events ...domain.Event)
	GroupSize(sessionCode string) int
}

// SessionService wires the session engine to the definition store, the
// broadcast hub and the results sink. Events produced inside a session's
// critical section are published here, after the lock is released.
type SessionService struct {
	registry SessionRegistry
	defs     DefinitionRepository
	results  ResultsStore
	hub      Broadcaster
	log      *logrus.Logger
}

func NewSessionService(registry SessionRegistry, defs DefinitionRepository, results ResultsStore, hub Broadcaster, log *logrus.Logger) *SessionService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SessionService{
		registry: registry,
		defs:     defs,
		results:  results,
		hub:      hub,
		log:      log,
	}
}

// CreateSession loads the quiz definition and registers a new Open session
// under a freshly generated code, retrying on the rare collision.
func (s *SessionService) CreateSession(ctx context.Context, quizID string) (string, error) {
	def, err := s.defs.GetDefinition(ctx, quizID)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := newSessionCode(SessionCodeLength)
		session := NewSession(code, def)
		if !s.registry.Insert(code, session) {
			continue
		}
		session.SetExpiryFunc(func(questionIndex int) {
			s.timerExpired(code, questionIndex)
		})
		s.log.WithFields(logrus.Fields{"session": code, "quiz": quizID}).Info("session created")
		return code, nil
	}
	return "", fmt.Errorf("allocate session code for quiz %s: exhausted %d attempts", quizID, maxCodeAttempts)
}

// Join adds a participant to the session and broadcasts the updated list.
func (s *SessionService) Join(_ context.Context, code, nickname string) (domain.ParticipantView, error) {
	session, ok := s.registry.Get(code)
	if !ok {
		return domain.ParticipantView{}, domain.ErrSessionNotFound
	}

	view, events, err := session.Join(nickname)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	s.hub.Broadcast(code, events...)
	s.log.WithFields(logrus.Fields{"session": code, "participant": view.ID}).Info("participant joined")
	return view, nil
}

// SubmitAnswer scores a participant's answer. The answer_result event goes
// only to the submitting participant; the room sees an anonymous progress
// counter.
func (s *SessionService) SubmitAnswer(_ context.Context, code, participantID, questionID, optionID string) (domain.AnswerResult, error) {
	session, ok := s.registry.Get(code)
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}

	result, events, err := session.Submit(participantID, questionID, optionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	s.hub.Broadcast(code, events...)
	return result, nil
}

// Advance moves the session to its next question, ending it when no question
// remains.
func (s *SessionService) Advance(ctx context.Context, code string) error {
	session, ok := s.registry.Get(code)
	if !ok {
		return domain.ErrSessionNotFound
	}

	events, final, err := session.Advance()
	if err != nil {
		return err
	}
	s.hub.Broadcast(code, events...)
	if final != nil {
		s.finalize(ctx, code, *final)
	}
	return nil
}

// End force-ends the session. Calling it twice is a no-op.
func (s *SessionService) End(ctx context.Context, code string) error {
	session, ok := s.registry.Get(code)
	if !ok {
		return domain.ErrSessionNotFound
	}

	events, final := session.End()
	if final == nil {
		return nil
	}
	s.hub.Broadcast(code, events...)
	s.finalize(ctx, code, *final)
	return nil
}

// Snapshot builds the on-connect state for a session code.
func (s *SessionService) Snapshot(_ context.Context, code string) (domain.Snapshot, error) {
	session, ok := s.registry.Get(code)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// ReleaseConnection reaps an ended session once its last watcher is gone.
// Sessions with live connections stay addressable so reconnecting clients can
// still fetch the final state.
func (s *SessionService) ReleaseConnection(code string) {
	session, ok := s.registry.Get(code)
	if !ok {
		return
	}
	if session.Status() == domain.StatusEnded && s.hub.GroupSize(code) == 0 {
		s.registry.Remove(code)
		s.log.WithField("session", code).Info("session reaped")
	}
}

// timerExpired runs on the question timer goroutine. The session's index guard
// makes a stale fire a no-op.
func (s *SessionService) timerExpired(code string, questionIndex int) {
	session, ok := s.registry.Get(code)
	if !ok {
		return
	}

	events, final := session.TimerExpire(questionIndex)
	if len(events) == 0 {
		return
	}
	s.hub.Broadcast(code, events...)
	s.log.WithFields(logrus.Fields{"session": code, "question": questionIndex}).Info("question timer expired")
	if final != nil {
		s.finalize(context.Background(), code, *final)
	}
}

// finalize persists the final leaderboard and reaps the session if nobody is
// watching. Persistence is best-effort: the in-memory teardown proceeds even
// when the sink is down.
func (s *SessionService) finalize(ctx context.Context, code string, final domain.Leaderboard) {
	if err := s.results.PersistFinalResults(ctx, code, final); err != nil {
		s.log.WithError(err).WithField("session", code).Warn("persist final results failed")
	}
	s.log.WithFields(logrus.Fields{"session": code, "participants": len(final.Entries)}).Info("session ended")
	if s.hub.GroupSize(code) == 0 {
		s.registry.Remove(code)
	}
}
