package app

import (
	"sort"
	"sync"
	"time"

	"quizroom/internal/domain"

	"github.com/google/uuid"
)

const defaultTimeLimitSec = 30

// Session is the authoritative in-memory state of one live quiz run. All
// mutating operations hold the session lock for their full critical section;
// operations on different sessions never contend. Mutations return the events
// to publish instead of pushing them out themselves, so fan-out happens
// outside the lock.
type Session struct {
	code      string
	def       domain.QuizDefinition
	createdAt time.Time
	now       func() time.Time
	newID     func() string
	expire    func(questionIndex int)

	mu            sync.RWMutex
	status        domain.SessionStatus
	currentIndex  int // -1 before the first advance
	deadline      time.Time
	endedAt       time.Time
	timer         *time.Timer
	participants  map[string]*domain.Participant
	nicknames     map[string]string // nickname -> participant id
	answers       map[string]map[string]domain.AnswerRecord
	answeredCount map[string]int // question id -> submissions
}

// NewSession builds a session in Open status. Questions are ordered once here
// by (order, id) so advancing is deterministic even with duplicate order values.
func NewSession(code string, def domain.QuizDefinition) *Session {
	return NewSessionWithClock(code, def, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(code string, def domain.QuizDefinition, now func() time.Time) *Session {
	questions := make([]domain.QuestionDef, len(def.Questions))
	copy(questions, def.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].Order != questions[j].Order {
			return questions[i].Order < questions[j].Order
		}
		return questions[i].ID < questions[j].ID
	})
	def.Questions = questions

	return &Session{
		code:          code,
		def:           def,
		createdAt:     now(),
		now:           now,
		newID:         uuid.NewString,
		status:        domain.StatusOpen,
		currentIndex:  -1,
		participants:  make(map[string]*domain.Participant),
		nicknames:     make(map[string]string),
		answers:       make(map[string]map[string]domain.AnswerRecord),
		answeredCount: make(map[string]int),
	}
}

// SetExpiryFunc installs the callback invoked when a question timer fires.
// When unset (unit tests), no timers are scheduled and TimerExpire is driven
// manually.
func (s *Session) SetExpiryFunc(fn func(questionIndex int)) {
	s.mu.Lock()
	s.expire = fn
	s.mu.Unlock()
}

// Code returns the session's share code.
func (s *Session) Code() string {
	return s.code
}

// Status returns the current lifecycle status.
func (s *Session) Status() domain.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Join registers a new participant. Nicknames are unique per session,
// case-sensitive. Late joins during InProgress are allowed.
func (s *Session) Join(nickname string) (domain.ParticipantView, []domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusEnded {
		return domain.ParticipantView{}, nil, domain.ErrSessionClosed
	}
	if _, taken := s.nicknames[nickname]; taken {
		return domain.ParticipantView{}, nil, domain.ErrDuplicateNickname
	}

	p := &domain.Participant{
		ID:       s.newID(),
		Nickname: nickname,
		Score:    0,
		JoinedAt: s.now(),
	}
	s.participants[p.ID] = p
	s.nicknames[nickname] = p.ID

	view := domain.ParticipantView{ID: p.ID, Nickname: p.Nickname, Score: p.Score}
	events := []domain.Event{{
		Type:    domain.EventParticipantsUpdate,
		Payload: domain.ParticipantsUpdate{Participants: s.participantsLocked()},
	}}
	return view, events, nil
}

// Advance moves to the next question, or ends the session when none remain.
// The returned leaderboard is non-nil exactly when this call ended the session.
func (s *Session) Advance() ([]domain.Event, *domain.Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusEnded {
		return nil, nil, domain.ErrInvalidState
	}
	events, final := s.advanceLocked()
	return events, final, nil
}

// TimerExpire auto-advances when the timer for questionIndex fires. It is
// idempotent: a stale fire (state already moved past questionIndex) is a no-op,
// which makes the manual-advance/timer race harmless.
func (s *Session) TimerExpire(questionIndex int) ([]domain.Event, *domain.Leaderboard) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusInProgress || s.currentIndex != questionIndex {
		return nil, nil
	}
	return s.advanceLocked()
}

// End forces the session to Ended. Idempotent: ending an ended session returns
// no events and no error.
func (s *Session) End() ([]domain.Event, *domain.Leaderboard) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusEnded {
		return nil, nil
	}
	return s.endLocked()
}

// Submit records a participant's first-and-only answer to the current
// question. Duplicate detection and the score update happen in one critical
// section, so concurrent duplicates yield exactly one record.
func (s *Session) Submit(participantID, questionID, optionID string) (domain.AnswerResult, []domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusEnded {
		return domain.AnswerResult{}, nil, domain.ErrSessionClosed
	}
	if s.status != domain.StatusInProgress || s.currentIndex < 0 {
		return domain.AnswerResult{}, nil, domain.ErrInvalidState
	}
	p, ok := s.participants[participantID]
	if !ok {
		return domain.AnswerResult{}, nil, domain.ErrParticipantNotFound
	}

	current := s.def.Questions[s.currentIndex]
	if current.ID != questionID {
		if !s.hasQuestion(questionID) {
			return domain.AnswerResult{}, nil, domain.ErrQuestionNotFound
		}
		return domain.AnswerResult{}, nil, domain.ErrStaleQuestion
	}
	if s.now().After(s.deadline) {
		return domain.AnswerResult{}, nil, domain.ErrDeadlineExceeded
	}
	if _, dup := s.answers[participantID][questionID]; dup {
		return domain.AnswerResult{}, nil, domain.ErrAlreadyAnswered
	}

	valid := false
	for _, opt := range current.Options {
		if opt.ID == optionID {
			valid = true
			break
		}
	}
	if !valid {
		return domain.AnswerResult{}, nil, domain.ErrOptionNotFound
	}

	correct := optionID == current.CorrectOptionID
	record := domain.AnswerRecord{
		ParticipantID:    participantID,
		QuestionID:       questionID,
		SelectedOptionID: optionID,
		IsCorrect:        correct,
		AnsweredAt:       s.now(),
	}
	if s.answers[participantID] == nil {
		s.answers[participantID] = make(map[string]domain.AnswerRecord)
	}
	s.answers[participantID][questionID] = record
	s.answeredCount[questionID]++
	if correct {
		p.Score++
	}

	result := domain.AnswerResult{
		ParticipantID: participantID,
		QuestionID:    questionID,
		IsCorrect:     correct,
		Score:         p.Score,
	}
	events := []domain.Event{
		{Type: domain.EventAnswerResult, Payload: result, ParticipantID: participantID},
		{Type: domain.EventAnswerProgress, Payload: domain.AnswerProgress{
			QuestionID: questionID,
			Answered:   s.answeredCount[questionID],
			Total:      len(s.participants),
		}},
	}
	return result, events, nil
}

// Snapshot synthesizes the full current state for a newly attached connection.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.Snapshot{
		SessionCode:  s.code,
		QuizTitle:    s.def.Title,
		Status:       s.status,
		Participants: s.participantsLocked(),
	}
	if s.status == domain.StatusInProgress && s.currentIndex >= 0 {
		view := s.questionViewLocked()
		snap.Question = &view
	}
	return snap
}

// Participants returns the participant list ordered by join time.
func (s *Session) Participants() []domain.ParticipantView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participantsLocked()
}

// Leaderboard returns participants ordered by score descending, tie-broken by
// earliest join, then nickname for stable output.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaderboardLocked()
}

// Record returns the stored answer for a (participant, question) pair.
func (s *Session) Record(participantID, questionID string) (domain.AnswerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.answers[participantID][questionID]
	return record, ok
}

func (s *Session) advanceLocked() ([]domain.Event, *domain.Leaderboard) {
	s.stopTimerLocked()

	next := s.currentIndex + 1
	if next >= len(s.def.Questions) {
		return s.endLocked()
	}

	s.status = domain.StatusInProgress
	s.currentIndex = next
	q := s.def.Questions[next]
	limit := q.TimeLimitSec
	if limit <= 0 {
		limit = defaultTimeLimitSec
	}
	s.deadline = s.now().Add(time.Duration(limit) * time.Second)

	if s.expire != nil {
		idx := next
		s.timer = time.AfterFunc(time.Duration(limit)*time.Second, func() {
			s.expire(idx)
		})
	}

	return []domain.Event{{
		Type:    domain.EventQuestionChanged,
		Payload: s.questionViewLocked(),
	}}, nil
}

func (s *Session) endLocked() ([]domain.Event, *domain.Leaderboard) {
	s.stopTimerLocked()
	s.status = domain.StatusEnded
	s.endedAt = s.now()
	s.deadline = time.Time{}

	final := s.leaderboardLocked()
	events := []domain.Event{{
		Type:    domain.EventSessionEnded,
		Payload: domain.SessionEnded{Leaderboard: final},
	}}
	return events, &final
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) hasQuestion(questionID string) bool {
	for i := range s.def.Questions {
		if s.def.Questions[i].ID == questionID {
			return true
		}
	}
	return false
}

func (s *Session) participantsLocked() []domain.ParticipantView {
	list := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].Nickname < list[j].Nickname
	})

	views := make([]domain.ParticipantView, 0, len(list))
	for _, p := range list {
		views = append(views, domain.ParticipantView{ID: p.ID, Nickname: p.Nickname, Score: p.Score})
	}
	return views
}

func (s *Session) leaderboardLocked() domain.Leaderboard {
	list := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].Nickname < list[j].Nickname
	})

	entries := make([]domain.ParticipantView, 0, len(list))
	for _, p := range list {
		entries = append(entries, domain.ParticipantView{ID: p.ID, Nickname: p.Nickname, Score: p.Score})
	}
	return domain.Leaderboard{
		SessionCode: s.code,
		Entries:     entries,
		UpdatedAt:   s.now(),
	}
}

func (s *Session) questionViewLocked() domain.QuestionView {
	q := s.def.Questions[s.currentIndex]
	options := make([]domain.Option, len(q.Options))
	copy(options, q.Options)

	limit := q.TimeLimitSec
	if limit <= 0 {
		limit = defaultTimeLimitSec
	}
	remaining := 0
	if !s.deadline.IsZero() {
		if d := s.deadline.Sub(s.now()); d > 0 {
			remaining = int((d + time.Second - 1) / time.Second)
		}
	}

	return domain.QuestionView{
		ID:           q.ID,
		Text:         q.Text,
		Kind:         q.Kind,
		ImageURL:     q.ImageURL,
		VideoURL:     q.VideoURL,
		Options:      options,
		Index:        s.currentIndex,
		TimeLimitSec: limit,
		RemainingSec: remaining,
	}
}
