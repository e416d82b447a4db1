package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"quizroom/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func twoQuestionDef() domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:    "quiz-1",
		Title: "Capitals",
		Questions: []domain.QuestionDef{
			{
				ID:   "q1",
				Text: "Capital of France?",
				Kind: domain.KindText,
				Options: []domain.Option{
					{ID: "o1", Text: "Paris"},
					{ID: "o2", Text: "Lyon"},
				},
				CorrectOptionID: "o1",
				Order:           1,
				TimeLimitSec:    30,
			},
			{
				ID:   "q2",
				Text: "Capital of Japan?",
				Kind: domain.KindText,
				Options: []domain.Option{
					{ID: "o1", Text: "Osaka"},
					{ID: "o2", Text: "Tokyo"},
				},
				CorrectOptionID: "o2",
				Order:           2,
				TimeLimitSec:    30,
			},
		},
	}
}

func TestSessionLifecycleAndScoring(t *testing.T) {
	clock := newFakeClock()
	session := NewSessionWithClock("CODE1234", twoQuestionDef(), clock.Now)

	if session.Status() != domain.StatusOpen {
		t.Fatalf("expected open, got %s", session.Status())
	}

	p, events, err := session.Join("Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.EventParticipantsUpdate {
		t.Fatalf("expected participants_update, got %+v", events)
	}

	events, final, err := session.Advance()
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if final != nil {
		t.Fatalf("unexpected final leaderboard on first advance")
	}
	if session.Status() != domain.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", session.Status())
	}
	if len(events) != 1 || events[0].Type != domain.EventQuestionChanged {
		t.Fatalf("expected question_changed, got %+v", events)
	}
	view := events[0].Payload.(domain.QuestionView)
	if view.ID != "q1" || view.Index != 0 || view.RemainingSec != 30 {
		t.Fatalf("unexpected question view %+v", view)
	}

	result, events, err := session.Submit(p.ID, "q1", "o1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.IsCorrect || result.Score != 1 {
		t.Fatalf("expected correct with score 1, got %+v", result)
	}
	if len(events) != 2 {
		t.Fatalf("expected answer_result and answer_progress, got %+v", events)
	}
	if events[0].Type != domain.EventAnswerResult || events[0].ParticipantID != p.ID {
		t.Fatalf("answer_result must be unicast to submitter, got %+v", events[0])
	}
	progress := events[1].Payload.(domain.AnswerProgress)
	if progress.Answered != 1 || progress.Total != 1 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	if _, _, err := session.Advance(); err != nil {
		t.Fatalf("advance to q2: %v", err)
	}

	result, _, err = session.Submit(p.ID, "q2", "o1") // wrong
	if err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	if result.IsCorrect || result.Score != 1 {
		t.Fatalf("wrong answer must not change score, got %+v", result)
	}
	record, ok := session.Record(p.ID, "q2")
	if !ok || record.IsCorrect || record.SelectedOptionID != "o1" {
		t.Fatalf("expected stored incorrect record, got %+v ok=%v", record, ok)
	}

	events, final, err = session.Advance()
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if final == nil {
		t.Fatalf("expected final leaderboard")
	}
	if session.Status() != domain.StatusEnded {
		t.Fatalf("expected ended, got %s", session.Status())
	}
	if len(events) != 1 || events[0].Type != domain.EventSessionEnded {
		t.Fatalf("expected quiz_ended, got %+v", events)
	}
	if len(final.Entries) != 1 || final.Entries[0].Nickname != "Alice" || final.Entries[0].Score != 1 {
		t.Fatalf("unexpected leaderboard %+v", final.Entries)
	}

	if _, _, err := session.Advance(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("advance after end: expected ErrInvalidState, got %v", err)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	session := NewSession("CODE1234", twoQuestionDef())
	if _, _, err := session.Join("Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	events, final := session.End()
	if final == nil || len(events) != 1 {
		t.Fatalf("expected teardown events on first end")
	}
	events, final = session.End()
	if final != nil || events != nil {
		t.Fatalf("second end must be a no-op, got events=%v final=%v", events, final)
	}
	if session.Status() != domain.StatusEnded {
		t.Fatalf("expected ended")
	}
}

func TestNicknameUniqueness(t *testing.T) {
	a := NewSession("CODEAAAA", twoQuestionDef())
	b := NewSession("CODEBBBB", twoQuestionDef())

	if _, _, err := a.Join("Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := a.Join("Alice"); !errors.Is(err, domain.ErrDuplicateNickname) {
		t.Fatalf("expected ErrDuplicateNickname, got %v", err)
	}
	// Case-sensitive exact match: different casing is a different nickname.
	if _, _, err := a.Join("alice"); err != nil {
		t.Fatalf("case-differing nickname should join: %v", err)
	}
	// Same nickname in another session is fine.
	if _, _, err := b.Join("Alice"); err != nil {
		t.Fatalf("same nickname in other session should join: %v", err)
	}
}

func TestJoinAfterEnded(t *testing.T) {
	session := NewSession("CODE1234", twoQuestionDef())
	session.End()
	if _, _, err := session.Join("Late"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestLateJoinDuringQuestion(t *testing.T) {
	session := NewSession("CODE1234", twoQuestionDef())
	if _, _, err := session.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	p, _, err := session.Join("Latecomer")
	if err != nil {
		t.Fatalf("late join: %v", err)
	}
	// Late joiners answer the current question only.
	if _, _, err := session.Submit(p.ID, "q1", "o1"); err != nil {
		t.Fatalf("submit current question: %v", err)
	}
}

func TestConcurrentDuplicateSubmissions(t *testing.T) {
	session := NewSession("CODE1234", twoQuestionDef())
	p, _, err := session.Join("Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := session.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, duplicates := 0, 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := session.Submit(p.ID, "q1", "o1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyAnswered):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || duplicates != n-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d/%d", n-1, successes, duplicates)
	}
	lb := session.Leaderboard()
	if lb.Entries[0].Score != 1 {
		t.Fatalf("score must be incremented exactly once, got %d", lb.Entries[0].Score)
	}
}

func TestConcurrentDistinctParticipants(t *testing.T) {
	session := NewSession("CODE1234", twoQuestionDef())
	alice, _, _ := session.Join("Alice")
	bob, _, _ := session.Join("Bob")
	if _, _, err := session.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, _, err := session.Submit(alice.ID, "q1", "o1"); err != nil {
			t.Errorf("alice submit: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, _, err := session.Submit(bob.ID, "q1", "o2"); err != nil {
			t.Errorf("bob submit: %v", err)
		}
	}()
	wg.Wait()

	aliceRecord, ok := session.Record(alice.ID, "q1")
	if !ok || !aliceRecord.IsCorrect {
		t.Fatalf("expected correct record for alice, got %+v ok=%v", aliceRecord, ok)
	}
	bobRecord, ok := session.Record(bob.ID, "q1")
	if !ok || bobRecord.IsCorrect {
		t.Fatalf("expected incorrect record for bob, got %+v ok=%v", bobRecord, ok)
	}
}

func TestTimerExpireIsIdempotent(t *testing.T) {
	session := NewSession("CODE1234", twoQuestionDef())
	if _, _, err := session.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	events, _ := session.TimerExpire(0)
	if len(events) != 1 || events[0].Type != domain.EventQuestionChanged {
		t.Fatalf("expected timer to advance to q2, got %+v", events)
	}
	if events[0].Payload.(domain.QuestionView).ID != "q2" {
		t.Fatalf("expected q2")
	}

	// Stale fire for the already-passed question: no-op.
	events, final := session.TimerExpire(0)
	if events != nil || final != nil {
		t.Fatalf("stale timer fire must be a no-op, got %+v", events)
	}
	if session.Status() != domain.StatusInProgress {
		t.Fatalf("stale fire must not end session")
	}
}

func TestManualAdvanceBeatsTimer(t *testing.T) {
	session := NewSession("CODE1234", twoQuestionDef())
	session.Advance() // q1
	session.Advance() // q2, manual advance past q1

	// The q1 timer fires late; the index guard swallows it.
	if events, _ := session.TimerExpire(0); events != nil {
		t.Fatalf("late fire after manual advance must be a no-op")
	}
	if got := session.Snapshot().Question.ID; got != "q2" {
		t.Fatalf("expected q2 current, got %s", got)
	}
}

func TestCurrentIndexMonotonic(t *testing.T) {
	session := NewSession("CODE1234", twoQuestionDef())

	last := -1
	step := func() {
		session.mu.RLock()
		idx := session.currentIndex
		session.mu.RUnlock()
		if idx < last {
			t.Fatalf("current index went backwards: %d -> %d", last, idx)
		}
		last = idx
	}

	step()
	session.Advance()
	step()
	session.TimerExpire(0)
	step()
	session.Advance()
	step()
	if session.Status() != domain.StatusEnded {
		t.Fatalf("expected ended after exhausting questions")
	}
}

func TestDeadlineEnforcement(t *testing.T) {
	clock := newFakeClock()
	session := NewSessionWithClock("CODE1234", twoQuestionDef(), clock.Now)
	p, _, _ := session.Join("Alice")
	session.Advance()

	// Exactly at the deadline is still accepted.
	clock.Advance(30 * time.Second)
	if _, _, err := session.Submit(p.ID, "q1", "o1"); err != nil {
		t.Fatalf("submit at deadline: %v", err)
	}

	session.Advance()
	clock.Advance(30*time.Second + time.Millisecond)
	if _, _, err := session.Submit(p.ID, "q2", "o2"); !errors.Is(err, domain.ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	session := NewSession("CODE1234", twoQuestionDef())
	p, _, _ := session.Join("Alice")

	// Not started yet.
	if _, _, err := session.Submit(p.ID, "q1", "o1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState before start, got %v", err)
	}

	session.Advance()

	if _, _, err := session.Submit("nobody", "q1", "o1"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if _, _, err := session.Submit(p.ID, "q2", "o2"); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected ErrStaleQuestion, got %v", err)
	}
	if _, _, err := session.Submit(p.ID, "q9", "o1"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	if _, _, err := session.Submit(p.ID, "q1", "o9"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}

	session.End()
	if _, _, err := session.Submit(p.ID, "q1", "o1"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after end, got %v", err)
	}
}

func TestLeaderboardTieBreaksByJoinTime(t *testing.T) {
	clock := newFakeClock()
	session := NewSessionWithClock("CODE1234", twoQuestionDef(), clock.Now)

	first, _, _ := session.Join("First")
	clock.Advance(time.Second)
	second, _, _ := session.Join("Second")

	session.Advance()
	session.Submit(second.ID, "q1", "o1")
	session.Submit(first.ID, "q1", "o1")

	lb := session.Leaderboard()
	if lb.Entries[0].ID != first.ID {
		t.Fatalf("tie must go to earliest join, got %+v", lb.Entries)
	}

	// The join view stays in join order regardless of score.
	list := session.Participants()
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("expected join order, got %+v", list)
	}
}

func TestQuestionOrderIsDeterministic(t *testing.T) {
	def := domain.QuizDefinition{
		ID: "quiz-dup",
		Questions: []domain.QuestionDef{
			{ID: "qb", Text: "B", Options: []domain.Option{{ID: "o1"}}, CorrectOptionID: "o1", Order: 1},
			{ID: "qa", Text: "A", Options: []domain.Option{{ID: "o1"}}, CorrectOptionID: "o1", Order: 1},
			{ID: "qc", Text: "C", Options: []domain.Option{{ID: "o1"}}, CorrectOptionID: "o1", Order: 0},
		},
	}

	session := NewSession("CODE1234", def)
	var seen []string
	for {
		events, final, err := session.Advance()
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if final != nil {
			break
		}
		seen = append(seen, events[0].Payload.(domain.QuestionView).ID)
	}

	want := []string{"qc", "qa", "qb"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, seen)
		}
	}
}

func TestSnapshotStripsCorrectness(t *testing.T) {
	clock := newFakeClock()
	session := NewSessionWithClock("CODE1234", twoQuestionDef(), clock.Now)
	session.Join("Alice")
	session.Advance()
	clock.Advance(10 * time.Second)

	snap := session.Snapshot()
	if snap.Status != domain.StatusInProgress || snap.Question == nil {
		t.Fatalf("expected in-progress snapshot with question, got %+v", snap)
	}
	if snap.Question.RemainingSec != 20 {
		t.Fatalf("expected 20s remaining, got %d", snap.Question.RemainingSec)
	}
	if len(snap.Participants) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(snap.Participants))
	}
	// QuestionView carries no correctness marker by construction; options
	// must still be complete.
	if len(snap.Question.Options) != 2 {
		t.Fatalf("expected both options, got %+v", snap.Question.Options)
	}
}
