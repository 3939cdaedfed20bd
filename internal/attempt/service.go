package attempt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/content"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/grading"
)

// Assignments answers whether a student may take a test.
type Assignments interface {
	IsAssigned(ctx context.Context, testID int64, studentID string) (bool, error)
	ListAssigned(ctx context.Context, studentID string) ([]int64, error)
}

// Events receives notifications written in the same transaction as the
// state change they describe.
type Events interface {
	Append(ctx context.Context, q db.Querier, typ, key string, payload any) error
}

const EventAttemptCompleted = "AttemptCompleted"

// CompletedEvent is the payload published when an attempt finishes.
type CompletedEvent struct {
	AttemptID   string  `json:"attempt_id"`
	TestID      int64   `json:"test_id"`
	StudentID   string  `json:"student_id"`
	TotalScore  int     `json:"total_score"`
	TotalMarks  int     `json:"total_marks"`
	Percentage  float64 `json:"percentage"`
	Passed      *bool   `json:"passed"`
	CompletedAt int64   `json:"completed_at"`
}

// Service is the attempt state machine. Every operation takes the caller
// explicitly; there is no ambient session.
type Service struct {
	db          *sql.DB
	content     content.View
	assignments Assignments
	events      Events
	store       *Store
	ledger      *Ledger
	now         func() time.Time
	log         *log.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l *log.Logger) Option { return func(s *Service) { s.log = l } }

func WithEvents(e Events) Option { return func(s *Service) { s.events = e } }

func WithTextMatcher(m grading.TextMatcher) Option {
	return func(s *Service) { s.ledger.matcher = m }
}

func NewService(dbh *sql.DB, view content.View, assignments Assignments, opts ...Option) *Service {
	s := &Service{
		db:          dbh,
		content:     view,
		assignments: assignments,
		store:       NewStore(dbh),
		ledger:      NewLedger(dbh, grading.TextMatcher{}),
		now:         time.Now,
		log:         log.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC().Truncate(time.Second) }

func requireStudent(c Caller) error {
	if c.ID == "" || c.Role != RoleStudent {
		return errorf(KindPermissionDenied, "only students take tests")
	}
	return nil
}

func (s *Service) loadTest(ctx context.Context, testID int64) (content.Test, error) {
	t, err := s.content.GetTest(ctx, testID)
	if errors.Is(err, content.ErrNotFound) {
		return content.Test{}, errorf(KindNotFound, "test %d not found", testID)
	}
	if err != nil {
		return content.Test{}, err
	}
	return t, nil
}

func (s *Service) loadSection(ctx context.Context, testID, sectionID int64) (content.Test, content.Section, error) {
	t, err := s.loadTest(ctx, testID)
	if err != nil {
		return content.Test{}, content.Section{}, err
	}
	sec, ok := t.Section(sectionID)
	if !ok {
		return content.Test{}, content.Section{}, errorf(KindNotFound, "section %d is not part of test %d", sectionID, testID)
	}
	return t, sec, nil
}

// lockInProgress locks the caller's attempt for writing. A terminal attempt
// yields AlreadyCompleted.
func (s *Service) lockInProgress(ctx context.Context, tx *sql.Tx, testID int64, studentID string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, tx, testID, studentID)
	if err != nil {
		return Attempt{}, err
	}
	ok, err := s.store.LockAttempt(ctx, tx, a.ID)
	if err != nil {
		return Attempt{}, err
	}
	if !ok {
		return Attempt{}, errorf(KindAlreadyCompleted, "test %d already completed", testID)
	}
	// reread under the lock; the first read may predate a concurrent writer
	return s.store.GetAttemptByID(ctx, tx, a.ID)
}

func (s *Service) StartTest(ctx context.Context, c Caller, testID int64) (StartedTest, error) {
	if err := requireStudent(c); err != nil {
		return StartedTest{}, err
	}
	t, err := s.loadTest(ctx, testID)
	if err != nil {
		return StartedTest{}, err
	}
	if !t.IsActive {
		return StartedTest{}, errorf(KindNotFound, "test %d not found", testID)
	}
	assigned, err := s.assignments.IsAssigned(ctx, testID, c.ID)
	if err != nil {
		return StartedTest{}, err
	}
	if !assigned {
		return StartedTest{}, errorf(KindPermissionDenied, "test %d is not assigned to you", testID)
	}

	first, hasFirst := FirstSection(t)
	fresh := Attempt{
		ID:         uuid.NewString(),
		TestID:     testID,
		StudentID:  c.ID,
		Status:     StatusInProgress,
		TotalMarks: t.TotalMarks,
		StartedAt:  s.clock(),
	}
	if hasFirst {
		id := first.ID
		fresh.CurrentSectionID = &id
	}
	created, err := s.store.InsertAttemptIfAbsent(ctx, nil, fresh)
	if err != nil {
		return StartedTest{}, err
	}
	a, err := s.store.GetAttempt(ctx, nil, testID, c.ID)
	if err != nil {
		return StartedTest{}, err
	}
	if a.Status.Terminal() {
		return StartedTest{}, errorf(KindAlreadyCompleted, "test %d already completed", testID)
	}
	if created {
		s.log.Printf("attempt %s started test=%d student=%s", a.ID, testID, c.ID)
	}

	out := StartedTest{AttemptID: a.ID, Status: a.Status, Sections: []SectionSummary{}}
	for _, sec := range OrderedSections(t) {
		out.Sections = append(out.Sections, summarize(sec))
	}
	if a.CurrentSectionID != nil {
		out.CurrentSection = summaryPtr(t.Section(*a.CurrentSectionID))
	}
	return out, nil
}

func (s *Service) StartSection(ctx context.Context, c Caller, testID, sectionID int64) (StartedSection, error) {
	if err := requireStudent(c); err != nil {
		return StartedSection{}, err
	}
	_, sec, err := s.loadSection(ctx, testID, sectionID)
	if err != nil {
		return StartedSection{}, err
	}

	var sa SectionAttempt
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := s.lockInProgress(ctx, tx, testID, c.ID)
		if err != nil {
			return err
		}
		_, err = s.store.InsertSectionAttemptIfAbsent(ctx, tx, SectionAttempt{
			ID:         uuid.NewString(),
			AttemptID:  a.ID,
			SectionID:  sectionID,
			Status:     StatusInProgress,
			StartedAt:  s.clock(),
			TotalMarks: sec.TotalMarks(),
		})
		if err != nil {
			return err
		}
		if sa, err = s.store.GetSectionAttempt(ctx, tx, a.ID, sectionID); err != nil {
			return err
		}
		if sa.Status.Terminal() {
			return errorf(KindSectionAlreadyCompleted, "section %d already completed", sectionID)
		}
		return s.store.SetCurrentSection(ctx, tx, a.ID, &sectionID)
	})
	if err != nil {
		return StartedSection{}, err
	}
	return StartedSection{SectionAttemptID: sa.ID, StartedAt: sa.StartedAt, TimeLimit: sec.TimeLimit}, nil
}

func (s *Service) GetSectionQuestions(ctx context.Context, c Caller, testID, sectionID int64) (SectionQuestions, error) {
	if err := requireStudent(c); err != nil {
		return SectionQuestions{}, err
	}
	_, sec, err := s.loadSection(ctx, testID, sectionID)
	if err != nil {
		return SectionQuestions{}, err
	}
	a, err := s.store.GetAttempt(ctx, nil, testID, c.ID)
	if err != nil {
		return SectionQuestions{}, err
	}
	sa, err := s.store.GetSectionAttempt(ctx, nil, a.ID, sectionID)
	if errors.Is(err, ErrNotFound) || (err == nil && sa.Status != StatusInProgress) {
		return SectionQuestions{}, errorf(KindSectionNotActive, "section %d is not active", sectionID)
	}
	if err != nil {
		return SectionQuestions{}, err
	}
	answers, err := s.ledger.ForSectionAttempt(ctx, nil, sa.ID)
	if err != nil {
		return SectionQuestions{}, err
	}
	return StudentProjection(sec, sa, answers), nil
}

// SubmitAnswer records one answer. sectionID is optional; when set it must
// be the section that owns the question.
func (s *Service) SubmitAnswer(ctx context.Context, c Caller, testID int64, sectionID *int64, questionID int64, sel Selection) (Answer, error) {
	if err := requireStudent(c); err != nil {
		return Answer{}, err
	}
	t, err := s.loadTest(ctx, testID)
	if err != nil {
		return Answer{}, err
	}
	sec, q, ok := t.FindQuestion(questionID)
	if !ok {
		return Answer{}, errorf(KindNotFound, "question %d is not part of test %d", questionID, testID)
	}
	if sectionID != nil && *sectionID != sec.ID {
		if _, ok := t.Section(*sectionID); !ok {
			return Answer{}, errorf(KindNotFound, "section %d is not part of test %d", *sectionID, testID)
		}
		return Answer{}, errorf(KindQuestionNotInSection, "question %d is not in section %d", questionID, *sectionID)
	}
	correct, verr := s.ledger.Evaluate(q, sel)
	if verr != nil {
		return Answer{}, verr
	}

	var saved Answer
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := s.lockInProgress(ctx, tx, testID, c.ID)
		if err != nil {
			return err
		}
		sa, ok, err := s.store.LockSectionAttempt(ctx, tx, a.ID, sec.ID)
		if err != nil {
			return err
		}
		if !ok {
			return errorf(KindSectionNotActive, "section %d is not active", sec.ID)
		}
		saved, err = s.ledger.Put(ctx, tx, Answer{
			AttemptID:        a.ID,
			SectionAttemptID: sa.ID,
			QuestionID:       q.ID,
			SelectedChoiceID: sel.ChoiceID,
			TextAnswer:       sel.TextAnswer,
			IsCorrect:        correct,
			AnsweredAt:       s.clock(),
		})
		return err
	})
	if err != nil {
		return Answer{}, err
	}
	return saved, nil
}

// SubmitBulkAnswers validates every item before writing any of them, then
// upserts the whole batch in one transaction.
func (s *Service) SubmitBulkAnswers(ctx context.Context, c Caller, testID, sectionID int64, items []BulkItem) ([]Answer, error) {
	if err := requireStudent(c); err != nil {
		return nil, err
	}
	_, sec, err := s.loadSection(ctx, testID, sectionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errorf(KindValidation, "no answers submitted")
	}
	correct := make([]bool, len(items))
	seen := make(map[int64]bool, len(items))
	for i, it := range items {
		q, ok := sec.Question(it.QuestionID)
		if !ok {
			return nil, &BulkItemError{Index: i, QuestionID: it.QuestionID,
				Err: errorf(KindQuestionNotInSection, "question %d is not in section %d", it.QuestionID, sectionID)}
		}
		if seen[it.QuestionID] {
			return nil, &BulkItemError{Index: i, QuestionID: it.QuestionID,
				Err: errorf(KindValidation, "question %d appears more than once", it.QuestionID)}
		}
		seen[it.QuestionID] = true
		isCorrect, verr := s.ledger.Evaluate(q, it.Selection)
		if verr != nil {
			return nil, &BulkItemError{Index: i, QuestionID: it.QuestionID, Err: verr}
		}
		correct[i] = isCorrect
	}

	out := make([]Answer, 0, len(items))
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := s.lockInProgress(ctx, tx, testID, c.ID)
		if err != nil {
			return err
		}
		sa, ok, err := s.store.LockSectionAttempt(ctx, tx, a.ID, sectionID)
		if err != nil {
			return err
		}
		if !ok {
			return errorf(KindSectionNotActive, "section %d is not active", sectionID)
		}
		at := s.clock()
		for i, it := range items {
			saved, err := s.ledger.Put(ctx, tx, Answer{
				AttemptID:        a.ID,
				SectionAttemptID: sa.ID,
				QuestionID:       it.QuestionID,
				SelectedChoiceID: it.ChoiceID,
				TextAnswer:       it.TextAnswer,
				IsCorrect:        correct[i],
				AnsweredAt:       at,
			})
			if err != nil {
				return err
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type CompletedSection struct {
	SectionAttempt SectionAttempt  `json:"section_attempt"`
	NextSection    *SectionSummary `json:"next_section"`
}

func (s *Service) CompleteSection(ctx context.Context, c Caller, testID, sectionID int64) (CompletedSection, error) {
	if err := requireStudent(c); err != nil {
		return CompletedSection{}, err
	}
	t, sec, err := s.loadSection(ctx, testID, sectionID)
	if err != nil {
		return CompletedSection{}, err
	}

	var out CompletedSection
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := s.lockInProgress(ctx, tx, testID, c.ID)
		if err != nil {
			return err
		}
		sa, ok, err := s.store.LockSectionAttempt(ctx, tx, a.ID, sectionID)
		if err != nil {
			return err
		}
		if !ok {
			_, err := s.store.GetSectionAttempt(ctx, tx, a.ID, sectionID)
			if errors.Is(err, ErrNotFound) {
				return errorf(KindSectionNotActive, "section %d was never started", sectionID)
			}
			if err != nil {
				return err
			}
			return errorf(KindSectionAlreadyCompleted, "section %d already completed", sectionID)
		}
		answers, err := s.ledger.ForSectionAttempt(ctx, tx, sa.ID)
		if err != nil {
			return err
		}
		now := s.clock()
		score := SectionScore(sec, answers)
		taken := int(now.Sub(sa.StartedAt) / time.Second)
		if taken < 0 {
			taken = 0
		}
		done, err := s.store.FinishSectionAttempt(ctx, tx, sa.ID, score, now, taken)
		if err != nil {
			return err
		}
		if !done {
			return errorf(KindSectionAlreadyCompleted, "section %d already completed", sectionID)
		}
		sa.Status, sa.Score, sa.CompletedAt, sa.TimeTaken = StatusCompleted, score, &now, taken
		out.SectionAttempt = sa

		if next, ok := NextSection(t, sectionID); ok {
			out.NextSection = summaryPtr(next, true)
			return s.store.SetCurrentSection(ctx, tx, a.ID, &next.ID)
		}
		return nil
	})
	if err != nil {
		return CompletedSection{}, err
	}
	s.log.Printf("section attempt %s completed score=%d/%d time=%ds",
		out.SectionAttempt.ID, out.SectionAttempt.Score, out.SectionAttempt.TotalMarks, out.SectionAttempt.TimeTaken)
	return out, nil
}

func (s *Service) CompleteTest(ctx context.Context, c Caller, testID int64) (Attempt, error) {
	if err := requireStudent(c); err != nil {
		return Attempt{}, err
	}
	t, err := s.loadTest(ctx, testID)
	if err != nil {
		return Attempt{}, err
	}

	var a Attempt
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		locked, err := s.lockInProgress(ctx, tx, testID, c.ID)
		if err != nil {
			return err
		}
		a = locked
		sas, err := s.store.ListSectionAttempts(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		now := s.clock()
		score := TotalScore(sas)
		pct := Percentage(score, a.TotalMarks)
		done, err := s.store.FinishAttempt(ctx, tx, a.ID, StatusCompleted, score, pct, now)
		if err != nil {
			return err
		}
		if !done {
			return errorf(KindAlreadyCompleted, "test %d already completed", testID)
		}
		a.Status, a.TotalScore, a.Percentage, a.CompletedAt, a.CurrentSectionID = StatusCompleted, score, pct, &now, nil
		if s.events == nil {
			return nil
		}
		return s.events.Append(ctx, tx, EventAttemptCompleted, a.ID, CompletedEvent{
			AttemptID:   a.ID,
			TestID:      a.TestID,
			StudentID:   a.StudentID,
			TotalScore:  score,
			TotalMarks:  a.TotalMarks,
			Percentage:  pct,
			Passed:      Passed(score, t.PassingMarks),
			CompletedAt: now.Unix(),
		})
	})
	if err != nil {
		return Attempt{}, err
	}
	s.log.Printf("attempt %s completed score=%d/%d", a.ID, a.TotalScore, a.TotalMarks)
	return a, nil
}

// finishedAttempt resolves whose attempt a results or review call is about.
// Students read their own; staff must name the student.
func (s *Service) finishedAttempt(ctx context.Context, c Caller, testID int64, studentID string) (content.Test, Attempt, []SectionAttempt, error) {
	switch {
	case c.Role == RoleStudent:
		if studentID != "" && studentID != c.ID {
			return content.Test{}, Attempt{}, nil, errorf(KindPermissionDenied, "students can only read their own results")
		}
		studentID = c.ID
	case c.IsStaff():
		if studentID == "" {
			return content.Test{}, Attempt{}, nil, errorf(KindValidation, "student_id is required")
		}
	default:
		return content.Test{}, Attempt{}, nil, errorf(KindPermissionDenied, "role %q cannot read results", c.Role)
	}
	t, err := s.loadTest(ctx, testID)
	if err != nil {
		return content.Test{}, Attempt{}, nil, err
	}
	a, err := s.store.GetAttempt(ctx, nil, testID, studentID)
	if err != nil {
		return content.Test{}, Attempt{}, nil, err
	}
	if !a.Status.Terminal() {
		return content.Test{}, Attempt{}, nil, errorf(KindNotCompletedYet, "test %d is not completed yet", testID)
	}
	sas, err := s.store.ListSectionAttempts(ctx, nil, a.ID)
	if err != nil {
		return content.Test{}, Attempt{}, nil, err
	}
	return t, a, sas, nil
}

func (s *Service) GetResults(ctx context.Context, c Caller, testID int64, studentID string) (Results, error) {
	t, a, sas, err := s.finishedAttempt(ctx, c, testID, studentID)
	if err != nil {
		return Results{}, err
	}
	return ResultsProjection(t, a, sas), nil
}

func (s *Service) GetReview(ctx context.Context, c Caller, testID int64, studentID string) (Review, error) {
	t, a, sas, err := s.finishedAttempt(ctx, c, testID, studentID)
	if err != nil {
		return Review{}, err
	}
	answers, err := s.ledger.ForAttempt(ctx, nil, a.ID)
	if err != nil {
		return Review{}, err
	}
	return ReviewProjection(t, a, sas, answers), nil
}

const maxListLimit = 200

// ListAttempts returns attempts newest first. Students only ever see their own.
func (s *Service) ListAttempts(ctx context.Context, c Caller, f AttemptFilter) ([]Attempt, error) {
	switch {
	case c.Role == RoleStudent:
		f.StudentID = c.ID
	case c.IsStaff():
	default:
		return nil, errorf(KindPermissionDenied, "role %q cannot list attempts", c.Role)
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	out, err := s.store.ListAttempts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("attempt: list: %w", err)
	}
	return out, nil
}

type AssignedTest struct {
	TestID        int64             `json:"test_id"`
	Title         string            `json:"title"`
	TotalMarks    int               `json:"total_marks"`
	PassingMarks  *int              `json:"passing_marks,omitempty"`
	Sections      []AssignedSection `json:"sections"`
	QuestionCount int               `json:"question_count"`
	Status        Status            `json:"status"`
	AttemptID     string            `json:"attempt_id,omitempty"`
	Score         *int              `json:"score,omitempty"`
	Percentage    float64           `json:"percentage"`
}

type AssignedSection struct {
	SectionSummary
	QuestionCount int `json:"question_count"`
}

// AssignedTests lists the caller's active assigned tests with their attempt
// status. Tests removed or deactivated since assignment are skipped.
func (s *Service) AssignedTests(ctx context.Context, c Caller) ([]AssignedTest, error) {
	if err := requireStudent(c); err != nil {
		return nil, err
	}
	ids, err := s.assignments.ListAssigned(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	out := make([]AssignedTest, 0, len(ids))
	for _, id := range ids {
		t, err := s.content.GetTest(ctx, id)
		if errors.Is(err, content.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !t.IsActive {
			continue
		}
		at := AssignedTest{
			TestID:        t.ID,
			Title:         t.Title,
			TotalMarks:    t.TotalMarks,
			PassingMarks:  t.PassingMarks,
			Sections:      make([]AssignedSection, 0, len(t.Sections)),
			QuestionCount: t.QuestionCount(),
			Status:        StatusNotStarted,
		}
		for _, sec := range OrderedSections(t) {
			at.Sections = append(at.Sections, AssignedSection{SectionSummary: summarize(sec), QuestionCount: len(sec.Questions)})
		}
		a, err := s.store.GetAttempt(ctx, nil, id, c.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, err
		default:
			at.Status, at.AttemptID = a.Status, a.ID
			if a.Status.Terminal() {
				score := a.TotalScore
				at.Score, at.Percentage = &score, a.Percentage
			}
		}
		out = append(out, at)
	}
	return out, nil
}
