package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-assess/internal/assignment"
	"github.com/mind-engage/mindengage-assess/internal/content"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
	"github.com/mind-engage/mindengage-assess/internal/eventlog"
	"github.com/mind-engage/mindengage-assess/internal/grading"
)

var (
	alice   = Caller{ID: "alice", Role: RoleStudent}
	bob     = Caller{ID: "bob", Role: RoleStudent}
	teacher = Caller{ID: "t1", Role: RoleTeacher}
)

type fixture struct {
	db     *sql.DB
	svc    *Service
	im     *content.Importer
	view   *content.SQLView
	assign *assignment.Store
	events *eventlog.Log
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dbh := dbtest.Open(t)
	f := &fixture{
		db:     dbh,
		im:     content.NewImporter(dbh),
		view:   content.NewSQLView(dbh),
		assign: assignment.NewStore(dbh),
		events: eventlog.New(dbh, "test"),
		now:    time.Unix(1_700_000_000, 0).UTC(),
	}
	f.svc = NewService(dbh, f.view, f.assign,
		WithClock(func() time.Time { return f.now }),
		WithEvents(f.events),
		WithLogger(log.New(io.Discard, "", 0)),
		WithTextMatcher(grading.TextMatcher{MaxEdit: 1}),
	)
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// load imports def, assigns it to alice and bob and returns the stored test.
func (f *fixture) load(t *testing.T, def content.TestDef) content.Test {
	t.Helper()
	ctx := context.Background()
	id, err := f.im.PutTest(ctx, def)
	require.NoError(t, err)
	require.NoError(t, f.assign.Assign(ctx, id, alice.ID, bob.ID))
	tst, err := f.view.GetTest(ctx, id)
	require.NoError(t, err)
	return tst
}

func mcq(text string, correct string) content.QuestionDef {
	q := content.QuestionDef{Text: text, Marks: 1}
	for _, l := range []string{"A", "B", "C", "D"} {
		q.Choices = append(q.Choices, content.ChoiceDef{Label: l, Text: text + " " + l, IsCorrect: l == correct})
	}
	return q
}

func twoSectionTest() content.TestDef {
	passing := 3
	return content.TestDef{
		Title:        "Diagnostic",
		PassingMarks: &passing,
		Sections: []content.SectionDef{
			{Name: "Reading", Order: 1, Questions: []content.QuestionDef{mcq("r1", "A"), mcq("r2", "B")}},
			{Name: "Math", Order: 2, Questions: []content.QuestionDef{mcq("m1", "C"), mcq("m2", "D")}},
		},
	}
}

func pick(t *testing.T, q content.Question, correct bool) *int64 {
	t.Helper()
	for _, c := range q.Choices {
		if c.IsCorrect == correct {
			id := c.ID
			return &id
		}
	}
	t.Fatalf("question %d has no choice with correct=%v", q.ID, correct)
	return nil
}

func answerCount(t *testing.T, dbh *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, dbh.QueryRow(`SELECT COUNT(*) FROM answers`).Scan(&n))
	return n
}

func TestFullAttemptScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	reading, math := tst.Sections[0], tst.Sections[1]

	started, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	require.NotNil(t, started.CurrentSection)
	assert.Equal(t, reading.ID, started.CurrentSection.ID)
	assert.Len(t, started.Sections, 2)

	ss, err := f.svc.StartSection(ctx, alice, tst.ID, reading.ID)
	require.NoError(t, err)
	assert.True(t, f.now.Equal(ss.StartedAt))

	for _, q := range reading.Questions {
		_, err := f.svc.SubmitAnswer(ctx, alice, tst.ID, &reading.ID, q.ID, Selection{ChoiceID: pick(t, q, true)})
		require.NoError(t, err)
	}
	f.advance(90 * time.Second)
	done, err := f.svc.CompleteSection(ctx, alice, tst.ID, reading.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, done.SectionAttempt.Score)
	assert.Equal(t, 90, done.SectionAttempt.TimeTaken)
	require.NotNil(t, done.NextSection)
	assert.Equal(t, math.ID, done.NextSection.ID)

	_, err = f.svc.StartSection(ctx, alice, tst.ID, math.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitBulkAnswers(ctx, alice, tst.ID, math.ID, []BulkItem{
		{QuestionID: math.Questions[0].ID, Selection: Selection{ChoiceID: pick(t, math.Questions[0], true)}},
		{QuestionID: math.Questions[1].ID, Selection: Selection{ChoiceID: pick(t, math.Questions[1], false)}},
	})
	require.NoError(t, err)
	done, err = f.svc.CompleteSection(ctx, alice, tst.ID, math.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, done.SectionAttempt.Score)
	assert.Nil(t, done.NextSection)

	a, err := f.svc.CompleteTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.Equal(t, 3, a.TotalScore)
	assert.Equal(t, 4, a.TotalMarks)
	assert.InDelta(t, 75.0, a.Percentage, 1e-9)
	assert.Nil(t, a.CurrentSectionID)

	res, err := f.svc.GetResults(ctx, alice, tst.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Diagnostic", res.TestTitle)
	assert.Equal(t, 3, res.TotalScore)
	require.NotNil(t, res.Passed)
	assert.True(t, *res.Passed)
	require.Len(t, res.SectionResults, 2)
	assert.Equal(t, "Reading", res.SectionResults[0].Name)
	assert.InDelta(t, 100.0, res.SectionResults[0].Percentage, 1e-9)
	assert.InDelta(t, 50.0, res.SectionResults[1].Percentage, 1e-9)

	rv, err := f.svc.GetReview(ctx, alice, tst.ID, "")
	require.NoError(t, err)
	require.Len(t, rv.Sections, 2)
	wrong := rv.Sections[1].Questions[1]
	assert.False(t, wrong.IsCorrect)
	assert.Equal(t, 0, wrong.MarksEarned)
	assert.Equal(t, pick(t, math.Questions[1], false), wrong.StudentChoiceID)
	assert.Equal(t, pick(t, math.Questions[1], true), wrong.CorrectChoiceID)
	assert.Equal(t, 1, rv.Sections[0].Questions[0].MarksEarned)

	evs, err := f.events.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, EventAttemptCompleted, evs[0].Type)
	assert.Equal(t, a.ID, evs[0].Key)
}

func TestStartTestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())

	first, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, tst.Sections[1].ID)
	require.NoError(t, err)

	again, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	assert.Equal(t, first.AttemptID, again.AttemptID)
	assert.Equal(t, tst.Sections[1].ID, again.CurrentSection.ID, "resume keeps the current section")
}

func TestStartSectionResumeKeepsStartTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	reading, math := tst.Sections[0], tst.Sections[1]

	started, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	first, err := f.svc.StartSection(ctx, alice, tst.ID, reading.ID)
	require.NoError(t, err)
	firstAt := f.now

	f.advance(30 * time.Second)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, math.ID)
	require.NoError(t, err)
	a, err := f.svc.store.GetAttemptByID(ctx, nil, started.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, a.CurrentSectionID)
	assert.Equal(t, math.ID, *a.CurrentSectionID)

	f.advance(30 * time.Second)
	again, err := f.svc.StartSection(ctx, alice, tst.ID, reading.ID)
	require.NoError(t, err)
	assert.Equal(t, first.SectionAttemptID, again.SectionAttemptID)
	assert.True(t, firstAt.Equal(again.StartedAt), "resume keeps started_at")

	a, err = f.svc.store.GetAttemptByID(ctx, nil, started.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, a.CurrentSectionID)
	assert.Equal(t, reading.ID, *a.CurrentSectionID)

	f.advance(60 * time.Second)
	done, err := f.svc.CompleteSection(ctx, alice, tst.ID, reading.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, done.SectionAttempt.TimeTaken)
}

func TestStartTestConcurrentCreatesOneAttempt(t *testing.T) {
	f := newFixture(t)
	tst := f.load(t, twoSectionTest())

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := f.svc.StartTest(context.Background(), alice, tst.ID)
			ids[i], errs[i] = st.AttemptID, err
		}(i)
	}
	wg.Wait()
	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	var rows int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestStartTestRequiresAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())

	_, err := f.svc.StartTest(ctx, Caller{ID: "carol", Role: RoleStudent}, tst.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.StartTest(ctx, teacher, tst.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.StartTest(ctx, alice, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInactiveTestCannotBeStarted(t *testing.T) {
	f := newFixture(t)
	def := twoSectionTest()
	inactive := false
	def.IsActive = &inactive
	tst := f.load(t, def)

	_, err := f.svc.StartTest(context.Background(), alice, tst.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTestWithoutSections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, content.TestDef{Title: "Empty", TotalMarks: 5})

	st, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	assert.Nil(t, st.CurrentSection)
	assert.Empty(t, st.Sections)

	a, err := f.svc.CompleteTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.TotalScore)
	assert.Equal(t, 5, a.TotalMarks)
	assert.Zero(t, a.Percentage)
}

func TestZeroTotalMarksGivesZeroPercentage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, content.TestDef{Title: "Nothing"})

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	a, err := f.svc.CompleteTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.TotalMarks)
	assert.Zero(t, a.Percentage)

	res, err := f.svc.GetResults(ctx, alice, tst.ID, "")
	require.NoError(t, err)
	assert.Nil(t, res.Passed, "no passing mark means pass/fail is undefined")
}

func TestResubmissionOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	sec := tst.Sections[0]
	q := sec.Questions[0]

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)

	first, err := f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, q.ID, Selection{ChoiceID: pick(t, q, true)})
	require.NoError(t, err)
	assert.True(t, first.IsCorrect)

	f.advance(time.Second)
	second, err := f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, q.ID, Selection{ChoiceID: pick(t, q, false)})
	require.NoError(t, err)
	assert.False(t, second.IsCorrect)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, answerCount(t, f.db))

	qs, err := f.svc.GetSectionQuestions(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, pick(t, q, false), qs.Questions[0].SelectedChoiceID)

	// clearing leaves a single unselected, incorrect answer
	cleared, err := f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, q.ID, Selection{})
	require.NoError(t, err)
	assert.Nil(t, cleared.SelectedChoiceID)
	assert.False(t, cleared.IsCorrect)
	assert.Equal(t, 1, answerCount(t, f.db))
}

func TestSubmitAnswerRejectsForeignChoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	sec := tst.Sections[0]

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)

	foreign := sec.Questions[1].Choices[0].ID
	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, sec.Questions[0].ID, Selection{ChoiceID: &foreign})
	assert.ErrorIs(t, err, ErrInvalidChoice)
	assert.Equal(t, 0, answerCount(t, f.db))

	other := tst.Sections[1].ID
	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, &other, sec.Questions[0].ID, Selection{ChoiceID: pick(t, sec.Questions[0], true)})
	assert.ErrorIs(t, err, ErrQuestionNotInSection)

	text := "A"
	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, sec.Questions[0].ID, Selection{TextAnswer: &text})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, 424242, Selection{ChoiceID: &foreign})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, answerCount(t, f.db))
}

func TestSubmitAnswerNeedsActiveSection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	sec := tst.Sections[0]
	q := sec.Questions[0]

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, q.ID, Selection{ChoiceID: pick(t, q, true)})
	assert.ErrorIs(t, err, ErrSectionNotActive, "section never started")

	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, q.ID, Selection{ChoiceID: pick(t, q, true)})
	assert.ErrorIs(t, err, ErrSectionNotActive)
	_, err = f.svc.GetSectionQuestions(ctx, alice, tst.ID, sec.ID)
	assert.ErrorIs(t, err, ErrSectionNotActive)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	assert.ErrorIs(t, err, ErrSectionAlreadyCompleted)
}

func TestBulkSubmissionIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	sec := tst.Sections[0]

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)

	outsider := tst.Sections[1].Questions[0]
	_, err = f.svc.SubmitBulkAnswers(ctx, alice, tst.ID, sec.ID, []BulkItem{
		{QuestionID: sec.Questions[0].ID, Selection: Selection{ChoiceID: pick(t, sec.Questions[0], true)}},
		{QuestionID: outsider.ID, Selection: Selection{ChoiceID: pick(t, outsider, true)}},
		{QuestionID: sec.Questions[1].ID, Selection: Selection{ChoiceID: pick(t, sec.Questions[1], true)}},
	})
	var bulkErr *BulkItemError
	require.ErrorAs(t, err, &bulkErr)
	assert.Equal(t, 1, bulkErr.Index)
	assert.Equal(t, outsider.ID, bulkErr.QuestionID)
	assert.ErrorIs(t, err, ErrQuestionNotInSection)
	assert.Equal(t, 0, answerCount(t, f.db))

	foreign := sec.Questions[1].Choices[0].ID
	_, err = f.svc.SubmitBulkAnswers(ctx, alice, tst.ID, sec.ID, []BulkItem{
		{QuestionID: sec.Questions[0].ID, Selection: Selection{ChoiceID: &foreign}},
	})
	require.ErrorAs(t, err, &bulkErr)
	assert.Equal(t, 0, bulkErr.Index)
	assert.ErrorIs(t, err, ErrInvalidChoice)
	assert.Equal(t, 0, answerCount(t, f.db))

	_, err = f.svc.SubmitBulkAnswers(ctx, alice, tst.ID, sec.ID, []BulkItem{
		{QuestionID: sec.Questions[0].ID, Selection: Selection{ChoiceID: pick(t, sec.Questions[0], true)}},
		{QuestionID: sec.Questions[0].ID, Selection: Selection{ChoiceID: pick(t, sec.Questions[0], false)}},
	})
	require.ErrorAs(t, err, &bulkErr)
	assert.Equal(t, 1, bulkErr.Index)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, answerCount(t, f.db))

	saved, err :=f.svc.SubmitBulkAnswers(ctx, alice, tst.ID, sec.ID, []BulkItem{
		{QuestionID: sec.Questions[0].ID, Selection: Selection{ChoiceID: pick(t, sec.Questions[0], true)}},
		{QuestionID: sec.Questions[1].ID, Selection: Selection{ChoiceID: pick(t, sec.Questions[1], false)}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.True(t, saved[0].IsCorrect)
	assert.False(t, saved[1].IsCorrect)
	assert.Equal(t, 2, answerCount(t, f.db))
}

func TestCompleteSectionTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	sec := tst.Sections[0]

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, sec.Questions[0].ID, Selection{ChoiceID: pick(t, sec.Questions[0], true)})
	require.NoError(t, err)

	f.advance(30 * time.Second)
	first, err := f.svc.CompleteSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)

	f.advance(time.Hour)
	_, err = f.svc.CompleteSection(ctx, alice, tst.ID, sec.ID)
	assert.ErrorIs(t, err, ErrSectionAlreadyCompleted)

	a, err := f.svc.store.GetAttempt(ctx, nil, tst.ID, alice.ID)
	require.NoError(t, err)
	sa, err := f.svc.store.GetSectionAttempt(ctx, nil, a.ID, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, first.SectionAttempt.Score, sa.Score)
	assert.Equal(t, 30, sa.TimeTaken)
	assert.Equal(t, 1, sa.Score)
}

func TestCompleteSectionNeverStarted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteSection(ctx, alice, tst.ID, tst.Sections[0].ID)
	assert.ErrorIs(t, err, ErrSectionNotActive)
}

func TestCompleteTestIsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	sec := tst.Sections[0]

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, sec.Questions[0].ID, Selection{ChoiceID: pick(t, sec.Questions[0], true)})
	require.NoError(t, err)
	_, err = f.svc.CompleteSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)

	// the second section was never completed and contributes nothing
	a, err := f.svc.CompleteTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.TotalScore)
	assert.InDelta(t, 25.0, a.Percentage, 1e-9)

	_, err = f.svc.CompleteTest(ctx, alice, tst.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	_, err = f.svc.StartTest(ctx, alice, tst.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, tst.Sections[1].ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	// the finished attempt is checked before the finished section
	_, err = f.svc.CompleteSection(ctx, alice, tst.ID, sec.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, sec.Questions[1].ID, Selection{ChoiceID: pick(t, sec.Questions[1], true)})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	res, err := f.svc.GetResults(ctx, alice, tst.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalScore)
	require.NotNil(t, res.Passed)
	assert.False(t, *res.Passed)

	evs, err := f.events.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, EventAttemptCompleted, evs[0].Type)
	assert.Equal(t, a.ID, evs[0].Key)
	var ev CompletedEvent
	require.NoError(t, json.Unmarshal([]byte(evs[0].DataJSON), &ev))
	assert.Equal(t, "alice", ev.StudentID)
	assert.Equal(t, 1, ev.TotalScore)
	assert.Equal(t, 4, ev.TotalMarks)
	require.NotNil(t, ev.Passed)
	assert.False(t, *ev.Passed)
}

func TestConcurrentCompleteTest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)

	const n = 6
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CompleteTest(context.Background(), alice, tst.ID)
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyCompleted)
	}
	assert.Equal(t, 1, ok)
}

func TestResultsBeforeCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())

	_, err := f.svc.GetResults(ctx, alice, tst.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.GetResults(ctx, alice, tst.ID, "")
	assert.ErrorIs(t, err, ErrNotCompletedYet)
	_, err = f.svc.GetReview(ctx, alice, tst.ID, "")
	assert.ErrorIs(t, err, ErrNotCompletedYet)
}

func TestResultsAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteTest(ctx, alice, tst.ID)
	require.NoError(t, err)

	_, err = f.svc.GetResults(ctx, bob, tst.ID, alice.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.GetResults(ctx, teacher, tst.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	res, err := f.svc.GetResults(ctx, teacher, tst.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, res.StudentID)
}

func TestCorrectnessIsSnapshotAtWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())
	sec := tst.Sections[0]
	q := sec.Questions[0]
	wrong := pick(t, q, false)

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, q.ID, Selection{ChoiceID: wrong})
	require.NoError(t, err)

	// the key changes after the answer was recorded
	_, err = f.db.ExecContext(ctx, `UPDATE choices SET is_correct=$1 WHERE id=$2`, true, *wrong)
	require.NoError(t, err)

	done, err := f.svc.CompleteSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, done.SectionAttempt.Score)
}

func TestFreeFormAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, content.TestDef{
		Title: "Capitals",
		Sections: []content.SectionDef{{
			Name: "Europe",
			Questions: []content.QuestionDef{
				{Text: "Capital of France?", Marks: 2, Accepted: []string{"Paris"}},
				mcq("pick", "A"),
			},
		}},
	})
	sec := tst.Sections[0]
	free, choice := sec.Questions[0], sec.Questions[1]

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, free.ID, Selection{ChoiceID: pick(t, choice, true)})
	assert.ErrorIs(t, err, ErrInvalidChoice)

	typo := "  pariss "
	ans, err := f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, free.ID, Selection{TextAnswer: &typo})
	require.NoError(t, err)
	assert.True(t, ans.IsCorrect)

	done, err := f.svc.CompleteSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, done.SectionAttempt.Score)
}

func TestNumericAnswersCompareByValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, content.TestDef{
		Title: "Arithmetic",
		Sections: []content.SectionDef{{
			Name: "Signs",
			Questions: []content.QuestionDef{
				{Text: "2 - 7", Marks: 1, Accepted: []string{"-5"}},
				{Text: "pi to two places", Marks: 1, Accepted: []string{"3.14"}},
			},
		}},
	})
	sec := tst.Sections[0]
	neg, pi := sec.Questions[0], sec.Questions[1]

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	_, err = f.svc.StartSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)

	for _, tc := range []struct {
		q    content.Question
		resp string
		want bool
	}{
		{neg, "5", false},
		{neg, "-5.0", true},
		{pi, "314", false},
		{pi, "3.141", false},
		{pi, "3.14", true},
	} {
		resp := tc.resp
		ans, err := f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, tc.q.ID, Selection{TextAnswer: &resp})
		require.NoError(t, err)
		assert.Equal(t, tc.want, ans.IsCorrect, "%q for %q", resp, tc.q.Text)
	}

	wrong := "5"
	_, err = f.svc.SubmitAnswer(ctx, alice, tst.ID, nil, neg.ID, Selection{TextAnswer: &wrong})
	require.NoError(t, err)
	done, err := f.svc.CompleteSection(ctx, alice, tst.ID, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, done.SectionAttempt.Score)
}

func TestListAttemptsScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tst := f.load(t, twoSectionTest())

	_, err := f.svc.StartTest(ctx, alice, tst.ID)
	require.NoError(t, err)
	f.advance(time.Minute)
	_, err = f.svc.StartTest(ctx, bob, tst.ID)
	require.NoError(t, err)

	mine, err := f.svc.ListAttempts(ctx, alice, AttemptFilter{StudentID: bob.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, alice.ID, mine[0].StudentID)

	all, err := f.svc.ListAttempts(ctx, teacher, AttemptFilter{TestID: tst.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, bob.ID, all[0].StudentID, "newest first")

	_, err = f.svc.ListAttempts(ctx, Caller{ID: "x", Role: "guest"}, AttemptFilter{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAssignedTests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.load(t, twoSectionTest())
	second := f.load(t, content.TestDef{Title: "Empty"})

	_, err := f.svc.StartTest(ctx, alice, first.ID)
	require.NoError(t, err)
	_, err = f.svc.StartTest(ctx, alice, second.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteTest(ctx, alice, second.ID)
	require.NoError(t, err)

	list, err := f.svc.AssignedTests(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[int64]AssignedTest{}
	for _, at := range list {
		byID[at.TestID] = at
	}
	assert.Equal(t, StatusInProgress, byID[first.ID].Status)
	assert.Equal(t, 4, byID[first.ID].QuestionCount)
	require.Len(t, byID[first.ID].Sections, 2)
	assert.Equal(t, "Reading", byID[first.ID].Sections[0].Name)
	assert.Equal(t, 2, byID[first.ID].Sections[0].QuestionCount)
	assert.Equal(t, StatusCompleted, byID[second.ID].Status)
	require.NotNil(t, byID[second.ID].Score)

	list, err = f.svc.AssignedTests(ctx, Caller{ID: "carol", Role: RoleStudent})
	require.NoError(t, err)
	assert.Empty(t, list)
}
