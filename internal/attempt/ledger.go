package attempt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/content"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/grading"
)

// Ledger records at most one answer per (attempt, question). Correctness is
// derived when the answer is written and stored with it.
type Ledger struct {
	db      *sql.DB
	matcher grading.TextMatcher
}

func NewLedger(dbh *sql.DB, m grading.TextMatcher) *Ledger {
	return &Ledger{db: dbh, matcher: m}
}

// Evaluate checks sel against q and returns the correctness it earns.
// Selecting nothing is allowed and clears the answer.
func (l *Ledger) Evaluate(q content.Question, sel Selection) (bool, *Error) {
	if sel.ChoiceID != nil && sel.TextAnswer != nil {
		return false, errorf(KindValidation, "question %d: send either choice_id or text_answer", q.ID)
	}
	switch {
	case sel.ChoiceID != nil:
		if q.FreeForm() {
			return false, errorf(KindInvalidChoice, "question %d takes a text answer", q.ID)
		}
		c, ok := q.Choice(*sel.ChoiceID)
		if !ok {
			return false, errorf(KindInvalidChoice, "choice %d does not belong to question %d", *sel.ChoiceID, q.ID)
		}
		return c.IsCorrect, nil
	case sel.TextAnswer != nil:
		if !q.FreeForm() {
			return false, errorf(KindValidation, "question %d takes a choice", q.ID)
		}
		return l.matcher.Match(q.Accepted, *sel.TextAnswer), nil
	}
	return false, nil
}

// Put upserts one answer inside tx. A resubmission overwrites the previous
// selection and its correctness together.
func (l *Ledger) Put(ctx context.Context, tx *sql.Tx, a Answer) (Answer, error) {
	var (
		text     sql.NullString
		answered int64
	)
	if a.TextAnswer != nil {
		text = sql.NullString{String: *a.TextAnswer, Valid: true}
	}
	err := tx.QueryRowContext(ctx,
		`INSERT INTO answers (id, attempt_id, section_attempt_id, question_id, selected_choice_id, text_answer, is_correct, answered_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE SET
		   section_attempt_id=EXCLUDED.section_attempt_id,
		   selected_choice_id=EXCLUDED.selected_choice_id,
		   text_answer=EXCLUDED.text_answer,
		   is_correct=EXCLUDED.is_correct,
		   answered_at=EXCLUDED.answered_at
		 RETURNING id, answered_at`,
		uuid.NewString(), a.AttemptID, a.SectionAttemptID, a.QuestionID,
		nullInt64(a.SelectedChoiceID), text, a.IsCorrect, a.AnsweredAt.Unix()).
		Scan(&a.ID, &answered)
	if err != nil {
		return Answer{}, fmt.Errorf("attempt: upsert answer for question %d: %w", a.QuestionID, err)
	}
	a.AnsweredAt = time.Unix(answered, 0).UTC()
	return a, nil
}

const answerCols = `id, attempt_id, section_attempt_id, question_id, selected_choice_id, text_answer, is_correct, answered_at`

// ForAttempt returns every answer of the attempt keyed by question id.
func (l *Ledger) ForAttempt(ctx context.Context, tx *sql.Tx, attemptID string) (map[int64]Answer, error) {
	return l.query(ctx, tx, `WHERE attempt_id=$1`, attemptID)
}

// ForSectionAttempt returns the answers recorded under one section attempt.
func (l *Ledger) ForSectionAttempt(ctx context.Context, tx *sql.Tx, sectionAttemptID string) (map[int64]Answer, error) {
	return l.query(ctx, tx, `WHERE section_attempt_id=$1`, sectionAttemptID)
}

func (l *Ledger) query(ctx context.Context, tx *sql.Tx, where string, arg any) (map[int64]Answer, error) {
	var q db.Querier = l.db
	if tx != nil {
		q = tx
	}
	rows, err := q.QueryContext(ctx, `SELECT `+answerCols+` FROM answers `+strings.TrimSpace(where), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]Answer{}
	for rows.Next() {
		var (
			a        Answer
			choice   sql.NullInt64
			text     sql.NullString
			answered int64
		)
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.SectionAttemptID, &a.QuestionID,
			&choice, &text, &a.IsCorrect, &answered); err != nil {
			return nil, err
		}
		if choice.Valid {
			id := choice.Int64
			a.SelectedChoiceID = &id
		}
		if text.Valid {
			s := text.String
			a.TextAnswer = &s
		}
		a.AnsweredAt = time.Unix(answered, 0).UTC()
		out[a.QuestionID] = a
	}
	return out, rows.Err()
}
