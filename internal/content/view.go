package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("content: test not found")

// View is the read-only side of test content consumed by the attempt core.
type View interface {
	GetTest(ctx context.Context, id int64) (Test, error)
}

type SQLView struct {
	db *sql.DB
}

func NewSQLView(db *sql.DB) *SQLView {
	return &SQLView{db: db}
}

func (v *SQLView) GetTest(ctx context.Context, id int64) (Test, error) {
	var (
		t       Test
		passing sql.NullInt64
	)
	err := v.db.QueryRowContext(ctx,
		`SELECT id, title, total_marks, passing_marks, is_active FROM tests WHERE id=$1`, id).
		Scan(&t.ID, &t.Title, &t.TotalMarks, &passing, &t.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, ErrNotFound
		}
		return Test{}, fmt.Errorf("content: load test %d: %w", id, err)
	}
	if passing.Valid {
		pm := int(passing.Int64)
		t.PassingMarks = &pm
	}

	if t.Sections, err = v.sections(ctx, id); err != nil {
		return Test{}, err
	}
	questions, err := v.questions(ctx, id)
	if err != nil {
		return Test{}, err
	}
	choices, err := v.choices(ctx, id)
	if err != nil {
		return Test{}, err
	}
	for i := range questions {
		questions[i].Choices = choices[questions[i].ID]
	}
	bySection := map[int64][]Question{}
	for _, q := range questions {
		bySection[q.SectionID] = append(bySection[q.SectionID], q)
	}
	for i := range t.Sections {
		t.Sections[i].Questions = bySection[t.Sections[i].ID]
	}
	return t, nil
}

func (v *SQLView) sections(ctx context.Context, testID int64) ([]Section, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT id, test_id, name, time_limit, ord FROM sections WHERE test_id=$1 ORDER BY ord, id`, testID)
	if err != nil {
		return nil, fmt.Errorf("content: load sections: %w", err)
	}
	defer rows.Close()

	var out []Section
	for rows.Next() {
		var (
			s  Section
			tl sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.TestID, &s.Name, &tl, &s.Order); err != nil {
			return nil, err
		}
		if tl.Valid {
			m := int(tl.Int64)
			s.TimeLimit = &m
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (v *SQLView) questions(ctx context.Context, testID int64) ([]Question, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT q.id, q.section_id, q.text, q.passage, q.marks, q.ord, q.accepted_json
		  FROM questions q
		  JOIN sections s ON s.id = q.section_id
		 WHERE s.test_id=$1
		 ORDER BY q.section_id, q.ord, q.id`, testID)
	if err != nil {
		return nil, fmt.Errorf("content: load questions: %w", err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var (
			q        Question
			accepted string
		)
		if err := rows.Scan(&q.ID, &q.SectionID, &q.Text, &q.Passage, &q.Marks, &q.Order, &accepted); err != nil {
			return nil, err
		}
		if accepted != "" {
			if err := json.Unmarshal([]byte(accepted), &q.Accepted); err != nil {
				return nil, fmt.Errorf("content: question %d accepted answers: %w", q.ID, err)
			}
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (v *SQLView) choices(ctx context.Context, testID int64) (map[int64][]Choice, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT c.id, c.question_id, c.label, c.text, c.is_correct
		  FROM choices c
		  JOIN questions q ON q.id = c.question_id
		  JOIN sections s ON s.id = q.section_id
		 WHERE s.test_id=$1
		 ORDER BY c.question_id, c.label, c.id`, testID)
	if err != nil {
		return nil, fmt.Errorf("content: load choices: %w", err)
	}
	defer rows.Close()

	out := map[int64][]Choice{}
	for rows.Next() {
		var c Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Label, &c.Text, &c.IsCorrect); err != nil {
			return nil, err
		}
		out[c.QuestionID] = append(out[c.QuestionID], c)
	}
	return out, rows.Err()
}
