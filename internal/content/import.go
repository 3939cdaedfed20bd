package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/db"
)

var ErrInvalidDefinition = errors.New("content: invalid test definition")

// TestDef is the import shape of a test. IDs are assigned on import.
type TestDef struct {
	Title        string       `json:"title"`
	TotalMarks   int          `json:"total_marks"`
	PassingMarks *int         `json:"passing_marks,omitempty"`
	IsActive     *bool        `json:"is_active,omitempty"` // default true
	Sections     []SectionDef `json:"sections"`
}

type SectionDef struct {
	Name      string        `json:"name"`
	TimeLimit *int          `json:"time_limit,omitempty"`
	Order     int           `json:"order"`
	Questions []QuestionDef `json:"questions"`
}

type QuestionDef struct {
	Text     string      `json:"text"`
	Passage  string      `json:"passage,omitempty"`
	Marks    int         `json:"marks"`
	Order    int         `json:"order"`
	Choices  []ChoiceDef `json:"choices,omitempty"`
	Accepted []string    `json:"accepted_answers,omitempty"`
}

type ChoiceDef struct {
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

var choiceLabels = map[string]bool{"A": true, "B": true, "C": true, "D": true}

// Validate checks the structural rules content must satisfy before the
// attempt core can rely on it.
func (d TestDef) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalidDefinition)
	}
	if d.TotalMarks < 0 {
		return fmt.Errorf("%w: total_marks must not be negative", ErrInvalidDefinition)
	}
	for si, s := range d.Sections {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: section %d: name required", ErrInvalidDefinition, si)
		}
		if s.TimeLimit != nil && *s.TimeLimit < 0 {
			return fmt.Errorf("%w: section %d: negative time_limit", ErrInvalidDefinition, si)
		}
		for qi, q := range s.Questions {
			where := fmt.Sprintf("section %d question %d", si, qi)
			if q.Marks < 1 {
				return fmt.Errorf("%w: %s: marks must be >= 1", ErrInvalidDefinition, where)
			}
			if len(q.Choices) == 0 {
				if len(q.Accepted) == 0 {
					return fmt.Errorf("%w: %s: needs choices or accepted_answers", ErrInvalidDefinition, where)
				}
				continue
			}
			if len(q.Accepted) > 0 {
				return fmt.Errorf("%w: %s: choices and accepted_answers are exclusive", ErrInvalidDefinition, where)
			}
			correct := 0
			seen := map[string]bool{}
			for _, c := range q.Choices {
				if !choiceLabels[c.Label] {
					return fmt.Errorf("%w: %s: bad choice label %q", ErrInvalidDefinition, where, c.Label)
				}
				if seen[c.Label] {
					return fmt.Errorf("%w: %s: duplicate choice label %q", ErrInvalidDefinition, where, c.Label)
				}
				seen[c.Label] = true
				if c.IsCorrect {
					correct++
				}
			}
			if correct != 1 {
				return fmt.Errorf("%w: %s: exactly one correct choice required, got %d", ErrInvalidDefinition, where, correct)
			}
		}
	}
	return nil
}

// QuestionMarks sums the marks of every question in the definition.
func (d TestDef) QuestionMarks() int {
	total := 0
	for _, s := range d.Sections {
		for _, q := range s.Questions {
			total += q.Marks
		}
	}
	return total
}

// Importer writes test definitions. Authoring beyond a one-shot import is
// handled elsewhere.
type Importer struct {
	db  *sql.DB
	now func() time.Time
}

func NewImporter(dbh *sql.DB) *Importer {
	return &Importer{db: dbh, now: time.Now}
}

// PutTest validates and stores def, returning the new test id.
func (im *Importer) PutTest(ctx context.Context, def TestDef) (int64, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}
	total := def.TotalMarks
	if total == 0 {
		total = def.QuestionMarks()
	}
	active := true
	if def.IsActive != nil {
		active = *def.IsActive
	}

	var testID int64
	err := db.WithTx(ctx, im.db, func(tx *sql.Tx) error {
		var passing any
		if def.PassingMarks != nil {
			passing = *def.PassingMarks
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO tests (title, total_marks, passing_marks, is_active, created_at)
			 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			def.Title, total, passing, active, im.now().Unix()).Scan(&testID); err != nil {
			return fmt.Errorf("insert test: %w", err)
		}
		for _, s := range def.Sections {
			var tl any
			if s.TimeLimit != nil {
				tl = *s.TimeLimit
			}
			var sectionID int64
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO sections (test_id, name, time_limit, ord) VALUES ($1,$2,$3,$4) RETURNING id`,
				testID, s.Name, tl, s.Order).Scan(&sectionID); err != nil {
				return fmt.Errorf("insert section: %w", err)
			}
			for _, q := range s.Questions {
				accepted, _ := json.Marshal(q.Accepted)
				if q.Accepted == nil {
					accepted = []byte("[]")
				}
				var questionID int64
				if err := tx.QueryRowContext(ctx,
					`INSERT INTO questions (section_id, text, passage, marks, ord, accepted_json)
					 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
					sectionID, q.Text, q.Passage, q.Marks, q.Order, string(accepted)).Scan(&questionID); err != nil {
					return fmt.Errorf("insert question: %w", err)
				}
				for _, c := range q.Choices {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO choices (question_id, label, text, is_correct) VALUES ($1,$2,$3,$4)`,
						questionID, c.Label, c.Text, c.IsCorrect); err != nil {
						return fmt.Errorf("insert choice: %w", err)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return testID, nil
}
