package attempt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/db"
)

// Store persists attempts and section attempts. Every method takes an
// optional tx; a nil tx runs the statement directly on the pool.
type Store struct {
	db *sql.DB
}

func NewStore(dbh *sql.DB) *Store {
	return &Store{db: dbh}
}

func (s *Store) q(tx *sql.Tx) db.Querier {
	if tx != nil {
		return tx
	}
	return s.db
}

const attemptCols = `id, test_id, student_id, status, current_section_id, total_score, total_marks, percentage, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (Attempt, error) {
	var (
		a         Attempt
		current   sql.NullInt64
		started   int64
		completed sql.NullInt64
		status    string
	)
	if err := r.Scan(&a.ID, &a.TestID, &a.StudentID, &status, &current,
		&a.TotalScore, &a.TotalMarks, &a.Percentage, &started, &completed); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	if current.Valid {
		id := current.Int64
		a.CurrentSectionID = &id
	}
	a.StartedAt = time.Unix(started, 0).UTC()
	a.CompletedAt = unixPtr(completed)
	return a, nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// InsertAttemptIfAbsent creates a if no attempt exists for (test, student)
// and reports whether this call created it. The unique constraint decides
// the winner between concurrent callers.
func (s *Store) InsertAttemptIfAbsent(ctx context.Context, tx *sql.Tx, a Attempt) (bool, error) {
	res, err := s.q(tx).ExecContext(ctx,
		`INSERT INTO attempts (id, test_id, student_id, status, current_section_id, total_score, total_marks, percentage, started_at)
		 VALUES ($1,$2,$3,$4,$5,0,$6,0,$7)
		 ON CONFLICT (test_id, student_id) DO NOTHING`,
		a.ID, a.TestID, a.StudentID, string(a.Status), nullInt64(a.CurrentSectionID), a.TotalMarks, a.StartedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("attempt: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) GetAttempt(ctx context.Context, tx *sql.Tx, testID int64, studentID string) (Attempt, error) {
	a, err := scanAttempt(s.q(tx).QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE test_id=$1 AND student_id=$2`, testID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errorf(KindNotFound, "no attempt for test %d", testID)
	}
	return a, err
}

func (s *Store) GetAttemptByID(ctx context.Context, tx *sql.Tx, id string) (Attempt, error) {
	a, err := scanAttempt(s.q(tx).QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errorf(KindNotFound, "attempt %s not found", id)
	}
	return a, err
}

// LockAttempt takes the row lock on an in-progress attempt. It reports
// false when the attempt is no longer in progress.
func (s *Store) LockAttempt(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var got string
	err := tx.QueryRowContext(ctx,
		`UPDATE attempts SET status=status WHERE id=$1 AND status=$2 RETURNING id`,
		id, string(StatusInProgress)).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("attempt: lock %s: %w", id, err)
	}
	return true, nil
}

func (s *Store) SetCurrentSection(ctx context.Context, tx *sql.Tx, attemptID string, sectionID *int64) error {
	_, err := s.q(tx).ExecContext(ctx,
		`UPDATE attempts SET current_section_id=$1 WHERE id=$2`, nullInt64(sectionID), attemptID)
	return err
}

// FinishAttempt moves an in-progress attempt to status and reports whether
// this call made the transition.
func (s *Store) FinishAttempt(ctx context.Context, tx *sql.Tx, id string, status Status, score int, pct float64, at time.Time) (bool, error) {
	res, err := s.q(tx).ExecContext(ctx,
		`UPDATE attempts
		    SET status=$1, total_score=$2, percentage=$3, completed_at=$4, current_section_id=NULL
		  WHERE id=$5 AND status=$6`,
		string(status), score, pct, at.Unix(), id, string(StatusInProgress))
	if err != nil {
		return false, fmt.Errorf("attempt: finish %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.TestID != 0 {
		add("test_id=$%d", f.TestID)
	}
	if f.StudentID != "" {
		add("student_id=$%d", f.StudentID)
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}
	query := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY started_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const sectionAttemptCols = `id, attempt_id, section_id, status, started_at, completed_at, time_taken, score, total_marks`

func scanSectionAttempt(r rowScanner) (SectionAttempt, error) {
	var (
		sa        SectionAttempt
		status    string
		started   int64
		completed sql.NullInt64
	)
	if err := r.Scan(&sa.ID, &sa.AttemptID, &sa.SectionID, &status, &started, &completed,
		&sa.TimeTaken, &sa.Score, &sa.TotalMarks); err != nil {
		return SectionAttempt{}, err
	}
	sa.Status = Status(status)
	sa.StartedAt = time.Unix(started, 0).UTC()
	sa.CompletedAt = unixPtr(completed)
	return sa, nil
}

func (s *Store) InsertSectionAttemptIfAbsent(ctx context.Context, tx *sql.Tx, sa SectionAttempt) (bool, error) {
	res, err := s.q(tx).ExecContext(ctx,
		`INSERT INTO section_attempts (id, attempt_id, section_id, status, started_at, time_taken, score, total_marks)
		 VALUES ($1,$2,$3,$4,$5,0,0,$6)
		 ON CONFLICT (attempt_id, section_id) DO NOTHING`,
		sa.ID, sa.AttemptID, sa.SectionID, string(sa.Status), sa.StartedAt.Unix(), sa.TotalMarks)
	if err != nil {
		return false, fmt.Errorf("attempt: insert section attempt: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) GetSectionAttempt(ctx context.Context, tx *sql.Tx, attemptID string, sectionID int64) (SectionAttempt, error) {
	sa, err := scanSectionAttempt(s.q(tx).QueryRowContext(ctx,
		`SELECT `+sectionAttemptCols+` FROM section_attempts WHERE attempt_id=$1 AND section_id=$2`,
		attemptID, sectionID))
	if errors.Is(err, sql.ErrNoRows) {
		return SectionAttempt{}, errorf(KindNotFound, "section %d not started", sectionID)
	}
	return sa, err
}

func (s *Store) ListSectionAttempts(ctx context.Context, tx *sql.Tx, attemptID string) ([]SectionAttempt, error) {
	rows, err := s.q(tx).QueryContext(ctx,
		`SELECT `+sectionAttemptCols+` FROM section_attempts WHERE attempt_id=$1 ORDER BY started_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SectionAttempt
	for rows.Next() {
		sa, err := scanSectionAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

// LockSectionAttempt takes the row lock on an in-progress section attempt.
// Answer writes and section completion both go through it, so a write can
// never land on a section after it was scored.
func (s *Store) LockSectionAttempt(ctx context.Context, tx *sql.Tx, attemptID string, sectionID int64) (SectionAttempt, bool, error) {
	sa, err := scanSectionAttempt(tx.QueryRowContext(ctx,
		`UPDATE section_attempts SET status=status
		  WHERE attempt_id=$1 AND section_id=$2 AND status=$3
		  RETURNING `+sectionAttemptCols,
		attemptID, sectionID, string(StatusInProgress)))
	if errors.Is(err, sql.ErrNoRows) {
		return SectionAttempt{}, false, nil
	}
	if err != nil {
		return SectionAttempt{}, false, fmt.Errorf("attempt: lock section %d: %w", sectionID, err)
	}
	return sa, true, nil
}

func (s *Store) FinishSectionAttempt(ctx context.Context, tx *sql.Tx, id string, score int, at time.Time, timeTaken int) (bool, error) {
	res, err := s.q(tx).ExecContext(ctx,
		`UPDATE section_attempts
		    SET status=$1, score=$2, completed_at=$3, time_taken=$4
		  WHERE id=$5 AND status=$6`,
		string(StatusCompleted), score, at.Unix(), timeTaken, id, string(StatusInProgress))
	if err != nil {
		return false, fmt.Errorf("attempt: finish section attempt %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
