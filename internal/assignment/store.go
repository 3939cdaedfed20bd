// Package assignment records which students may take which tests.
package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrTestNotFound = errors.New("assignment: test not found")

type Assignment struct {
	TestID     int64     `json:"test_id"`
	StudentID  string    `json:"student_id"`
	IsActive   bool      `json:"is_active"`
	AssignedAt time.Time `json:"assigned_at"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(dbh *sql.DB) *Store {
	return &Store{db: dbh, now: time.Now}
}

// Assign (re)activates the assignment of testID to each student.
func (s *Store) Assign(ctx context.Context, testID int64, studentIDs ...string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tests WHERE id=$1`, testID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTestNotFound
	}
	if err != nil {
		return err
	}
	at := s.now().Unix()
	for _, sid := range studentIDs {
		if sid == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO test_assignments (test_id, student_id, is_active, assigned_at)
			 VALUES ($1,$2,$3,$4)
			 ON CONFLICT (test_id, student_id) DO UPDATE SET is_active=EXCLUDED.is_active`,
			testID, sid, true, at); err != nil {
			return fmt.Errorf("assignment: assign %s: %w", sid, err)
		}
	}
	return nil
}

// Unassign deactivates the assignment. Existing attempts are untouched.
func (s *Store) Unassign(ctx context.Context, testID int64, studentID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE test_assignments SET is_active=$1 WHERE test_id=$2 AND student_id=$3`,
		false, testID, studentID)
	return err
}

func (s *Store) IsAssigned(ctx context.Context, testID int64, studentID string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_active FROM test_assignments WHERE test_id=$1 AND student_id=$2`,
		testID, studentID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return active, err
}

// ListAssigned returns the ids of tests actively assigned to the student,
// most recently assigned first.
func (s *Store) ListAssigned(ctx context.Context, studentID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT test_id FROM test_assignments
		  WHERE student_id=$1 AND is_active=$2
		  ORDER BY assigned_at DESC, test_id DESC`, studentID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ForTest lists every assignment of a test, inactive ones included.
func (s *Store) ForTest(ctx context.Context, testID int64) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT test_id, student_id, is_active, assigned_at FROM test_assignments
		  WHERE test_id=$1 ORDER BY student_id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var (
			a  Assignment
			at int64
		)
		if err := rows.Scan(&a.TestID, &a.StudentID, &a.IsActive, &at); err != nil {
			return nil, err
		}
		a.AssignedAt = time.Unix(at, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
