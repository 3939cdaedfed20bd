package attempt

import "time"

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusTimeout    Status = "timeout"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusTimeout
}

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Caller is the authenticated identity on whose behalf an operation runs.
type Caller struct {
	ID   string
	Role string
}

func (c Caller) IsStaff() bool { return c.Role == RoleTeacher || c.Role == RoleAdmin }

type Attempt struct {
	ID               string     `json:"id"`
	TestID           int64      `json:"test_id"`
	StudentID        string     `json:"student_id"`
	Status           Status     `json:"status"`
	CurrentSectionID *int64     `json:"current_section_id"`
	TotalScore       int        `json:"total_score"`
	TotalMarks       int        `json:"total_marks"`
	Percentage       float64    `json:"percentage"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type SectionAttempt struct {
	ID          string     `json:"id"`
	AttemptID   string     `json:"attempt_id"`
	SectionID   int64      `json:"section_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	TimeTaken   int        `json:"time_taken"` // seconds
	Score       int        `json:"score"`
	TotalMarks  int        `json:"total_marks"`
}

type Answer struct {
	ID               string    `json:"id"`
	AttemptID        string    `json:"attempt_id"`
	SectionAttemptID string    `json:"section_attempt_id"`
	QuestionID       int64     `json:"question_id"`
	SelectedChoiceID *int64    `json:"selected_choice_id"`
	TextAnswer       *string   `json:"text_answer,omitempty"`
	IsCorrect        bool      `json:"is_correct"`
	AnsweredAt       time.Time `json:"answered_at"`
}

// Selection is what the student picked: a choice id, a text value, or
// neither to clear a previous answer.
type Selection struct {
	ChoiceID   *int64  `json:"choice_id,omitempty"`
	TextAnswer *string `json:"text_answer,omitempty"`
}

type BulkItem struct {
	QuestionID int64 `json:"question_id"`
	Selection
}

type AttemptFilter struct {
	TestID    int64
	StudentID string
	Status    Status
	Limit     int
	Offset    int
}
