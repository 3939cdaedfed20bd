package attempt

import "fmt"

type Kind string

const (
	KindPermissionDenied        Kind = "permission_denied"
	KindNotFound                Kind = "not_found"
	KindAlreadyCompleted        Kind = "already_completed"
	KindSectionAlreadyCompleted Kind = "section_already_completed"
	KindSectionNotActive        Kind = "section_not_active"
	KindInvalidChoice           Kind = "invalid_choice"
	KindQuestionNotInSection    Kind = "question_not_in_section"
	KindValidation              Kind = "validation_error"
	KindNotCompletedYet         Kind = "not_completed_yet"
)

// Error is a caller-facing domain error. The caller has to change the
// request; retrying it unchanged gives the same answer.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

// Is matches on Kind so errors.Is(err, ErrNotFound) holds for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrPermissionDenied        = &Error{Kind: KindPermissionDenied}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrAlreadyCompleted        = &Error{Kind: KindAlreadyCompleted}
	ErrSectionAlreadyCompleted = &Error{Kind: KindSectionAlreadyCompleted}
	ErrSectionNotActive        = &Error{Kind: KindSectionNotActive}
	ErrInvalidChoice           = &Error{Kind: KindInvalidChoice}
	ErrQuestionNotInSection    = &Error{Kind: KindQuestionNotInSection}
	ErrValidation              = &Error{Kind: KindValidation}
	ErrNotCompletedYet         = &Error{Kind: KindNotCompletedYet}
)

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// BulkItemError names the first batch item that failed validation.
type BulkItemError struct {
	Index      int
	QuestionID int64
	Err        *Error
}

func (e *BulkItemError) Error() string {
	return fmt.Sprintf("item %d (question %d): %s", e.Index, e.QuestionID, e.Err.Error())
}

func (e *BulkItemError) Unwrap() error { return e.Err }
