package attempt

import (
	"time"

	"github.com/mind-engage/mindengage-assess/internal/content"
)

// Projections are the read shapes handed to callers. The student shapes
// never carry correctness; the review shape exists only after completion.

type SectionSummary struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	TimeLimit *int   `json:"time_limit"`
	Order     int    `json:"order"`
}

func summarize(s content.Section) SectionSummary {
	return SectionSummary{ID: s.ID, Name: s.Name, TimeLimit: s.TimeLimit, Order: s.Order}
}

func summaryPtr(s content.Section, ok bool) *SectionSummary {
	if !ok {
		return nil
	}
	sum := summarize(s)
	return &sum
}

type StartedTest struct {
	AttemptID      string           `json:"attempt_id"`
	Status         Status           `json:"status"`
	CurrentSection *SectionSummary  `json:"current_section"`
	Sections       []SectionSummary `json:"sections"`
}

type StartedSection struct {
	SectionAttemptID string    `json:"section_attempt_id"`
	StartedAt        time.Time `json:"started_at"`
	TimeLimit        *int      `json:"time_limit"`
}

type StudentChoice struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

type StudentQuestion struct {
	ID               int64           `json:"id"`
	Text             string          `json:"text"`
	Passage          string          `json:"passage,omitempty"`
	Marks            int             `json:"marks"`
	Order            int             `json:"order"`
	Choices          []StudentChoice `json:"choices"`
	SelectedChoiceID *int64          `json:"selected_choice_id"`
	TextAnswer       *string         `json:"text_answer,omitempty"`
}

type SectionQuestions struct {
	Section struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		TimeLimit *int      `json:"time_limit"`
		StartedAt time.Time `json:"started_at"`
	} `json:"section"`
	Questions []StudentQuestion `json:"questions"`
}

// StudentProjection renders a section for a student taking it.
func StudentProjection(sec content.Section, sa SectionAttempt, answers map[int64]Answer) SectionQuestions {
	var out SectionQuestions
	out.Section.ID = sec.ID
	out.Section.Name = sec.Name
	out.Section.TimeLimit = sec.TimeLimit
	out.Section.StartedAt = sa.StartedAt
	out.Questions = make([]StudentQuestion, 0, len(sec.Questions))
	for _, q := range sec.Questions {
		sq := StudentQuestion{
			ID: q.ID, Text: q.Text, Passage: q.Passage, Marks: q.Marks, Order: q.Order,
			Choices: make([]StudentChoice, 0, len(q.Choices)),
		}
		for _, c := range q.Choices {
			sq.Choices = append(sq.Choices, StudentChoice{ID: c.ID, Label: c.Label, Text: c.Text})
		}
		if a, ok := answers[q.ID]; ok {
			sq.SelectedChoiceID = a.SelectedChoiceID
			sq.TextAnswer = a.TextAnswer
		}
		out.Questions = append(out.Questions, sq)
	}
	return out
}

type SectionResult struct {
	SectionID  int64   `json:"section_id"`
	Name       string  `json:"section_name"`
	Status     Status  `json:"status"`
	Score      int     `json:"score"`
	TotalMarks int     `json:"total_marks"`
	Percentage float64 `json:"percentage"`
	TimeTaken  int     `json:"time_taken"`
}

type Results struct {
	AttemptID      string          `json:"attempt_id"`
	StudentID      string          `json:"student_id"`
	TestTitle      string          `json:"test_title"`
	Status         Status          `json:"status"`
	TotalScore     int             `json:"total_score"`
	TotalMarks     int             `json:"total_marks"`
	Percentage     float64         `json:"percentage"`
	CompletedAt    *time.Time      `json:"completed_at"`
	SectionResults []SectionResult `json:"section_results"`
	Passed         *bool           `json:"passed"`
}

// ResultsProjection reports every section attempt of a finished attempt in
// section order.
func ResultsProjection(t content.Test, a Attempt, sas []SectionAttempt) Results {
	r := Results{
		AttemptID:      a.ID,
		StudentID:      a.StudentID,
		TestTitle:      t.Title,
		Status:         a.Status,
		TotalScore:     a.TotalScore,
		TotalMarks:     a.TotalMarks,
		Percentage:     a.Percentage,
		CompletedAt:    a.CompletedAt,
		Passed:         Passed(a.TotalScore, t.PassingMarks),
		SectionResults: []SectionResult{},
	}
	bySection := make(map[int64]SectionAttempt, len(sas))
	for _, sa := range sas {
		bySection[sa.SectionID] = sa
	}
	for _, sec := range OrderedSections(t) {
		sa, ok := bySection[sec.ID]
		if !ok {
			continue
		}
		r.SectionResults = append(r.SectionResults, SectionResult{
			SectionID:  sec.ID,
			Name:       sec.Name,
			Status:     sa.Status,
			Score:      sa.Score,
			TotalMarks: sa.TotalMarks,
			Percentage: Percentage(sa.Score, sa.TotalMarks),
			TimeTaken:  sa.TimeTaken,
		})
	}
	return r
}

type ReviewChoice struct {
	ID        int64  `json:"id"`
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type ReviewQuestion struct {
	ID              int64          `json:"id"`
	Text            string         `json:"text"`
	Passage         string         `json:"passage,omitempty"`
	Marks           int            `json:"marks"`
	Choices         []ReviewChoice `json:"choices"`
	AcceptedAnswers []string       `json:"accepted_answers,omitempty"`
	StudentChoiceID *int64         `json:"student_choice_id"`
	TextAnswer      *string        `json:"text_answer,omitempty"`
	CorrectChoiceID *int64         `json:"correct_choice_id"`
	IsCorrect       bool           `json:"is_correct"`
	MarksEarned     int            `json:"marks_earned"`
}

type ReviewSection struct {
	ID         int64            `json:"id"`
	Name       string           `json:"name"`
	Score      int              `json:"score"`
	TotalMarks int              `json:"total_marks"`
	Questions  []ReviewQuestion `json:"questions"`
}

type Review struct {
	AttemptID  string          `json:"attempt_id"`
	TestTitle  string          `json:"test_title"`
	TotalScore int             `json:"total_score"`
	TotalMarks int             `json:"total_marks"`
	Percentage float64         `json:"percentage"`
	Passed     *bool           `json:"passed"`
	Sections   []ReviewSection `json:"sections"`
}

// ReviewProjection walks every question of the test. Unanswered questions
// report a nil selection and earn nothing.
func ReviewProjection(t content.Test, a Attempt, sas []SectionAttempt, answers map[int64]Answer) Review {
	rv := Review{
		AttemptID:  a.ID,
		TestTitle:  t.Title,
		TotalScore: a.TotalScore,
		TotalMarks: a.TotalMarks,
		Percentage: a.Percentage,
		Passed:     Passed(a.TotalScore, t.PassingMarks),
		Sections:   make([]ReviewSection, 0, len(t.Sections)),
	}
	bySection := make(map[int64]SectionAttempt, len(sas))
	for _, sa := range sas {
		bySection[sa.SectionID] = sa
	}
	for _, sec := range OrderedSections(t) {
		rs := ReviewSection{
			ID:         sec.ID,
			Name:       sec.Name,
			TotalMarks: sec.TotalMarks(),
			Questions:  make([]ReviewQuestion, 0, len(sec.Questions)),
		}
		if sa, ok := bySection[sec.ID]; ok {
			rs.Score = sa.Score
			rs.TotalMarks = sa.TotalMarks
		}
		for _, q := range sec.Questions {
			rq := ReviewQuestion{
				ID: q.ID, Text: q.Text, Passage: q.Passage, Marks: q.Marks,
				Choices:         make([]ReviewChoice, 0, len(q.Choices)),
				AcceptedAnswers: q.Accepted,
			}
			for _, c := range q.Choices {
				rq.Choices = append(rq.Choices, ReviewChoice{ID: c.ID, Label: c.Label, Text: c.Text, IsCorrect: c.IsCorrect})
			}
			if c, ok := q.CorrectChoice(); ok {
				id := c.ID
				rq.CorrectChoiceID = &id
			}
			if ans, ok := answers[q.ID]; ok {
				rq.StudentChoiceID = ans.SelectedChoiceID
				rq.TextAnswer = ans.TextAnswer
				rq.IsCorrect = ans.IsCorrect
				if ans.IsCorrect {
					rq.MarksEarned = q.Marks
				}
			}
			rs.Questions = append(rs.Questions, rq)
		}
		rv.Sections = append(rv.Sections, rs)
	}
	return rv
}
