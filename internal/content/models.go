package content

// Test is a read-only snapshot of an assessment. Sections are ordered by
// (Order, ID) and questions inside a section the same way.
type Test struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	TotalMarks   int       `json:"total_marks"`
	PassingMarks *int      `json:"passing_marks,omitempty"`
	IsActive     bool      `json:"is_active"`
	Sections     []Section `json:"sections"`
}

type Section struct {
	ID        int64      `json:"id"`
	TestID    int64      `json:"test_id"`
	Name      string     `json:"name"`
	TimeLimit *int       `json:"time_limit,omitempty"` // minutes
	Order     int        `json:"order"`
	Questions []Question `json:"questions"`
}

type Question struct {
	ID        int64    `json:"id"`
	SectionID int64    `json:"section_id"`
	Text      string   `json:"text"`
	Passage   string   `json:"passage,omitempty"`
	Marks     int      `json:"marks"`
	Order     int      `json:"order"`
	Choices   []Choice `json:"choices,omitempty"`
	Accepted  []string `json:"accepted_answers,omitempty"` // free-form questions only
}

type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Label      string `json:"label"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// FreeForm reports whether the question is answered with text instead of a choice.
func (q Question) FreeForm() bool { return len(q.Choices) == 0 }

func (q Question) Choice(id int64) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// CorrectChoice returns the first choice flagged correct.
func (q Question) CorrectChoice() (Choice, bool) {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return c, true
		}
	}
	return Choice{}, false
}

func (s Section) Question(id int64) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// TotalMarks is the sum of the marks of every question in the section.
func (s Section) TotalMarks() int {
	total := 0
	for _, q := range s.Questions {
		total += q.Marks
	}
	return total
}

func (t Test) Section(id int64) (Section, bool) {
	for _, s := range t.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// FindQuestion locates a question anywhere in the test along with its section.
func (t Test) FindQuestion(id int64) (Section, Question, bool) {
	for _, s := range t.Sections {
		if q, ok := s.Question(id); ok {
			return s, q, true
		}
	}
	return Section{}, Question{}, false
}

func (t Test) QuestionCount() int {
	n := 0
	for _, s := range t.Sections {
		n += len(s.Questions)
	}
	return n
}
