package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/mind-engage/mindengage-assess/internal/assignment"
	"github.com/mind-engage/mindengage-assess/internal/attempt"
	"github.com/mind-engage/mindengage-assess/internal/eventlog"
)

var heading = color.New(color.FgYellow)

func pct(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + "%" }

func passLabel(p *bool) string {
	switch {
	case p == nil:
		return "-"
	case *p:
		return "PASS"
	default:
		return "FAIL"
	}
}

func idOrDash(p *int64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatInt(*p, 10)
}

func renderAssignments(w io.Writer, list []assignment.Assignment) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Test", "Student", "Active", "Assigned At"})
	for _, a := range list {
		table.Append([]string{
			strconv.FormatInt(a.TestID, 10), a.StudentID, strconv.FormatBool(a.IsActive),
			a.AssignedAt.Format(time.RFC3339),
		})
	}
	table.Render()
}

func renderResults(w io.Writer, r attempt.Results) {
	heading.Fprintf(w, "\n%s: %d/%d (%s) %s\n", r.TestTitle, r.TotalScore, r.TotalMarks, pct(r.Percentage), passLabel(r.Passed))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Section", "Status", "Score", "Marks", "Percent", "Time (s)"})
	for _, s := range r.SectionResults {
		table.Append([]string{
			s.Name, string(s.Status), strconv.Itoa(s.Score), strconv.Itoa(s.TotalMarks),
			pct(s.Percentage), strconv.Itoa(s.TimeTaken),
		})
	}
	table.Render()
}

func renderReview(w io.Writer, rv attempt.Review) {
	heading.Fprintf(w, "\n%s review: %d/%d %s\n", rv.TestTitle, rv.TotalScore, rv.TotalMarks, passLabel(rv.Passed))
	for _, s := range rv.Sections {
		fmt.Fprintf(w, "\n%s (%d/%d)\n", s.Name, s.Score, s.TotalMarks)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Question", "Selected", "Correct", "Result", "Marks"})
		for _, q := range s.Questions {
			selected := idOrDash(q.StudentChoiceID)
			if q.TextAnswer != nil {
				selected = strconv.Quote(*q.TextAnswer)
			}
			result := "wrong"
			if q.IsCorrect {
				result = "right"
			}
			table.Append([]string{
				strconv.FormatInt(q.ID, 10), selected, idOrDash(q.CorrectChoiceID), result,
				fmt.Sprintf("%d/%d", q.MarksEarned, q.Marks),
			})
		}
		table.Render()
	}
}

func renderAttempts(w io.Writer, list []attempt.Attempt) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Attempt", "Test", "Student", "Status", "Score", "Percent", "Started"})
	for _, a := range list {
		table.Append([]string{
			a.ID, strconv.FormatInt(a.TestID, 10), a.StudentID, string(a.Status),
			fmt.Sprintf("%d/%d", a.TotalScore, a.TotalMarks), pct(a.Percentage),
			a.StartedAt.Format(time.RFC3339),
		})
	}
	table.Render()
}

func renderEvents(w io.Writer, evs []eventlog.Event) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Seq", "Site", "Type", "Key", "Data"})
	for _, e := range evs {
		table.Append([]string{strconv.FormatInt(e.Seq, 10), e.SiteID, e.Type, e.Key, e.DataJSON})
	}
	table.Render()
}
