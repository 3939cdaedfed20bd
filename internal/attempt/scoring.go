package attempt

import "github.com/mind-engage/mindengage-assess/internal/content"

// SectionScore sums the marks of questions in sec whose recorded answer is
// correct. answers must be the answers of a single section attempt.
func SectionScore(sec content.Section, answers map[int64]Answer) int {
	score := 0
	for _, q := range sec.Questions {
		if a, ok := answers[q.ID]; ok && a.IsCorrect {
			score += q.Marks
		}
	}
	return score
}

// TotalScore sums section attempt scores, including sections never
// explicitly completed.
func TotalScore(sas []SectionAttempt) int {
	total := 0
	for _, sa := range sas {
		total += sa.Score
	}
	return total
}

func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score) / float64(total) * 100
}

// Passed is nil when the test has no passing mark.
func Passed(score int, passing *int) *bool {
	if passing == nil {
		return nil
	}
	ok := score >= *passing
	return &ok
}
