package attempt

import (
	"cmp"
	"slices"

	"github.com/mind-engage/mindengage-assess/internal/content"
)

// Sections are totally ordered by Order, then by ID. The ID tie-break keeps
// navigation deterministic when authors reuse an order value.
func compareSections(a, b content.Section) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// OrderedSections returns a sorted copy of the test's sections.
func OrderedSections(t content.Test) []content.Section {
	out := slices.Clone(t.Sections)
	slices.SortFunc(out, compareSections)
	return out
}

// FirstSection returns the minimal section, or false for a test without sections.
func FirstSection(t content.Test) (content.Section, bool) {
	if len(t.Sections) == 0 {
		return content.Section{}, false
	}
	return slices.MinFunc(t.Sections, compareSections), true
}

// NextSection returns the minimal section strictly after sectionID, or false
// when sectionID is the last one (or not part of the test).
func NextSection(t content.Test, sectionID int64) (content.Section, bool) {
	cur, ok := t.Section(sectionID)
	if !ok {
		return content.Section{}, false
	}
	var (
		next  content.Section
		found bool
	)
	for _, s := range t.Sections {
		if compareSections(s, cur) <= 0 {
			continue
		}
		if !found || compareSections(s, next) < 0 {
			next, found = s, true
		}
	}
	return next, found
}
