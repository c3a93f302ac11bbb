// Package schedule derives concrete calendar-event instants from recurring
// weekly course-section meeting patterns.
package schedule

import (
	"fmt"
	"time"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

// Event is one concrete calendar interval for a section meeting. Events are
// derived on every read and never persisted or mutated.
type Event struct {
	Title   string
	Start   time.Time
	End     time.Time
	Section plan.CourseSection
}

// WeekEvents projects course sections onto the calendar week containing
// now. For each section, each weekday token produces one event anchored to
// that weekday of the current week (Sunday-based) combined with the
// section's start and end clock times, in now's location. A section with
// zero weekdays contributes zero events. The projection is pure and
// deterministic given (sections, now).
//
// Malformed "HH:MM" clock strings are a caller contract violation and are
// reported as an error rather than silently repaired.
func WeekEvents(sections []plan.CourseSection, now time.Time) ([]Event, error) {
	var events []Event
	weekStart := startOfWeek(now)
	for _, section := range sections {
		start, err := plan.ParseClock(section.StartTime)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", section.SectionID, err)
		}
		end, err := plan.ParseClock(section.EndTime)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", section.SectionID, err)
		}
		for _, day := range section.Days {
			idx := plan.WeekdayIndex(day)
			if idx < 0 {
				return nil, fmt.Errorf("section %s: invalid weekday %q", section.SectionID, day)
			}
			date := weekStart.AddDate(0, 0, idx)
			events = append(events, Event{
				Title:   section.CourseCode + ": " + section.Type,
				Start:   at(date, start),
				End:     at(date, end),
				Section: section,
			})
		}
	}
	return events, nil
}

// startOfWeek returns midnight of the Sunday beginning now's week, in
// now's location.
func startOfWeek(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, -int(now.Weekday()))
}

func at(date time.Time, c plan.Clock) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, date.Location())
}
