// Package plan contains core domain types for ai-dvisor course plans.
package plan

import (
	"fmt"
	"strings"
)

// Weekday tokens accepted in CourseSection.Days, Sunday first.
var weekdayIndex = map[string]int{
	"Sun": 0, "Mon": 1, "Tue": 2, "Wed": 3, "Thu": 4, "Fri": 5, "Sat": 6,
}

// WeekdayIndex returns the zero-based day-of-week index (Sunday = 0) for a
// weekday token, or -1 if the token is not a valid weekday.
func WeekdayIndex(day string) int {
	if idx, ok := weekdayIndex[day]; ok {
		return idx
	}
	return -1
}

// Instructor is one instructor of a course section.
type Instructor struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// CourseSection is one schedulable meeting pattern of a course.
// Sections are identified by SectionID; removal matches by that id only.
type CourseSection struct {
	SectionID   string       `json:"sectionId"`
	CourseCode  string       `json:"courseCode"`
	CourseName  string       `json:"courseName"`
	Type        string       `json:"type"`
	Days        []string     `json:"days"`
	StartTime   string       `json:"startTime"`
	EndTime     string       `json:"endTime"`
	Location    string       `json:"location"`
	Units       float64      `json:"units"`
	Instructors []Instructor `json:"instructors"`
}

// Validate checks the section invariants: a non-empty section id, at least
// one valid weekday, and a start clock time strictly before the end time.
func (s *CourseSection) Validate() error {
	if s.SectionID == "" {
		return fmt.Errorf("section has no id")
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("section %s has no weekdays", s.SectionID)
	}
	for _, d := range s.Days {
		if WeekdayIndex(d) < 0 {
			return fmt.Errorf("section %s has invalid weekday %q", s.SectionID, d)
		}
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return fmt.Errorf("section %s start time: %w", s.SectionID, err)
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return fmt.Errorf("section %s end time: %w", s.SectionID, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("section %s start time %s is not before end time %s", s.SectionID, s.StartTime, s.EndTime)
	}
	return nil
}

// User is the current user injected into every component that needs an
// identity. Authentication itself is out of scope; callers supply this.
type User struct {
	ID    string
	Major string
}

// FormatInstructors joins instructor names as "Last, First; Last, First"
// with no trailing separator. An empty list yields an empty string.
func FormatInstructors(instructors []Instructor) string {
	parts := make([]string, 0, len(instructors))
	for _, in := range instructors {
		parts = append(parts, in.LastName+", "+in.FirstName)
	}
	return strings.Join(parts, "; ")
}
