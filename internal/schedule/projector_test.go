package schedule

import (
	"testing"
	"time"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

func section(id string, days []string, start, end string) plan.CourseSection {
	return plan.CourseSection{
		SectionID:  id,
		CourseCode: "EE109",
		Type:       "Lecture",
		Days:       days,
		StartTime:  start,
		EndTime:    end,
	}
}

func TestWeekEventsCount(t *testing.T) {
	t.Parallel()

	sections := []plan.CourseSection{
		section("1", []string{"Mon", "Wed", "Fri"}, "09:00", "09:50"),
		section("2", []string{"Tue", "Thu"}, "10:00", "11:50"),
	}

	events, err := WeekEvents(sections, time.Now())
	if err != nil {
		t.Fatalf("WeekEvents failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for _, ev := range events {
		if !ev.End.After(ev.Start) {
			t.Errorf("event %q ends at %v, not after start %v", ev.Title, ev.End, ev.Start)
		}
	}
}

func TestWeekEventsZeroWeekdays(t *testing.T) {
	t.Parallel()

	sections := []plan.CourseSection{section("1", nil, "09:00", "09:50")}
	events, err := WeekEvents(sections, time.Now())
	if err != nil {
		t.Fatalf("WeekEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestWeekEventsTueThuScenario(t *testing.T) {
	t.Parallel()

	// Wednesday, 2025-10-08. The containing week starts Sunday 2025-10-05.
	now := time.Date(2025, time.October, 8, 12, 0, 0, 0, time.UTC)

	events, err := WeekEvents([]plan.CourseSection{
		section("31009", []string{"Tue", "Thu"}, "14:00", "15:20"),
	}, now)
	if err != nil {
		t.Fatalf("WeekEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	wantDays := []time.Weekday{time.Tuesday, time.Thursday}
	wantDates := []int{7, 9}
	for i, ev := range events {
		if ev.Title != "EE109: Lecture" {
			t.Errorf("event title = %q, want %q", ev.Title, "EE109: Lecture")
		}
		if ev.Start.Weekday() != wantDays[i] {
			t.Errorf("event %d on %v, want %v", i, ev.Start.Weekday(), wantDays[i])
		}
		if ev.Start.Day() != wantDates[i] {
			t.Errorf("event %d on day %d, want %d", i, ev.Start.Day(), wantDates[i])
		}
		if ev.Start.Hour() != 14 || ev.Start.Minute() != 0 {
			t.Errorf("event %d starts at %v, want 14:00", i, ev.Start)
		}
		if got := ev.End.Sub(ev.Start); got != 80*time.Minute {
			t.Errorf("event %d spans %v, want 80m", i, got)
		}
	}
}

func TestWeekEventsDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.October, 8, 12, 0, 0, 0, time.UTC)
	sections := []plan.CourseSection{section("1", []string{"Mon"}, "08:00", "08:50")}

	a, err := WeekEvents(sections, now)
	if err != nil {
		t.Fatalf("WeekEvents failed: %v", err)
	}
	b, err := WeekEvents(sections, now)
	if err != nil {
		t.Fatalf("WeekEvents failed: %v", err)
	}
	if !a[0].Start.Equal(b[0].Start) || !a[0].End.Equal(b[0].End) {
		t.Errorf("projection not deterministic: %v vs %v", a[0], b[0])
	}
}

func TestWeekEventsInvalidClock(t *testing.T) {
	t.Parallel()

	_, err := WeekEvents([]plan.CourseSection{
		section("1", []string{"Mon"}, "9am", "10am"),
	}, time.Now())
	if err == nil {
		t.Fatal("expected error for malformed clock time")
	}
}
