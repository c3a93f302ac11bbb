// Package docstore persists plan documents for the document service.
package docstore

import (
	"context"
	"errors"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

// ErrNotFound is returned when a user has no document with the given plan id.
var ErrNotFound = errors.New("plan not found")

// Summary is the dashboard listing form of a plan document.
type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	CourseCount int    `json:"courseCount"`
	Modified    int64  `json:"modified"`
}

// Repository defines the interface for persisting plan documents. Every
// mutation assigns the document a strictly increasing revision inside the
// same transaction; the revision is the commit order that watch
// subscribers rely on.
type Repository interface {
	// CreatePlan creates an empty plan document and returns its id. The new
	// document has a title and course count only: courses, chat_history and
	// sessionId are all absent.
	CreatePlan(ctx context.Context, userID, title string) (string, error)

	// GetPlan retrieves a plan document. Returns ErrNotFound if missing.
	GetPlan(ctx context.Context, userID, planID string) (plan.Snapshot, int64, error)

	// ListPlans returns summaries of all plans owned by a user, most
	// recently modified first.
	ListPlans(ctx context.Context, userID string) ([]Summary, error)

	// DeletePlan removes a plan document. Returns ErrNotFound if missing.
	DeletePlan(ctx context.Context, userID, planID string) error

	// UpdatePlan applies a partial update and returns the resulting
	// document and its new revision. Returns ErrNotFound if missing.
	UpdatePlan(ctx context.Context, userID, planID string, upd plan.Update) (plan.Snapshot, int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// applyUpdate merges a partial update into a document snapshot. InitCourses
// only takes effect while the courses field is still absent, which is what
// keeps the subscription's self-heal from overwriting a course list that
// landed concurrently.
func applyUpdate(snap *plan.Snapshot, upd plan.Update) {
	if upd.Title != nil {
		snap.Title = *upd.Title
	}
	if upd.Courses != nil {
		snap.Courses = *upd.Courses
		snap.HasCourses = true
	} else if upd.InitCourses && !snap.HasCourses {
		snap.Courses = []plan.CourseSection{}
		snap.HasCourses = true
	}
	switch {
	case upd.ClearChat:
		snap.Chat = nil
		snap.HasChat = false
	case upd.Chat != nil:
		snap.Chat = *upd.Chat
		snap.HasChat = true
	}
	switch {
	case upd.ClearSession:
		snap.SessionID = ""
		snap.HasSession = false
	case upd.SessionID != nil:
		snap.SessionID = *upd.SessionID
		snap.HasSession = true
	}
	snap.CourseCount = len(snap.Courses)
}
