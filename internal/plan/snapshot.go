package plan

import "encoding/json"

// Snapshot is the full decoded state of a plan's remote document at one
// point in time. Field absence is meaningful and survives a round trip:
// a document without chat_history has never started a chat, which is
// distinct from a present-and-empty transcript; a document without
// sessionId has no bound agent session.
type Snapshot struct {
	Title       string
	CourseCount int
	Modified    int64 // unix milliseconds, set by the document service

	Courses    []CourseSection
	HasCourses bool

	Chat    []Message
	HasChat bool

	SessionID  string
	HasSession bool
}

// snapshotJSON is the wire form; pointer fields model field absence.
type snapshotJSON struct {
	Title       string           `json:"title"`
	CourseCount int              `json:"courseCount"`
	Modified    int64            `json:"modified,omitempty"`
	Courses     *[]CourseSection `json:"courses,omitempty"`
	Chat        *[]Message       `json:"chat_history,omitempty"`
	SessionID   *string          `json:"sessionId,omitempty"`
}

// MarshalJSON emits the document wire form, omitting absent fields.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		Title:       s.Title,
		CourseCount: s.CourseCount,
		Modified:    s.Modified,
	}
	if s.HasCourses {
		courses := s.Courses
		if courses == nil {
			courses = []CourseSection{}
		}
		out.Courses = &courses
	}
	if s.HasChat {
		chat := s.Chat
		if chat == nil {
			chat = []Message{}
		}
		out.Chat = &chat
	}
	if s.HasSession {
		id := s.SessionID
		out.SessionID = &id
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the document wire form, recording which optional
// fields were present.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Snapshot{
		Title:       in.Title,
		CourseCount: in.CourseCount,
		Modified:    in.Modified,
	}
	if in.Courses != nil {
		s.Courses = *in.Courses
		s.HasCourses = true
	}
	if in.Chat != nil {
		s.Chat = *in.Chat
		s.HasChat = true
	}
	if in.SessionID != nil {
		s.SessionID = *in.SessionID
		s.HasSession = true
	}
	return nil
}

// Clone returns a deep copy so callers can hand snapshots across goroutine
// boundaries without sharing slices.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Courses != nil {
		out.Courses = make([]CourseSection, len(s.Courses))
		copy(out.Courses, s.Courses)
	}
	if s.Chat != nil {
		out.Chat = make([]Message, len(s.Chat))
		copy(out.Chat, s.Chat)
	}
	return out
}

// Update is a partial write against a plan document. Nil pointer fields
// are left untouched. ClearChat removes chat_history entirely (the
// "never started" state, not an empty list); ClearSession unbinds the
// agent session. InitCourses initializes courses to an empty list only if
// the stored document still lacks the field, which is the guard that keeps
// the subscription's self-heal from clobbering a concurrent write.
type Update struct {
	Title        *string          `json:"title,omitempty"`
	Courses      *[]CourseSection `json:"courses,omitempty"`
	Chat         *[]Message       `json:"chat_history,omitempty"`
	SessionID    *string          `json:"sessionId,omitempty"`
	ClearChat    bool             `json:"clearChatHistory,omitempty"`
	ClearSession bool             `json:"clearSessionId,omitempty"`
	InitCourses  bool             `json:"initCourses,omitempty"`
}

// IsZero reports whether the update would change nothing.
func (u Update) IsZero() bool {
	return u.Title == nil && u.Courses == nil && u.Chat == nil &&
		u.SessionID == nil && !u.ClearChat && !u.ClearSession && !u.InitCourses
}
