package plan

// Sender identifies who produced a chat message.
type Sender string

const (
	// SenderUser marks a message typed by the student.
	SenderUser Sender = "user"
	// SenderAgent marks a message produced by the planning agent.
	SenderAgent Sender = "agent"
)

// Message is one entry in a plan's chat transcript. Messages are immutable
// once appended. ID is timestamp-derived and strictly increasing within a
// transcript; it is the sole ordering key and the idempotency token.
type Message struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}
