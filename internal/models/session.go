package models

// Session is one persisted conversation. The id is the key of the stored
// mapping and is not repeated inside the stored value.
type Session struct {
	ID       string    `json:"-"`
	Messages []Message `json:"messages"`
	Title    string    `json:"title"`
	Date     string    `json:"date"`
}

// SessionSummary is the sidebar entry for a stored session.
type SessionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	MessageCount int    `json:"message_count"`
}

// Summary returns the listing form of s.
func (s Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Title:        s.Title,
		Date:         s.Date,
		MessageCount: len(s.Messages),
	}
}

// CloneMessages copies a message list. Content values share no mutable state
// with the source because every constructor copies its input.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
