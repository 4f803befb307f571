package domain

// Attachment is a binary blob owned by exactly one Message (spec.md §3).
// On the wire, Data is a data URL (`data:<mime>;base64,<payload>`); the
// store decodes it for persistence and re-encodes it on read.
type Attachment struct {
	ID        int64  `json:"id,omitempty"`
	MessageID string `json:"-"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
	Data      string `json:"data,omitempty"`
}

// RecentAttachment carries the join columns AdminAPI.GetRecentAttachments
// returns: the attachment plus its parent message's room, sender, and
// timestamp (spec.md §4.3).
type RecentAttachment struct {
	Attachment
	RoomName        string `json:"roomName"`
	SenderName      string `json:"senderName"`
	SenderPublicKey string `json:"senderPublicKey"`
	Timestamp       int64  `json:"timestamp"`
}
