// Package model holds the GORM row types for the four tables spec.md §4.3
// names. Field tags fix column names/types/indices to the wire contract;
// application code never depends on GORM's default naming.
package model

// Room maps to the `rooms` table: id serial pk, name text unique not null.
type Room struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;uniqueIndex;not null"`
}

func (Room) TableName() string { return "rooms" }

// Message maps to the `messages` table.
type Message struct {
	ID        string       `gorm:"column:id;primaryKey"`
	RoomID    int64        `gorm:"column:room_id;index;not null"`
	Timestamp int64        `gorm:"column:timestamp;index;not null"`
	Sender    string       `gorm:"column:sender;not null"`
	Content   string       `gorm:"column:content"`
	PublicKey string       `gorm:"column:public_key"`
	Signature string       `gorm:"column:signature"`
	State     string       `gorm:"column:state"`
	Attachments []Attachment `gorm:"foreignKey:MessageID;references:ID"`
}

func (Message) TableName() string { return "messages" }

// Attachment maps to the `attachments` table.
type Attachment struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	MessageID string `gorm:"column:message_id;index;not null"`
	Name      string `gorm:"column:name;not null"`
	Type      string `gorm:"column:type;not null"`
	Size      int64  `gorm:"column:size;not null"`
	Data      []byte `gorm:"column:data"`
}

func (Attachment) TableName() string { return "attachments" }

// BlockedKey maps to the `blocked_keys` table.
type BlockedKey struct {
	PubKey string `gorm:"column:pub_key;primaryKey"`
}

func (BlockedKey) TableName() string { return "blocked_keys" }
