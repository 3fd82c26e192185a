package domain

import "time"

// Message is one delivered chat message. Records are immutable once
// persisted; CreatedAt is assigned by the history store at append time.
type Message struct {
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver,omitempty"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"timestamp"`
}

// ConversationSummary marks that an open conversation exists between an
// owner identity and a peer. The pair is kept symmetrically: every send
// upserts both directions.
type ConversationSummary struct {
	Peer string `json:"username"`
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Sender    string    `gorm:"column:sender;type:varchar(64);not null;index:idx_pair"`
	Receiver  string    `gorm:"column:receiver;type:varchar(64);not null;index:idx_pair"`
	Body      string    `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (MessageModel) TableName() string { return "messages" }

// ConversationModel is the GORM model for the conversations table.
// One row per direction of a pair; the unique index makes upserts cheap.
type ConversationModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Owner     string    `gorm:"column:owner;type:varchar(64);not null;uniqueIndex:idx_owner_peer"`
	Peer      string    `gorm:"column:peer;type:varchar(64);not null;uniqueIndex:idx_owner_peer"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ConversationModel) TableName() string { return "conversations" }

// Domain converts the stored row to its wire representation.
func (m MessageModel) Domain() Message {
	return Message{
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}
