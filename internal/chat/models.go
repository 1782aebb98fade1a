package chat

import "time"

type Session struct {
	SessionID uint64     `gorm:"column:session_id;primaryKey;autoIncrement" json:"session_id"`
	UID       uint64     `gorm:"column:uid;index;not null" json:"-"`
	LLMID     *uint64    `gorm:"column:llm_id;index" json:"-"`
	CreateAt  time.Time  `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt  time.Time  `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
	DeleteAt  *time.Time `gorm:"column:delete_at" json:"-"`

	Messages []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Session) TableName() string { return "sessions" }

// Message rows are append-only; Payload holds the serialized typed
// role/content pair (see codec.go) and is never mutated.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"message_id"`
	SessionID uint64    `gorm:"column:session_id;index;not null" json:"-"`
	ChatAt    time.Time `gorm:"column:chat_at;autoCreateTime" json:"chat_at"`
	Payload   string    `gorm:"column:message;type:text;not null" json:"-"`
}

func (Message) TableName() string { return "messages" }
