package model

import "time"

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;index" json:"document_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Role       string    `gorm:"size:16;not null;index" json:"role"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
