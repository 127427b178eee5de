// Package domain defines the persistence models for users, chats, messages,
// and feedback. These types are mapped with GORM and form the core data
// layer of the support-chat backend.
package domain

import (
	"time"
)

// Account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Message author roles.
const (
	AuthorUser      = "user"
	AuthorAssistant = "assistant"
)

// ValidAuthorRole reports whether r is one of the two message role tags.
func ValidAuthorRole(r string) bool {
	return r == AuthorUser || r == AuthorAssistant
}

// User is a registered account. Users are never deleted through the API;
// removing a row cascades to its chats and their messages.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email: login identifier, stored lowercase and unique.
//   - PasswordHash: bcrypt hash, never serialized.
//   - FirstName / LastName: optional display names.
//   - Role: "user" or "admin".
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"      gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(100);not null"`
	FirstName    string    `json:"first_name" gorm:"type:varchar(120)"`
	LastName     string    `json:"last_name"  gorm:"type:varchar(120)"`
	Role         string    `json:"role"       gorm:"type:varchar(16);not null;default:'user'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Chat is a conversation thread with exactly one owner.
//
// OwnerEmail is populated only by listing queries that join users; it is not
// a column of the chats table.
type Chat struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Title      string    `json:"title"       gorm:"type:varchar(255);not null;default:''"`
	OwnerID    string    `json:"owner_id"    gorm:"type:char(36);not null;index:idx_owner_chats,priority:1"`
	OwnerEmail string    `json:"owner_email,omitempty" gorm:"->;-:migration"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"  gorm:"index:idx_owner_chats,priority:2"`

	Owner User `json:"-" gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Message is a single append-only utterance within a chat. Assistant
// messages carry no UserID.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string    `json:"chat_id"    gorm:"type:char(36);not null;index:idx_chat_msgs,priority:1"`
	UserID    *string   `json:"user_id"    gorm:"type:char(36);index"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:chk_messages_role,role IN ('user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`

	Chat Chat  `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User *User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Feedback is a user's +1/-1 rating of an assistant message, one per
// (message, user).
type Feedback struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string    `json:"message_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_feedback_message_user"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index;uniqueIndex:ux_feedback_message_user"`
	Value     int       `json:"value"      gorm:"not null;check:chk_feedback_value,value IN (-1,1)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }
