// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the read-only queries behind the admin
// transcript export and usage report.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/domain"
)

// UsageRow is the number of chats owned by one account.
type UsageRow struct {
	Email string `json:"email"`
	Total int64  `json:"total"`
}

// Totals counts the rows of each primary table.
type Totals struct {
	Users    int64 `json:"users"`
	Chats    int64 `json:"chats"`
	Messages int64 `json:"messages"`
}

// FeedbackTotals counts positive and negative ratings.
type FeedbackTotals struct {
	Up   int64 `json:"up"`
	Down int64 `json:"down"`
}

// ExportRow is one message of a transcript together with its chat owner.
type ExportRow struct {
	ChatID     string
	OwnerID    string
	OwnerEmail string
	Role       string
	Content    string
	CreatedAt  time.Time
}

// UsageByOwner returns owners ranked by chat count, at most limit rows.
func UsageByOwner(ctx context.Context, db *gorm.DB, limit int) ([]UsageRow, error) {
	var out []UsageRow
	err := db.WithContext(ctx).
		Table("chats").
		Select("users.email AS email, COUNT(chats.id) AS total").
		Joins("JOIN users ON users.id = chats.owner_id").
		Group("users.email").
		Order("total DESC, users.email ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// CountTotals counts users, chats and messages.
func CountTotals(ctx context.Context, db *gorm.DB) (Totals, error) {
	var t Totals
	q := db.WithContext(ctx)
	if err := q.Model(&domain.User{}).Count(&t.Users).Error; err != nil {
		return t, err
	}
	if err := q.Model(&domain.Chat{}).Count(&t.Chats).Error; err != nil {
		return t, err
	}
	if err := q.Model(&domain.Message{}).Count(&t.Messages).Error; err != nil {
		return t, err
	}
	return t, nil
}

// CountFeedback counts ratings by sign.
func CountFeedback(ctx context.Context, db *gorm.DB) (FeedbackTotals, error) {
	var f FeedbackTotals
	q := db.WithContext(ctx)
	if err := q.Model(&domain.Feedback{}).Where("value > 0").Count(&f.Up).Error; err != nil {
		return f, err
	}
	if err := q.Model(&domain.Feedback{}).Where("value < 0").Count(&f.Down).Error; err != nil {
		return f, err
	}
	return f, nil
}

// EachUserMessage streams the content of every user-authored message to fn.
// Iteration stops at the first error returned by fn.
func EachUserMessage(ctx context.Context, db *gorm.DB, fn func(content string) error) error {
	rows, err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("content").
		Where("role = ?", domain.AuthorUser).
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return err
		}
		if err := fn(content); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EachExportRow streams every message joined with its chat owner, grouped by
// chat and ordered by creation time within each chat.
func EachExportRow(ctx context.Context, db *gorm.DB, fn func(ExportRow) error) error {
	rows, err := db.WithContext(ctx).
		Table("messages").
		Select("chats.id AS chat_id, chats.owner_id AS owner_id, users.email AS owner_email, " +
			"messages.role AS role, messages.content AS content, messages.created_at AS created_at").
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Joins("JOIN users ON users.id = chats.owner_id").
		Order("chats.id ASC, messages.created_at ASC, messages.id ASC").
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r ExportRow
		if err := db.ScanRows(rows, &r); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}
