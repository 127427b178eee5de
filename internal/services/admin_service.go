// Package services – AdminService
//
// AdminService backs the administrator endpoints: a CSV export of every
// transcript and an aggregate usage report. Access control happens in the
// HTTP layer; these methods assume an administrator caller.
package services

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/repo"
)

// ExportHeader is the first record of every export.
var ExportHeader = []string{"chat_id", "owner_id", "owner_email", "role", "content", "created_at"}

// TopicCount is how often a first word opens a user question.
type TopicCount struct {
	Topic string `json:"term"`
	Total int64  `json:"total"`
}

// Report aggregates usage across all accounts.
type Report struct {
	Usage       []repo.UsageRow     `json:"usage"`
	Topics      []TopicCount        `json:"topics"`
	Totals      repo.Totals         `json:"totals"`
	Feedback    repo.FeedbackTotals `json:"feedback"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// AdminService implements administrator use-cases.
type AdminService struct {
	DB *gorm.DB
	// TopN bounds the usage and topics lists.
	TopN int
	Now  func() time.Time
}

// Export writes every message as CSV, grouped by chat and ordered by time
// within each chat. Rows stream straight from the database cursor.
func (s *AdminService) Export(ctx context.Context, w io.Writer) error {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Export")
	defer span.End()

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	var n int64
	err := repo.EachExportRow(ctx, s.DB, func(r repo.ExportRow) error {
		n++
		return cw.Write([]string{
			r.ChatID,
			r.OwnerID,
			r.OwnerEmail,
			r.Role,
			r.Content,
			r.CreatedAt.UTC().Format(time.RFC3339),
		})
	})
	span.SetAttributes(attribute.Int64("rows", n))
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Report computes the usage report.
func (s *AdminService) Report(ctx context.Context) (*Report, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Report")
	defer span.End()

	top := s.TopN
	if top <= 0 {
		top = 20
	}

	usage, err := repo.UsageByOwner(ctx, s.DB, top)
	if err != nil {
		return nil, err
	}
	if usage == nil {
		usage = []repo.UsageRow{}
	}

	counts := map[string]int64{}
	err = repo.EachUserMessage(ctx, s.DB, func(content string) error {
		if t := firstWord(content); t != "" {
			counts[t]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	totals, err := repo.CountTotals(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	fb, err := repo.CountFeedback(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return &Report{
		Usage:       usage,
		Topics:      topTopics(counts, top),
		Totals:      totals,
		Feedback:    fb,
		GeneratedAt: now().UTC(),
	}, nil
}

// firstWord lowercases the first whitespace-separated word of s and strips
// surrounding punctuation.
func firstWord(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return strings.TrimFunc(strings.ToLower(f[0]), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// topTopics ranks counts by total descending, then topic ascending.
func topTopics(counts map[string]int64, n int) []TopicCount {
	out := make([]TopicCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TopicCount{Topic: t, Total: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
