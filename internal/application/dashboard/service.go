package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-restaurant-api/internal/application/watermark"
	"github.com/go-restaurant-api/internal/domain"
)

// Service answers the admin dashboard's "what is new" questions.
type Service interface {
	UnseenCounts(ctx context.Context) (map[domain.Category]int64, error)
	MarkSeen(ctx context.Context, section string) (domain.Category, time.Time, error)
}

type activityCounter interface {
	CountSince(ctx context.Context, c domain.Category, since time.Time) (int64, error)
}

type notifier interface {
	Push(msg domain.OutboundMessage) error
}

// SeenPayload tells the other admin consoles to clear a section's badge.
type SeenPayload struct {
	Section domain.Category `json:"section"`
	SeenAt  time.Time       `json:"seen_at"`
}

type service struct {
	tracker  watermark.Tracker
	activity activityCounter
	notifier notifier
}

// NewService builds the dashboard service. notifier may be nil.
func NewService(tracker watermark.Tracker, activity activityCounter, notifier notifier) Service {
	return &service{tracker: tracker, activity: activity, notifier: notifier}
}

// UnseenCounts counts, per category, the events newer than its watermark.
func (s *service) UnseenCounts(ctx context.Context) (map[domain.Category]int64, error) {
	w, err := s.tracker.All(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.Category]int64, len(domain.Categories))
	for _, c := range domain.Categories {
		n, err := s.activity.CountSince(ctx, c, w.SeenAt(c))
		if err != nil {
			return nil, fmt.Errorf("count unseen %s: %w", c, err)
		}
		counts[c] = n
	}
	return counts, nil
}

func (s *service) MarkSeen(ctx context.Context, section string) (domain.Category, time.Time, error) {
	c, err := domain.ParseCategory(section)
	if err != nil {
		return "", time.Time{}, err
	}
	at, err := s.tracker.MarkSeen(ctx, c)
	if err != nil {
		return "", time.Time{}, err
	}
	if s.notifier != nil {
		err := s.notifier.Push(domain.OutboundMessage{
			To:      domain.ToGroup(domain.GroupAdmins),
			Event:   domain.EventDashboardSeen,
			Payload: SeenPayload{Section: c, SeenAt: at},
		})
		if err != nil {
			slog.Debug("dashboard seen broadcast not delivered", "section", c, "err", err)
		}
	}
	return c, at, nil
}
