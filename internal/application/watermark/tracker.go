package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-restaurant-api/internal/domain"
)

// Tracker holds the per-category "last seen" instants of the admin dashboard.
type Tracker interface {
	Get(ctx context.Context, c domain.Category) (time.Time, error)
	All(ctx context.Context) (*domain.Watermark, error)
	MarkSeen(ctx context.Context, c domain.Category) (time.Time, error)
}

type watermarkStore interface {
	Get(ctx context.Context) (*domain.Watermark, error)
	Create(ctx context.Context, w *domain.Watermark) error
	SetSeen(ctx context.Context, c domain.Category, at time.Time) error
}

type tracker struct {
	repo watermarkStore
	now  func() time.Time
}

func NewTracker(repo watermarkStore, now func() time.Time) Tracker {
	if now == nil {
		now = time.Now
	}
	return &tracker{repo: repo, now: now}
}

func (t *tracker) Get(ctx context.Context, c domain.Category) (time.Time, error) {
	w, err := t.All(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return w.SeenAt(c), nil
}

// All returns the singleton, creating it with "now" in every category on first use.
func (t *tracker) All(ctx context.Context) (*domain.Watermark, error) {
	w, err := t.repo.Get(ctx)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load watermark: %w", err)
	}

	w = domain.NewWatermark("", t.now().UTC())
	err = t.repo.Create(ctx, w)
	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, domain.ErrConflict):
		// Another request created it first; its values win.
		return t.repo.Get(ctx)
	default:
		return nil, fmt.Errorf("create watermark: %w", err)
	}
}

func (t *tracker) MarkSeen(ctx context.Context, c domain.Category) (time.Time, error) {
	if _, err := t.All(ctx); err != nil {
		return time.Time{}, err
	}
	at := t.now().UTC()
	if err := t.repo.SetSeen(ctx, c, at); err != nil {
		return time.Time{}, fmt.Errorf("mark %s seen: %w", c, err)
	}
	return at, nil
}
