package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
)

const (
	defaultStaleAfter = 30 * time.Minute
	staleSampleSize   = 20
)

type staleReservationRepo interface {
	CountStaleReservations(ctx context.Context, cutoff time.Time) (int64, error)
	ListStaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]models.Code, error)
}

type staleGauge interface {
	SetStaleReservations(n int)
}

type StaleReservationJobParams struct {
	Logger     *logger.Logger
	Repository staleReservationRepo
	Metrics    staleGauge
	StaleAfter time.Duration
}

// NewStaleReservationJob reports reservations that were never delivered or
// released. It only observes: the fulfillment loop resumes such reservations
// on the next event for the order, so releasing here would race it.
func NewStaleReservationJob(params StaleReservationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	after := params.StaleAfter
	if after <= 0 {
		after = defaultStaleAfter
	}
	return &staleReservationJob{
		logg:    params.Logger,
		repo:    params.Repository,
		metrics: params.Metrics,
		after:   after,
		now:     time.Now,
	}, nil
}

type staleReservationJob struct {
	logg    *logger.Logger
	repo    staleReservationRepo
	metrics staleGauge
	after   time.Duration
	now     func() time.Time
}

func (j *staleReservationJob) Name() string { return "stale-reservations" }

func (j *staleReservationJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	count, err := j.repo.CountStaleReservations(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("count stale reservations: %w", err)
	}
	if j.metrics != nil {
		j.metrics.SetStaleReservations(int(count))
	}
	if count == 0 {
		j.logg.Debug(ctx, "no stale reservations")
		return nil
	}

	sample, err := j.repo.ListStaleReservations(ctx, cutoff, staleSampleSize)
	if err != nil {
		return fmt.Errorf("list stale reservations: %w", err)
	}
	for _, code := range sample {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"code_id":     code.ID.String(),
			"product_id":  code.ProductID.String(),
			"order_id":    deref(code.OrderID),
			"item_id":     deref(code.ItemID),
			"reserved_at": code.ReservedAt,
		}), "reservation pending past threshold")
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"stale_count": count,
		"cutoff":      cutoff,
	}), "stale reservations detected")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
