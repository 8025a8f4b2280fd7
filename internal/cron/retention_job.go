package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
)

const day = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PurgeFunc deletes the rows of one table that are older than cutoff and
// reports how many went.
type PurgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// RetentionTarget is one table under a retention window. A target with a
// non-positive window is skipped.
type RetentionTarget struct {
	Name  string
	Days  int
	Purge PurgeFunc
}

type RetentionJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Targets []RetentionTarget
}

// NewRetentionJob builds the purge job. Each target is deleted in its own
// transaction so one failing table does not roll back the others.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("db runner required")
	}
	targets := make([]RetentionTarget, 0, len(params.Targets))
	for _, t := range params.Targets {
		if t.Purge == nil {
			return nil, fmt.Errorf("retention target %q has no purge func", t.Name)
		}
		if t.Days > 0 {
			targets = append(targets, t)
		}
	}
	return &retentionJob{
		logg:    params.Logger,
		db:      params.DB,
		targets: targets,
		now:     time.Now,
	}, nil
}

type retentionJob struct {
	logg    *logger.Logger
	db      txRunner
	targets []RetentionTarget
	now     func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, target := range j.targets {
		cutoff := now.Add(-time.Duration(target.Days) * day)
		deleted, err := j.purge(ctx, target, cutoff)
		tctx := j.logg.WithFields(ctx, map[string]any{
			"target":         target.Name,
			"cutoff":         cutoff,
			"retention_days": target.Days,
		})
		if err != nil {
			j.logg.Error(tctx, "retention purge failed", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", target.Name, err))
			continue
		}
		j.logg.Info(j.logg.WithField(tctx, "rows_deleted", deleted), "retention purge complete")
	}
	return errs
}

func (j *retentionJob) purge(ctx context.Context, target RetentionTarget, cutoff time.Time) (int64, error) {
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := target.Purge(ctx, tx, cutoff)
		deleted = n
		return err
	})
	return deleted, err
}
