// Package maintenance schedules background upkeep of the usage ledger.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@daily"

type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

type Job struct {
	cron   *cron.Cron
	pruner Pruner
	log    *slog.Logger
}

// NewPruneJob parses schedule (standard five-field cron or a descriptor such
// as "@daily") and prepares a job pruning expired ledger days.
func NewPruneJob(schedule string, loc *time.Location, pruner Pruner, log *slog.Logger) (*Job, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if loc == nil {
		loc = time.Local
	}
	j := &Job{
		cron:   cron.New(cron.WithLocation(loc)),
		pruner: pruner,
		log:    log,
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse prune schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start prunes once immediately, then follows the schedule until ctx is done.
func (j *Job) Start(ctx context.Context) {
	j.RunOnce(ctx)
	j.cron.Start()
	go func() {
		<-ctx.Done()
		<-j.cron.Stop().Done()
		j.log.Info("prune job stopped")
	}()
}

func (j *Job) RunOnce(ctx context.Context) {
	removed, err := j.pruner.Prune(ctx)
	if err != nil {
		j.log.Error("scheduled prune failed", "err", err)
		return
	}
	j.log.Debug("scheduled prune done", "days_removed", removed)
}
