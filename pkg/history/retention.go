package history

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule prunes once a day at 04:00
const DefaultSchedule = "0 0 4 * * *"

// Retention prunes old history on a cron schedule
type Retention struct {
	store     *Store
	retention time.Duration
	schedule  string
	logger    *zap.Logger
	now       func() time.Time

	cron    *cron.Cron
	entry   cron.EntryID
	mu      sync.Mutex
	running bool
}

// NewRetention creates a retention job. It does nothing until Start.
func NewRetention(store *Store, retention time.Duration, schedule string, logger *zap.Logger) (*Retention, error) {
	if retention <= 0 {
		return nil, ErrInvalidRetention
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}

	return &Retention{
		store:     store,
		retention: retention,
		schedule:  schedule,
		logger:    logger.Named("retention"),
		now:       time.Now,
		cron:      cron.New(cron.WithSeconds()),
	}, nil
}

// Start schedules the prune job
func (r *Retention) Start() error {
	entry, err := r.cron.AddFunc(r.schedule, r.run)
	if err != nil {
		return err
	}
	r.entry = entry
	r.cron.Start()

	r.logger.Info("history retention scheduled",
		zap.String("schedule", r.schedule),
		zap.Duration("retention", r.retention),
	)
	return nil
}

// Stop stops the scheduler and waits for a running prune to finish
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// NextRun returns when the prune job fires next
func (r *Retention) NextRun() time.Time {
	if r.entry == 0 {
		return time.Time{}
	}
	return r.cron.Entry(r.entry).Next
}

// Schedule returns the cron expression of the prune job
func (r *Retention) Schedule() string {
	return r.schedule
}

// Running reports whether a scheduled prune is in progress
func (r *Retention) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RunOnce prunes immediately
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	return r.store.Prune(ctx, r.now().Add(-r.retention))
}

func (r *Retention) run() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Debug("prune already in progress, skipping")
		return
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := r.RunOnce(ctx)
	if err != nil {
		r.logger.Error("failed to prune history", zap.Error(err))
		return
	}
	r.logger.Info("history pruned", zap.Int64("rows", n))
}
