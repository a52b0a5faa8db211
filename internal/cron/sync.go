package cronrunner

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"crmsync/internal/service"
)

type Syncer interface {
	RunAll(ctx context.Context, opts service.RunOptions) ([]service.RunResult, error)
	SyncOriginDeals(ctx context.Context, originID string, opts service.RunOptions) (service.RunResult, error)
}

type Switches interface {
	IsEnabled(ctx context.Context, key string, fallback bool) bool
}

// SyncTask is the scheduled auto-mode sync: every entity in dependency order,
// then the deals of each configured origin.
type SyncTask struct {
	Service   Syncer
	Switches  Switches
	OriginIDs []string
	Logger    *zap.Logger
}

func (t *SyncTask) Run(ctx context.Context) {
	if t == nil || t.Service == nil {
		return
	}
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if t.Switches != nil && !t.Switches.IsEnabled(ctx, service.FeatureSyncScheduler, true) {
		logger.Debug("cron sync skipped: scheduler switched off")
		return
	}

	opts := service.RunOptions{AutoMode: true}
	results, err := t.Service.RunAll(ctx, opts)
	if err != nil {
		logOutcome(logger, "cron sync failed", err)
		return
	}
	for _, res := range results {
		logger.Info("cron sync ok",
			zap.String("entity", res.Entity),
			zap.Int("pages", res.Pages),
			zap.Int64("synced", res.Synced),
			zap.Int("last_page", res.LastPage),
			zap.Bool("complete", res.Complete),
		)
	}

	for _, originID := range t.OriginIDs {
		originID = strings.TrimSpace(originID)
		if originID == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		res, err := t.Service.SyncOriginDeals(ctx, originID, opts)
		if err != nil {
			logOutcome(logger.With(zap.String("origin_id", originID)), "cron origin deals sync failed", err)
			continue
		}
		logger.Info("cron origin deals sync ok",
			zap.String("origin_id", originID),
			zap.Int("pages", res.Pages),
			zap.Int64("synced", res.Synced),
			zap.Bool("complete", res.Complete),
		)
	}
}

func logOutcome(logger *zap.Logger, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrSyncInProgress), errors.Is(err, service.ErrSyncDisabled):
		logger.Info(msg, zap.Error(err))
	default:
		logger.Warn(msg, zap.Error(err))
	}
}
