package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/service"
)

// CounterReconcileJob periodically repairs follower/following counters that
// drifted from the follow edges.
type CounterReconcileJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *CounterReconcileJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideCounterReconcileJob starts the reconcile loop. A zero interval
// disables it.
func ProvideCounterReconcileJob(i do.Injector) (*CounterReconcileJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	follows := do.MustInvoke[*service.FollowService](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Reconcile.Interval <= 0 {
		log.Info("Counter reconcile job disabled")
		return &CounterReconcileJob{cancel: cancel}, nil
	}

	go func() {
		ticker := time.NewTicker(cfg.Reconcile.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				report, err := follows.ReconcileCounters(ctx)
				if err != nil {
					log.Warn("Counter reconcile failed", "error", err)
					continue
				}
				if report.UsersFixed > 0 || report.Failures > 0 {
					log.Info("Counter reconcile completed",
						"scanned", report.UsersScanned,
						"fixed", report.UsersFixed,
						"failures", report.Failures,
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Counter reconcile job started", "interval", cfg.Reconcile.Interval)

	return &CounterReconcileJob{cancel: cancel}, nil
}

// InvitePurgeJob periodically deletes unused invites older than the
// configured expiry.
type InvitePurgeJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *InvitePurgeJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideInvitePurgeJob starts the purge loop. It runs at the reconcile
// interval and is disabled along with it.
func ProvideInvitePurgeJob(i do.Injector) (*InvitePurgeJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	invites := do.MustInvoke[*service.InviteService](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Reconcile.Interval <= 0 {
		return &InvitePurgeJob{cancel: cancel}, nil
	}

	go func() {
		ticker := time.NewTicker(cfg.Reconcile.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n, err := invites.PurgeAllExpired(ctx, 0); err != nil {
					log.Warn("Invite purge failed", "error", err, "deleted", n)
				} else if n > 0 {
					log.Info("Invite purge completed", "deleted", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Invite purge job started", "interval", cfg.Reconcile.Interval)

	return &InvitePurgeJob{cancel: cancel}, nil
}
