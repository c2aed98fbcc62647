package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

const jobTimeout = 5 * time.Minute

func (a *Application) initJob() error {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	if a.appConfig.Session.TTL > 0 && a.appConfig.Session.SweepInterval > 0 {
		every := "@every " + a.appConfig.Session.SweepInterval.String()
		if _, err := a.sched.AddFunc(every, a.SweepSessions); err != nil {
			return errors.Wrapf(err, "schedule session sweep %q", every)
		}
	}

	if a.appConfig.Upload.GCEnabled {
		if _, err := a.sched.AddFunc(a.appConfig.Upload.GCSchedule, a.SweepUploads); err != nil {
			return errors.Wrapf(err, "schedule upload gc %q", a.appConfig.Upload.GCSchedule)
		}
	}

	a.sched.Start()
	return nil
}

// SweepSessions drops expired admin sessions.
func (a *Application) SweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := a.auth.Sweep(ctx)
	if err != nil {
		zap.L().Error("session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("expired sessions removed", zap.Int("count", n))
	}
}

// SweepUploads removes stored images no product references any more.
func (a *Application) SweepUploads() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := a.catalogue.SweepImages(ctx, a.appConfig.Upload.GCGrace)
	if err != nil {
		zap.L().Error("upload gc failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("orphaned images removed", zap.Int("count", n))
	}
}
