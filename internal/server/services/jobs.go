package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/joblock"
	"github.com/dmitrijs2005/privylock/internal/server/metrics"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/notify"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/repomanager"
)

// Job names, also used as lock names and metric labels.
const (
	JobExpiry  = "expiry"
	JobStorage = "storage"
	JobEmail   = "email"
	JobPush    = "push"
	JobCleanup = "cleanup"
)

const (
	jobLockTTL    = 30 * time.Minute
	dispatchBatch = 500
	emailWindow   = 7 * 24 * time.Hour
	pushWindow    = 24 * time.Hour
	readRetention = 30 * 24 * time.Hour
)

// JobService runs the periodic jobs an external scheduler invokes. Each
// job holds a named lock for its duration and returns how many items it
// processed. A failing item is logged and skipped.
type JobService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	alerts      *AlertService
	locker      joblock.Locker
	email       notify.Transport
	push        notify.Transport
	logger      logging.Logger
	now         func() time.Time
}

func NewJobService(db *sql.DB, m repomanager.RepositoryManager, alerts *AlertService, locker joblock.Locker,
	email, push notify.Transport, logger logging.Logger) *JobService {
	return &JobService{
		db:          db,
		repomanager: m,
		alerts:      alerts,
		locker:      locker,
		email:       email,
		push:        push,
		logger:      logger,
		now:         time.Now,
	}
}

// Run dispatches a job by name.
func (s *JobService) Run(ctx context.Context, name string) (int, error) {
	switch name {
	case JobExpiry:
		return s.ScanExpiringDocuments(ctx)
	case JobStorage:
		return s.CheckAllStorage(ctx)
	case JobEmail:
		return s.DispatchEmail(ctx)
	case JobPush:
		return s.DispatchPush(ctx)
	case JobCleanup:
		return s.Cleanup(ctx)
	}
	return 0, fmt.Errorf("unknown job %q", name)
}

func (s *JobService) run(ctx context.Context, name string, fn func(ctx context.Context) (int, error)) (int, error) {
	log := s.logger.With("job", name)

	release, err := s.locker.Acquire(ctx, name, jobLockTTL)
	if err != nil {
		if errors.Is(err, common.ErrJobLocked) {
			metrics.JobRunsTotal.WithLabelValues(name, metrics.OutcomeSkipped).Inc()
			log.Warn(ctx, "job already running, skipped")
		}
		return 0, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Error(ctx, "job lock release failed", "error", err)
		}
	}()

	start := s.now()
	log.Info(ctx, "job started")

	n, err := fn(ctx)
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(name, metrics.OutcomeError).Inc()
		log.Error(ctx, "job failed", "processed", n, "error", err)
		return n, err
	}

	metrics.JobRunsTotal.WithLabelValues(name, metrics.OutcomeOK).Inc()
	log.Info(ctx, "job finished", "processed", n, "duration", s.now().Sub(start))
	return n, nil
}

// ScanExpiringDocuments evaluates every expiry-tracked document and
// returns the number of notifications created.
func (s *JobService) ScanExpiringDocuments(ctx context.Context) (int, error) {
	return s.run(ctx, JobExpiry, func(ctx context.Context) (int, error) {
		docs, err := s.repomanager.Documents(s.db).ListWithExpiry(ctx)
		if err != nil {
			return 0, err
		}
		s.logger.Info(ctx, "documents with expiry", "count", len(docs))

		created := 0
		for _, d := range docs {
			if err := ctx.Err(); err != nil {
				return created, err
			}
			ok, err := s.alerts.CheckDocumentExpiry(ctx, d)
			if err != nil {
				s.logger.Warn(ctx, "expiry check skipped", "document_id", d.ID, "error", err)
				continue
			}
			if ok {
				created++
			}
		}
		return created, nil
	})
}

// CheckAllStorage re-evaluates storage thresholds for every user holding
// data and returns the number of notifications created.
func (s *JobService) CheckAllStorage(ctx context.Context) (int, error) {
	return s.run(ctx, JobStorage, func(ctx context.Context) (int, error) {
		list, err := s.repomanager.Users(s.db).ListWithStorage(ctx)
		if err != nil {
			return 0, err
		}

		created := 0
		for _, u := range list {
			if err := ctx.Err(); err != nil {
				return created, err
			}
			ok, err := s.alerts.CheckStorage(ctx, u)
			if err != nil {
				s.logger.Warn(ctx, "storage check skipped", "user_id", u.ID, "error", err)
				continue
			}
			if ok {
				created++
			}
		}
		return created, nil
	})
}

type channel struct {
	name    string
	window  time.Duration
	tr      notify.Transport
	pending func(ctx context.Context, since, now time.Time, limit int) ([]*models.Notification, error)
	allowed func(p *models.NotificationPreference, t models.NotificationType) bool
	mark    func(ctx context.Context, id string, at time.Time) error
}

// DispatchEmail sends pending notifications by e-mail and returns how many
// were delivered.
func (s *JobService) DispatchEmail(ctx context.Context) (int, error) {
	repo := s.repomanager.Notifications(s.db)
	return s.run(ctx, JobEmail, func(ctx context.Context) (int, error) {
		return s.dispatch(ctx, channel{
			name:    JobEmail,
			window:  emailWindow,
			tr:      s.email,
			pending: repo.ListPendingEmail,
			allowed: (*models.NotificationPreference).EmailAllowed,
			mark:    repo.MarkEmailSent,
		})
	})
}

// DispatchPush sends pending notifications through the push gateway and
// returns how many were delivered.
func (s *JobService) DispatchPush(ctx context.Context) (int, error) {
	repo := s.repomanager.Notifications(s.db)
	return s.run(ctx, JobPush, func(ctx context.Context) (int, error) {
		return s.dispatch(ctx, channel{
			name:    JobPush,
			window:  pushWindow,
			tr:      s.push,
			pending: repo.ListPendingPush,
			allowed: (*models.NotificationPreference).PushAllowed,
			mark:    repo.MarkPushSent,
		})
	})
}

// dispatch marks a notification sent only after the transport accepted
// it. Notifications the user opted out of are left pending and age out of
// the window.
func (s *JobService) dispatch(ctx context.Context, ch channel) (int, error) {
	if ch.tr == nil {
		s.logger.Warn(ctx, "transport not configured, dispatch skipped", "channel", ch.name)
		return 0, nil
	}

	now := s.now()
	list, err := ch.pending(ctx, now.Add(-ch.window), now, dispatchBatch)
	if err != nil {
		return 0, err
	}

	usersRepo := s.repomanager.Users(s.db)
	prefsRepo := s.repomanager.Preferences(s.db)
	users := make(map[string]*models.User)
	prefs := make(map[string]*models.NotificationPreference)

	sent := 0
	for _, n := range list {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		p, ok := prefs[n.UserID]
		if !ok {
			p, err = loadPreferences(ctx, prefsRepo, n.UserID)
			if err != nil {
				s.logger.Warn(ctx, "preferences unavailable", "user_id", n.UserID, "error", err)
				continue
			}
			prefs[n.UserID] = p
		}
		if !ch.allowed(p, n.Type) {
			continue
		}

		u, ok := users[n.UserID]
		if !ok {
			u, err = usersRepo.GetByID(ctx, n.UserID)
			if err != nil {
				s.logger.Warn(ctx, "recipient unavailable", "user_id", n.UserID, "error", err)
				continue
			}
			users[n.UserID] = u
		}

		if err := ch.tr.Send(ctx, n, u); err != nil {
			if errors.Is(err, notify.ErrNotConfigured) {
				s.logger.Warn(ctx, "transport not configured, dispatch stopped", "channel", ch.name)
				return sent, nil
			}
			metrics.NotificationsDelivered.WithLabelValues(ch.name, metrics.OutcomeError).Inc()
			s.logger.Warn(ctx, "delivery failed, will retry", "channel", ch.name, "notification_id", n.ID, "error", err)
			continue
		}

		if err := ch.mark(ctx, n.ID, s.now()); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				s.logger.Debug(ctx, "notification already marked sent", "notification_id", n.ID)
				continue
			}
			s.logger.Error(ctx, "sent flag not stored", "channel", ch.name, "notification_id", n.ID, "error", err)
			continue
		}
		metrics.NotificationsDelivered.WithLabelValues(ch.name, metrics.OutcomeOK).Inc()
		sent++
	}
	return sent, nil
}

// Cleanup deletes expired notifications and read ones older than the
// retention period, and purges expired refresh tokens. It returns the
// number of notifications deleted.
func (s *JobService) Cleanup(ctx context.Context) (int, error) {
	return s.run(ctx, JobCleanup, func(ctx context.Context) (int, error) {
		now := s.now()
		repo := s.repomanager.Notifications(s.db)

		expired, err := repo.DeleteExpired(ctx, now)
		if err != nil {
			return 0, err
		}
		old, err := repo.DeleteReadBefore(ctx, now.Add(-readRetention))
		if err != nil {
			return int(expired), err
		}

		tokens, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, now)
		if err != nil {
			s.logger.Warn(ctx, "refresh token purge failed", "error", err)
		} else {
			s.logger.Info(ctx, "refresh tokens purged", "count", tokens)
		}

		s.logger.Info(ctx, "notifications cleaned up", "expired", expired, "read", old)
		return int(expired + old), nil
	})
}
