package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/blobstore"
	"github.com/dmitrijs2005/privylock/internal/server/config"
	"github.com/dmitrijs2005/privylock/internal/server/googleauth"
	"github.com/dmitrijs2005/privylock/internal/server/joblock"
	"github.com/dmitrijs2005/privylock/internal/server/notify"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/privylock/internal/server/services"
)

const outboundTimeout = 10 * time.Second

// Deps holds everything built from a Config: the database handle, the
// repository manager and the services. Both the server and vaultctl start
// from here.
type Deps struct {
	Config *config.Config
	Logger logging.Logger
	DB     *sql.DB
	Repos  repomanager.RepositoryManager

	Users         *services.UserService
	Devices       *services.DeviceService
	Categories    *services.CategoryService
	Folders       *services.FolderService
	Documents     *services.DocumentService
	Notifications *services.NotificationService
	Alerts        *services.AlertService
	Jobs          *services.JobService

	closers []func() error
}

// Build opens the database and the optional backends named in cfg and
// wires the services together. Redis is optional: when RedisURL is empty or
// unreachable job locks fall back to an in-process locker.
func Build(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Deps, error) {
	db, err := dbx.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	d := &Deps{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Repos:   repomanager.NewPostgresRepositoryManager(),
		closers: []func() error{db.Close},
	}

	blobs, err := blobstore.New(ctx, cfg)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	var locker joblock.Locker = joblock.NewMemoryLocker()
	if cfg.RedisURL != "" {
		rl, client, err := joblock.NewRedisLockerFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn(ctx, "redis unavailable, using in-process job locks", "error", err)
		} else {
			locker = rl
			d.closers = append(d.closers, client.Close)
		}
	}

	var mailer notify.Mailer = &notify.LogMailer{Logger: logger.With("module", "mailer")}
	if cfg.SMTPEnabled() {
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}
	// Notification e-mails are only sent through a real relay; the log
	// mailer is reserved for verification links.
	var notificationMailer notify.Mailer
	if cfg.SMTPEnabled() {
		notificationMailer = mailer
	}

	google := googleauth.NewTokenInfoVerifier(cfg.GoogleTokenInfoURL, cfg.GoogleClientID, outboundTimeout)

	d.Alerts = services.NewAlertService(db, d.Repos, services.Base64DateResolver{}, logger.With("module", "alerts"))
	d.Users = services.NewUserService(db, d.Repos, cfg, d.Alerts, google, mailer, logger.With("module", "users"))
	d.Devices = services.NewDeviceService(db, d.Repos)
	d.Categories = services.NewCategoryService(db, d.Repos, cfg.CategoryCacheTTL, logger.With("module", "categories"))
	d.Folders = services.NewFolderService(db, d.Repos, d.Categories, logger.With("module", "folders"))
	d.Documents = services.NewDocumentService(db, d.Repos, blobs, d.Categories, d.Alerts, logger.With("module", "documents"))
	d.Notifications = services.NewNotificationService(db, d.Repos, logger.With("module", "notifications"))
	d.Jobs = services.NewJobService(db, d.Repos, d.Alerts, locker,
		notify.NewEmailTransport(notificationMailer, cfg.FrontendURL),
		notify.NewPushTransport(cfg.PushGatewayURL, cfg.PushGatewayKey, outboundTimeout),
		logger.With("module", "jobs"))

	return d, nil
}

// Migrate applies the embedded schema migrations.
func (d *Deps) Migrate(ctx context.Context) error {
	if err := d.Repos.RunMigrations(ctx, d.DB); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}
