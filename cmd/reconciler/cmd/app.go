package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"bank-transfer-reconciler/cmd/reconciler/config"
	"bank-transfer-reconciler/internal/archive"
	"bank-transfer-reconciler/internal/lock"
	"bank-transfer-reconciler/internal/notify"
	"bank-transfer-reconciler/internal/ocr"
	"bank-transfer-reconciler/internal/outbox"
	"bank-transfer-reconciler/internal/reconciler"
	"bank-transfer-reconciler/internal/status"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/internal/transition"
	"bank-transfer-reconciler/pkg/logger"
)

// application holds the wired components shared by the commands
type application struct {
	config       *config.Config
	logger       logger.Logger
	db           *gorm.DB
	redis        *redis.Client
	repo         store.Repository
	engine       *transition.Engine
	orchestrator *reconciler.ReconciliationOrchestrator
	status       *status.Service
	email        notify.EmailSender
	message      notify.MessageSender
}

// loadApplication reads the configuration and wires every component
func loadApplication(ctx context.Context) (*application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApplication(ctx, cfg)
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobalLogger(log)

	app := &application{config: cfg, logger: log}

	db, err := store.Open(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	app.db = db
	if err := store.Migrate(db); err != nil {
		app.Close()
		return nil, err
	}
	app.repo = store.NewRepository(db)

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		app.redis = lock.NewRedisClient(cfg.Redis)
		if err := app.redis.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		locker = lock.NewRedisLocker(app.redis, cfg.Redis.TTL, cfg.Redis.Wait)
	}

	app.engine = transition.NewEngine(app.repo, locker, &transition.Config{Logger: log})

	service, err := reconciler.NewReconciliationService(app.repo, app.engine, cfg.CreateReconcilerConfig(), log)
	if err != nil {
		app.Close()
		return nil, err
	}

	router := ocr.NewRouter(nil)
	if cfg.Gemini.Enabled {
		gemini, err := ocr.NewGeminiExtractor(ctx, cfg.Gemini, log)
		if err != nil {
			app.Close()
			return nil, err
		}
		router.OCR = gemini
	}

	var arch archive.Archive = archive.Noop{}
	if cfg.S3.Enabled() {
		s3Archive, err := archive.NewS3Archive(ctx, cfg.S3, log)
		if err != nil {
			app.Close()
			return nil, err
		}
		arch = s3Archive
	}

	app.orchestrator, err = reconciler.NewReconciliationOrchestrator(service, router, arch)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.status = status.NewService(app.repo, nil, log)

	fallback := notify.NewLogSender(log)
	app.email, app.message = fallback, fallback
	if cfg.SMTP.Enabled() {
		app.email = notify.NewSMTPMailer(cfg.SMTP, log)
	}
	if cfg.Messaging.Enabled() {
		app.message = notify.NewHTTPMessenger(cfg.Messaging, log)
	}

	return app, nil
}

// dispatcher creates an outbox dispatcher over the application senders
func (a *application) dispatcher() *outbox.Dispatcher {
	dispatcherConfig := a.config.Dispatcher
	dispatcherConfig.Logger = a.logger
	return outbox.NewDispatcher(a.repo, a.email, a.message, &dispatcherConfig)
}

// Close releases the database and Redis connections
func (a *application) Close() error {
	var err error
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	if a.db != nil {
		sqlDB, dbErr := a.db.DB()
		err = multierr.Append(err, dbErr)
		if sqlDB != nil {
			err = multierr.Append(err, sqlDB.Close())
		}
	}
	return err
}
