package app

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/chataru/craftsite/config"
	"github.com/chataru/craftsite/internal/catalogue"
	"github.com/chataru/craftsite/internal/domain"
	"github.com/chataru/craftsite/internal/enquiry"
	"github.com/chataru/craftsite/internal/notify"
	"github.com/chataru/craftsite/internal/session"
	"github.com/chataru/craftsite/internal/upload"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	bus       EventBus.Bus

	sessions  session.Store
	auth      *session.Authenticator
	images    *upload.DiskStore
	catalogue *catalogue.Service
	enquiries *enquiry.Service
	mailer    *notify.Mailer
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ ServiceProvider   = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

// Init sets up logging, the database, every service and the background jobs.
func (a *Application) Init(ctx context.Context) error {
	cfg := a.appConfig
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	if err := initLogger(cfg.Logger); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.System.Workdir, 0o755); err != nil {
		return errors.Wrap(err, "create workdir")
	}

	a.gormDB, err = getDatabase(cfg.Database, cfg.System.Workdir)
	if err != nil {
		return err
	}
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		return errors.Wrap(err, "database migration")
	}

	if err := a.Wire(ctx); err != nil {
		return err
	}
	a.checkAdminSecret()
	return a.initJob()
}

func initLogger(cfg config.LogConfig) error {
	var zapConfig zap.Config
	if cfg.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.FileEnable {
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o755); err != nil {
			return errors.Wrap(err, "create log dir")
		}
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}
		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			return errors.Wrap(err, "build logger")
		}
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// Wire builds the session registry, image store, services and notifier on
// top of an already opened database.
func (a *Application) Wire(ctx context.Context) error {
	cfg := a.appConfig
	if a.gormDB == nil {
		return errors.New("wire: database not initialised")
	}

	store, err := openSessionStore(ctx, cfg.Session)
	if err != nil {
		return err
	}
	a.sessions = store
	a.auth = session.NewAuthenticator(cfg.Admin.Password, store, session.WithTTL(cfg.Session.TTL))

	a.images, err = upload.NewDiskStore(cfg.Upload.Dir, cfg.Upload.URLPrefix,
		upload.WithImagesOnly(cfg.Upload.ImagesOnly))
	if err != nil {
		return err
	}

	a.bus = EventBus.New()
	a.catalogue = catalogue.NewService(catalogue.NewGormRepository(a.gormDB), a.images)
	a.enquiries = enquiry.NewService(enquiry.NewGormRepository(a.gormDB), a.bus)

	a.mailer = notify.NewMailer(cfg.Mail)
	if a.mailer != nil {
		if err := a.mailer.Subscribe(a.bus); err != nil {
			return errors.Wrap(err, "subscribe enquiry notifier")
		}
		zap.L().Info("enquiry notifications enabled", zap.String("to", cfg.Mail.To))
	}
	return nil
}

func openSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case "redis":
		client, err := session.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		zap.L().Info("session registry: redis", zap.String("addr", cfg.RedisAddr))
		return session.NewRedisStore(client), nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o755); err != nil {
			return nil, errors.Wrap(err, "create session dir")
		}
		zap.L().Info("session registry: bolt", zap.String("path", cfg.BoltPath))
		return session.OpenBoltStore(cfg.BoltPath)
	default:
		zap.L().Info("session registry: memory")
		return session.NewMemoryStore(), nil
	}
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEBUG_TRACE") != "" {
				debug.PrintStack()
			}
			if err2, ok := err1.(error); ok {
				err = err2
			} else {
				err = errors.Errorf("migrate: %v", err1)
			}
			zap.S().Error(err.Error())
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	return db.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

// InitDb drops and recreates every table.
func (a *Application) InitDb() {
	a.DropAll()
	if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
		zap.S().Error(err)
	}
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Authenticator() *session.Authenticator {
	return a.auth
}

func (a *Application) Catalogue() *catalogue.Service {
	return a.catalogue
}

func (a *Application) Enquiries() *enquiry.Service {
	return a.enquiries
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.bus != nil {
		a.bus.WaitAsync()
	}
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			zap.L().Warn("close session store", zap.Error(err))
		}
	}
	if a.gormDB != nil {
		if sqlDB, err := a.gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = zap.L().Sync()
}
