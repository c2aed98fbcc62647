package app

import (
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/chataru/craftsite/config"
	"github.com/chataru/craftsite/internal/catalogue"
	"github.com/chataru/craftsite/internal/enquiry"
	"github.com/chataru/craftsite/internal/session"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// ServiceProvider exposes the wired domain services to the HTTP layer.
type ServiceProvider interface {
	Authenticator() *session.Authenticator
	Catalogue() *catalogue.Service
	Enquiries() *enquiry.Service
}

// AppContext combines all provider interfaces for full application context
// Handlers should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SchedulerProvider
	ServiceProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
}
