package app

import (
	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/lanwatch/speedmon/config"
	"github.com/lanwatch/speedmon/internal/speedtest"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// RepositoryProvider provides result store access
type RepositoryProvider interface {
	Repository() speedtest.ResultRepository
}

// SchedulerProvider provides the housekeeping cron scheduler
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// BusProvider provides the in-process event bus
type BusProvider interface {
	Bus() EventBus.Bus
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	RepositoryProvider
	SchedulerProvider
	BusProvider

	// Application lifecycle methods
	MigrateDB() error
	InitDb()
	DropAll()
}
