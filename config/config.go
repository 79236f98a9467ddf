package config

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// DefaultCron is the schedule used when the configured expression is invalid.
const DefaultCron = "0 * * * *"

type SysConfig struct {
	Workdir  string `yaml:"workdir" json:"workdir"`
	Location string `yaml:"location" json:"location"`
}

type ScheduleConfig struct {
	Cron string `yaml:"cron" json:"cron"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path" json:"path"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
}

type DashboardConfig struct {
	Port               int    `yaml:"port" json:"port"`
	AutoRefreshSeconds int    `yaml:"auto_refresh_seconds" json:"auto_refresh_seconds"`
	URLPrefix          string `yaml:"url_prefix" json:"url_prefix"`
}

type ExportConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Sink            string `yaml:"sink" json:"sink"` // sheets | excel | csv
	CredentialsJSON string `yaml:"credentials_json" json:"credentials_json"`
	SpreadsheetID   string `yaml:"spreadsheet_id" json:"spreadsheet_id"`
	OutputPath      string `yaml:"output_path" json:"output_path"`
	PollSeconds     int    `yaml:"poll_seconds" json:"poll_seconds"`
	RetrySeconds    int    `yaml:"retry_seconds" json:"retry_seconds"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	Level      string `yaml:"level" json:"level"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System    SysConfig       `yaml:"system" json:"system"`
	Schedule  ScheduleConfig  `yaml:"schedule" json:"schedule"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Dashboard DashboardConfig `yaml:"dashboard" json:"dashboard"`
	Export    ExportConfig    `yaml:"export" json:"export"`
	Logger    LogConfig       `yaml:"logger" json:"logger"`
}

func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Workdir:  "/var/speedmon",
			Location: "UTC",
		},
		Schedule: ScheduleConfig{Cron: DefaultCron},
		Database: DatabaseConfig{
			Path:          "/var/speedmon/speedmon.db",
			RetentionDays: 90,
		},
		Dashboard: DashboardConfig{
			Port:               8080,
			AutoRefreshSeconds: 60,
		},
		Export: ExportConfig{
			Sink:         "sheets",
			PollSeconds:  30,
			RetrySeconds: 300,
		},
		Logger: LogConfig{
			Mode:     "development",
			Level:    "info",
			Filename: "/var/speedmon/speedmon.log",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults and then applies
// SPEEDMON_* environment overrides. A missing file is an error; an empty
// path skips the file and uses defaults plus environment.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = cast.ToInt(v)
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = cast.ToBool(v)
		}
	}

	setString("SPEEDMON_WORKDIR", &c.System.Workdir)
	setString("SPEEDMON_CRON", &c.Schedule.Cron)
	setString("SPEEDMON_DB_PATH", &c.Database.Path)
	setInt("SPEEDMON_DB_RETENTION_DAYS", &c.Database.RetentionDays)
	setInt("SPEEDMON_DASHBOARD_PORT", &c.Dashboard.Port)
	setInt("SPEEDMON_DASHBOARD_REFRESH_SECONDS", &c.Dashboard.AutoRefreshSeconds)
	setString("SPEEDMON_URL_PREFIX", &c.Dashboard.URLPrefix)
	setBool("SPEEDMON_EXPORT_ENABLED", &c.Export.Enabled)
	setString("SPEEDMON_EXPORT_SINK", &c.Export.Sink)
	setString("SPEEDMON_EXPORT_CREDENTIALS_JSON", &c.Export.CredentialsJSON)
	setString("SPEEDMON_EXPORT_SPREADSHEET_ID", &c.Export.SpreadsheetID)
	setString("SPEEDMON_EXPORT_OUTPUT_PATH", &c.Export.OutputPath)
	setInt("SPEEDMON_EXPORT_POLL_SECONDS", &c.Export.PollSeconds)
	setInt("SPEEDMON_EXPORT_RETRY_SECONDS", &c.Export.RetrySeconds)
	setString("SPEEDMON_LOG_MODE", &c.Logger.Mode)
	setString("SPEEDMON_LOG_LEVEL", &c.Logger.Level)
	setBool("SPEEDMON_LOG_FILE_ENABLE", &c.Logger.FileEnable)
	setString("SPEEDMON_LOG_FILENAME", &c.Logger.Filename)
}

// ValidCron reports whether expr parses as a standard 5-field cron
// expression.
func ValidCron(expr string) bool {
	_, err := cron.ParseStandard(expr)
	return err == nil
}

// Validate checks the configuration and returns a list of human-readable
// problems. Validation never panics and never mutates the config.
func (c *AppConfig) Validate() []string {
	var errs []string
	if !ValidCron(c.Schedule.Cron) {
		errs = append(errs, fmt.Sprintf("schedule.cron: invalid cron expression %q", c.Schedule.Cron))
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, fmt.Sprintf("database.retention_days: must be >= 0, got %d", c.Database.RetentionDays))
	}
	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Sprintf("dashboard.port: must be in 1..65535, got %d", c.Dashboard.Port))
	}
	if c.Export.PollSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("export.poll_seconds: must be > 0, got %d", c.Export.PollSeconds))
	}
	if c.Export.RetrySeconds <= 0 {
		errs = append(errs, fmt.Sprintf("export.retry_seconds: must be > 0, got %d", c.Export.RetrySeconds))
	}
	if c.Export.Enabled {
		switch c.Export.Sink {
		case "sheets":
			if c.Export.CredentialsJSON == "" {
				errs = append(errs, "export.credentials_json: required when export.sink is sheets")
			}
			if c.Export.SpreadsheetID == "" {
				errs = append(errs, "export.spreadsheet_id: required when export.sink is sheets")
			}
		case "excel", "csv":
			if c.Export.OutputPath == "" {
				errs = append(errs, fmt.Sprintf("export.output_path: required when export.sink is %s", c.Export.Sink))
			}
		default:
			errs = append(errs, fmt.Sprintf("export.sink: unknown sink %q", c.Export.Sink))
		}
	}
	return errs
}
