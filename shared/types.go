package shared

import (
	"time"

	"github.com/Daskott/walkwithme/alert"
	"github.com/Daskott/walkwithme/server/logger"
	"github.com/Daskott/walkwithme/trigger"
)

const (
	RECURRING_WALK = "recurring"
	TIMED_WALK     = "timed"
)

type ServerConfig struct {
	Walk     WalkConfig          `mapstructure:"walk" validate:"required"`
	Shake    trigger.ShakeConfig `mapstructure:"shake"`
	Location LocationConfig      `mapstructure:"location"`
	Listener ListenerConfig      `mapstructure:"listener" validate:"required"`
	Sqlite   SqliteConfig        `mapstructure:"sqlite"`
	Cron     CronConfig          `mapstructure:"cron" validate:"required"`
	Twilio   TwilioConfig        `mapstructure:"twilio"`
	Google   GoogleConfig        `mapstructure:"google"`
	Logging  logger.Config       `mapstructure:"logging"`
	Notify   NotifyConfig        `mapstructure:"notify"`
	Profile  alert.Profile       `mapstructure:"profile"`
	Contacts []alert.Contact     `mapstructure:"contacts" validate:"max=3,dive"`
}

type WalkConfig struct {
	Mode            string        `mapstructure:"mode" validate:"omitempty,oneof=recurring timed"`
	CheckInterval   time.Duration `mapstructure:"checkInterval" validate:"omitempty,min=0"`
	GracePeriod     time.Duration `mapstructure:"gracePeriod" validate:"omitempty,min=0"`
	WalkDuration    time.Duration `mapstructure:"walkDuration" validate:"omitempty,min=0"`
	TickInterval    time.Duration `mapstructure:"tickInterval" validate:"omitempty,min=0"`
	LocationTimeout time.Duration `mapstructure:"locationTimeout" validate:"omitempty,min=0"`
}

type LocationConfig struct {
	MaxAge   time.Duration   `mapstructure:"maxAge" validate:"omitempty,min=0"`
	Fallback *FallbackConfig `mapstructure:"fallback"`
}

type FallbackConfig struct {
	Latitude  float64 `mapstructure:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `mapstructure:"longitude" validate:"min=-180,max=180"`
}

type ListenerConfig struct {
	Port int `mapstructure:"port" validate:"required"`
}

type SqliteConfig struct {
	Dir string `mapstructure:"dir"`
}

type CronConfig struct {
	TimeZone string `mapstructure:"timeZone" validate:"required"`
}

type TwilioConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	AccountSid          string `mapstructure:"accountSid"`
	AuthToken           string `mapstructure:"authToken"`
	MessagingServiceSid string `mapstructure:"messagingServiceSid"`
	From                string `mapstructure:"from"`
}

type GoogleConfig struct {
	ApplicationCredentials string        `mapstructure:"applicationCredentials"`
	Storage                StorageConfig `mapstructure:"storage"`
}

type StorageConfig struct {
	Bucket                    string `mapstructure:"bucket" validate:"required_with=EnableSqliteBackupAndSync"`
	Prefix                    string `mapstructure:"prefix"`
	SqliteBackupSchedule      string `mapstructure:"sqliteBackupSchedule" validate:"required_with=EnableSqliteBackupAndSync"`
	EnableSqliteBackupAndSync bool   `mapstructure:"enableSqliteBackupAndSync"`
}

type NotifyConfig struct {
	SimulatedDelay time.Duration `mapstructure:"simulatedDelay" validate:"omitempty,min=0"`
}
