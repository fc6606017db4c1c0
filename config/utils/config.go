// Package config loads environment variables & config.yaml into typed config
// structs: app, logger, db, redis, rabbitmq, api server, escalation policy
// and scheduler cadence.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type (
	AppConfig struct {
		App        *App        `mapstructure:"app"`
		Logger     *Logger     `mapstructure:"logger"`
		DB         *DB         `mapstructure:"db"`
		Redis      *Redis      `mapstructure:"redis"`
		RabbitMQ   *RabbitMQ   `mapstructure:"rabbitmq"`
		API        *API        `mapstructure:"api"`
		Escalation *Escalation `mapstructure:"escalation"`
		Scheduler  *Scheduler  `mapstructure:"scheduler"`
	}

	// App contains identity metadata for log context
	App struct {
		Name  string `mapstructure:"name"`
		Env   string `mapstructure:"env"`
		Owner string `mapstructure:"owner"`
	}

	// DB contains the PostgreSQL connection variables
	DB struct {
		Connection string `mapstructure:"connection"`
		Host       string `mapstructure:"host"`
		Port       string `mapstructure:"port"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		Name       string `mapstructure:"name"`
	}

	// Redis contains the presence-store connection variables
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	}

	// RabbitMQ contains the message-broker connection variables
	RabbitMQ struct {
		URL            string `mapstructure:"url"`
		NotifyExchange string `mapstructure:"notifyExchange"`
		InboundQueue   string `mapstructure:"inboundQueue"`
	}

	// API contains the dashboard HTTP server variables
	API struct {
		Addr string `mapstructure:"addr"`
	}

	// Escalation holds the reminder/escalation policy. Immutable after load;
	// services receive it at construction, never read ambient state.
	Escalation struct {
		FirstReminderMinutes  int   `mapstructure:"firstReminderMinutes"`
		SecondReminderMinutes int   `mapstructure:"secondReminderMinutes"`
		EscalationMinutes     int   `mapstructure:"escalationMinutes"`
		AutoReassignMinutes   int   `mapstructure:"autoReassignMinutes"`
		DeadlineWarningPcts   []int `mapstructure:"deadlineWarningPcts"`
	}

	// Scheduler holds the sweep cadences
	Scheduler struct {
		SweepIntervalMinutes int    `mapstructure:"sweepIntervalMinutes"`
		MetricsHour          int    `mapstructure:"metricsHour"`
		Timezone             string `mapstructure:"timezone"`
	}

	// Logger contains all the environment variables for the logger
	Logger struct {
		Level             string                `mapstructure:"level"`
		Development       bool                  `mapstructure:"development"`
		DisableStacktrace bool                  `mapstructure:"disableStacktrace"`
		Encoding          string                `mapstructure:"encoding"`
		EncoderConfig     zapcore.EncoderConfig `mapstructure:"encoderConfig"`
	}
)

// SweepInterval returns the escalation sweep cadence as a duration.
func (s *Scheduler) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}

// Validate rejects a policy whose bands overlap or whose warning thresholds
// are not strictly descending.
func (e *Escalation) Validate() error {
	if e.FirstReminderMinutes <= 0 ||
		e.SecondReminderMinutes <= e.FirstReminderMinutes ||
		e.EscalationMinutes <= e.SecondReminderMinutes {
		return fmt.Errorf("reminder bands must be positive and strictly increasing: %d/%d/%d",
			e.FirstReminderMinutes, e.SecondReminderMinutes, e.EscalationMinutes)
	}
	if len(e.DeadlineWarningPcts) == 0 {
		return fmt.Errorf("at least one deadline warning threshold is required")
	}
	prev := 101
	for _, pct := range e.DeadlineWarningPcts {
		if pct <= 0 || pct >= 100 {
			return fmt.Errorf("deadline warning threshold out of range: %d", pct)
		}
		if pct >= prev {
			return fmt.Errorf("deadline warning thresholds must be strictly descending: %v", e.DeadlineWarningPcts)
		}
		prev = pct
	}
	return nil
}

// addZapEncoderConfig fills encoder config with zapcore types
func addZapEncoderConfig(cfg *zapcore.EncoderConfig) {
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.SecondsDurationEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.EncodeName = func(s string, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString("[" + s + "]")
	}
}

// New creates a new AppConfig instance
func New() *AppConfig {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/secrets/")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("env")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Escalation policy defaults mirror the dispatch desk runbook:
	// gentle nudge at 15m, urgent at 30m, escalate at 60m.
	viper.SetDefault("escalation.firstReminderMinutes", 15)
	viper.SetDefault("escalation.secondReminderMinutes", 30)
	viper.SetDefault("escalation.escalationMinutes", 60)
	viper.SetDefault("escalation.autoReassignMinutes", 120)
	viper.SetDefault("escalation.deadlineWarningPcts", []int{50, 25, 10})
	viper.SetDefault("scheduler.sweepIntervalMinutes", 5)
	viper.SetDefault("scheduler.metricsHour", 2)
	viper.SetDefault("scheduler.timezone", "UTC")
	viper.SetDefault("rabbitmq.notifyExchange", "notify.direct")
	viper.SetDefault("rabbitmq.inboundQueue", "messages.inbound")
	viper.SetDefault("api.addr", ":8080")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Fatalf("config file not found: %v", err)
		} else {
			log.Fatalf("error reading config file: %v", err)
		}
	}

	if err := viper.BindEnv("app.name", "APP_NAME"); err != nil {
		log.Fatalf("error finding APP_NAME env variable")
	}

	// Bind DB variables
	viper.BindEnv("db.host", "PG_HOST")
	viper.BindEnv("db.port", "PG_PORT")
	viper.BindEnv("db.user", "PG_USER")
	viper.BindEnv("db.password", "PG_PASS")
	viper.BindEnv("db.name", "PG_DB")

	// Bind Redis variables
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Bind RabbitMQ variables
	viper.BindEnv("rabbitmq.url", "RABBITMQ_URL")

	var config *AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("unable to decode into struct: %v", err)
	}
	addZapEncoderConfig(&config.Logger.EncoderConfig)

	if err := config.Escalation.Validate(); err != nil {
		log.Fatalf("invalid escalation policy: %v", err)
	}

	return config
}
