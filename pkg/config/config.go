package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type APIConfig struct {
	Port             string
	DBDSN            string
	EditorSessionTTL time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	FromName string
	From     string
}

type WorkerConfig struct {
	DBDSN             string
	RMQURL            string
	Queue             string
	SchedulerInterval time.Duration
	ClaimBatch        int
	MaxRetries        int
	// MailerMode is "smtp" or "log".
	MailerMode string
	SMTP       SMTPConfig
}

var (
	API    APIConfig
	Worker WorkerConfig
)

// LoadOptions controls where values are read from besides the environment.
type LoadOptions struct {
	EnvFile string
	Dir     string
}

func newViper(opts LoadOptions) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("QUEUE", "send_jobs")
	v.SetDefault("EDITOR_SESSION_TTL", "30m")
	v.SetDefault("SCHEDULER_INTERVAL", "15s")
	v.SetDefault("CLAIM_BATCH", 10)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("MAILER", "log")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM_NAME", "Blockmail")

	if opts.EnvFile != "" {
		dir := opts.Dir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("get working dir: %w", err)
			}
			dir = wd
		}
		v.SetConfigName(opts.EnvFile)
		v.SetConfigType("env")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v, nil
}

func required(v *viper.Viper, keys ...string) error {
	for _, k := range keys {
		if v.GetString(k) == "" {
			return fmt.Errorf("required env %s is not set", k)
		}
	}
	return nil
}

func LoadAPI(opts LoadOptions) (APIConfig, error) {
	v, err := newViper(opts)
	if err != nil {
		return APIConfig{}, err
	}
	if err := required(v, "DB_DSN"); err != nil {
		return APIConfig{}, err
	}
	return APIConfig{
		Port:             v.GetString("PORT"),
		DBDSN:            v.GetString("DB_DSN"),
		EditorSessionTTL: v.GetDuration("EDITOR_SESSION_TTL"),
	}, nil
}

func LoadWorker(opts LoadOptions) (WorkerConfig, error) {
	v, err := newViper(opts)
	if err != nil {
		return WorkerConfig{}, err
	}
	if err := required(v, "DB_DSN", "RMQ_URL"); err != nil {
		return WorkerConfig{}, err
	}
	cfg := WorkerConfig{
		DBDSN:             v.GetString("DB_DSN"),
		RMQURL:            v.GetString("RMQ_URL"),
		Queue:             v.GetString("QUEUE"),
		SchedulerInterval: v.GetDuration("SCHEDULER_INTERVAL"),
		ClaimBatch:        v.GetInt("CLAIM_BATCH"),
		MaxRetries:        v.GetInt("MAX_RETRIES"),
		MailerMode:        strings.ToLower(v.GetString("MAILER")),
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			FromName: v.GetString("SMTP_FROM_NAME"),
			From:     v.GetString("SMTP_FROM_EMAIL"),
		},
	}
	switch cfg.MailerMode {
	case "log":
	case "smtp":
		if err := required(v, "SMTP_HOST", "SMTP_FROM_EMAIL"); err != nil {
			return WorkerConfig{}, err
		}
	default:
		return WorkerConfig{}, fmt.Errorf("unknown MAILER %q", cfg.MailerMode)
	}
	if cfg.SchedulerInterval <= 0 {
		return WorkerConfig{}, fmt.Errorf("SCHEDULER_INTERVAL must be positive")
	}
	return cfg, nil
}

func MustLoadAPI() {
	cfg, err := LoadAPI(LoadOptions{EnvFile: ".env"})
	if err != nil {
		log.Fatal(err)
	}
	API = cfg
}

func MustLoadWorker() {
	cfg, err := LoadWorker(LoadOptions{EnvFile: ".env"})
	if err != nil {
		log.Fatal(err)
	}
	Worker = cfg
}
