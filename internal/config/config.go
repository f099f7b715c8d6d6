package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LDAPConfig holds directory connection settings.
type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
}

// WorkerConfig holds scheduler worker cadence settings. Cron is a 5-field
// expression; Interval, when positive, takes precedence over Cron.
type WorkerConfig struct {
	Cron     string
	Interval time.Duration
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Addr          string
	AuthToken     string
	LogLevel      string
	LogFormat     string
	StateDir      string
	Mode          string
	UseUTC        bool
	ShutdownGrace time.Duration
	WebhookURL    string
	Worker        WorkerConfig
	LDAP          LDAPConfig
}

const (
	defaultAddr          = "0.0.0.0:7070"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultMode          = "http"
	defaultWorkerCron    = "0 3 * * *"
	defaultShutdownGrace = 5 * time.Second
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// Parse builds the configuration from CLI flags, environment variables, an
// optional .env file and defaults, in that order of precedence.
func Parse() (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "dirconsole", ".env"))
	}
	_ = godotenv.Load(envFiles...) // optional

	cfg := &Config{
		Addr:          getEnvString("DIRCONSOLE_ADDR", defaultAddr),
		AuthToken:     getEnvString("DIRCONSOLE_AUTH_TOKEN", ""),
		LogLevel:      getEnvString("DIRCONSOLE_LOG_LEVEL", defaultLogLevel),
		LogFormat:     getEnvString("DIRCONSOLE_LOG_FORMAT", defaultLogFormat),
		StateDir:      getEnvString("DIRCONSOLE_STATE_DIR", ""),
		Mode:          getEnvString("DIRCONSOLE_MODE", defaultMode),
		UseUTC:        getEnvBool("DIRCONSOLE_USE_UTC", false),
		ShutdownGrace: getEnvDuration("DIRCONSOLE_SHUTDOWN_GRACE", defaultShutdownGrace),
		WebhookURL:    getEnvString("DIRCONSOLE_WEBHOOK_URL", ""),
		Worker: WorkerConfig{
			Cron:     getEnvString("DIRCONSOLE_WORKER_CRON", defaultWorkerCron),
			Interval: getEnvDuration("DIRCONSOLE_WORKER_INTERVAL", 0),
		},
		LDAP: LDAPConfig{
			URL:          getEnvString("DIRCONSOLE_LDAP_URL", ""),
			BindDN:       getEnvString("DIRCONSOLE_LDAP_BIND_DN", ""),
			BindPassword: getEnvString("DIRCONSOLE_LDAP_BIND_PASSWORD", ""),
			BaseDN:       getEnvString("DIRCONSOLE_LDAP_BASE_DN", ""),
		},
	}

	var (
		addr           string
		stateDir       string
		logLevel       string
		mode           string
		workerCron     string
		workerInterval time.Duration
		useUTC         bool
		shutdownGrace  time.Duration
	)
	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the database")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&mode, "mode", "", "Serve mode: http, mcp or both")
	flag.StringVar(&workerCron, "worker-cron", "", "5-field cron expression for the worker cadence")
	flag.DurationVar(&workerInterval, "worker-interval", 0, "Fixed worker interval (overrides cron when set)")
	flag.BoolVar(&useUTC, "use-utc", false, "Use UTC for cadence evaluation instead of system local time")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	flag.Parse()

	if addr != "" {
		cfg.Addr = addr
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if workerCron != "" {
		cfg.Worker.Cron = workerCron
	}
	if workerInterval > 0 {
		cfg.Worker.Interval = workerInterval
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "use-utc":
			cfg.UseUTC = useUTC
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q (want http, mcp or both)", cfg.Mode)
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "dirconsole")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
