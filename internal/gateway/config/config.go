package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	CatalogPath  string
	CatalogWatch bool

	RateLimit       int
	RateWindow      time.Duration
	RateAlgorithm   string
	DispatchTimeout time.Duration
	MaxPromptBytes  int

	Metrics   MetricsConfig
	Reports   ReportConfig
	Providers ProviderKeys
}

type MetricsConfig struct {
	Backend     string
	CSVPath     string
	SQLitePath  string
	PostgresDSN string
	Buffer      int
}

type ReportConfig struct {
	CacheSize int
	CacheTTL  time.Duration
	S3        S3Config
}

type S3Config struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type ProviderKeys struct {
	Groq       string
	OpenRouter string
	Gemini     string
}

// Key returns the credential for a provider, or "" when it needs none.
func (p ProviderKeys) Key(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "groq":
		return p.Groq
	case "openrouter":
		return p.OpenRouter
	case "gemini":
		return p.Gemini
	}
	return ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("nexus", flag.ContinueOnError)
	port := fs.String("port", ":8081", "server port")
	catalog := fs.String("catalog", "", "model catalog (TOML)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if envPort := strings.TrimSpace(os.Getenv("PORT")); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	var errs []string
	intEnv := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durEnv := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := &Config{
		Port:            *port,
		Env:             env,
		LogLevel:        firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
		LogFormat:       firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_FORMAT")), "text"),
		CatalogPath:     firstNonEmpty(strings.TrimSpace(*catalog), strings.TrimSpace(os.Getenv("NEXUS_CATALOG"))),
		CatalogWatch:    envBool("NEXUS_CATALOG_WATCH", false),
		RateLimit:       intEnv("RATE_LIMIT", 5),
		RateWindow:      durEnv("RATE_WINDOW", 60*time.Second),
		RateAlgorithm:   firstNonEmpty(strings.TrimSpace(os.Getenv("RATE_ALGORITHM")), "fixed"),
		DispatchTimeout: durEnv("DISPATCH_TIMEOUT", 30*time.Second),
		MaxPromptBytes:  intEnv("MAX_PROMPT_BYTES", 32*1024),
		Metrics: MetricsConfig{
			Backend:     strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("METRICS_BACKEND")), "memory")),
			CSVPath:     firstNonEmpty(strings.TrimSpace(os.Getenv("METRICS_CSV_PATH")), "data/metrics/metrics.csv"),
			SQLitePath:  firstNonEmpty(strings.TrimSpace(os.Getenv("METRICS_SQLITE_PATH")), "data/metrics/metrics.db"),
			PostgresDSN: strings.TrimSpace(os.Getenv("METRICS_PG_DSN")),
			Buffer:      intEnv("METRICS_BUFFER", 1024),
		},
		Reports: ReportConfig{
			CacheSize: intEnv("REPORT_CACHE_SIZE", 256),
			CacheTTL:  durEnv("REPORT_CACHE_TTL", time.Hour),
			S3:        loadS3Config(env),
		},
		Providers: ProviderKeys{
			Groq:       strings.TrimSpace(os.Getenv("GROQ_API_KEY")),
			OpenRouter: strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
			Gemini:     firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))),
		},
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Metrics.Backend {
	case "memory", "csv", "sqlite":
	case "postgres":
		if c.Metrics.PostgresDSN == "" {
			return fmt.Errorf("config: METRICS_PG_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown METRICS_BACKEND %q", c.Metrics.Backend)
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("config: RATE_LIMIT and RATE_WINDOW must be positive")
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("config: DISPATCH_TIMEOUT must be positive")
	}
	return nil
}

func loadS3Config(env string) S3Config {
	if isLocal(env) {
		return localS3Config()
	}
	endpoint := strings.TrimSpace(os.Getenv("REPORT_S3_ENDPOINT"))
	return S3Config{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("REPORT_S3_REGION")), "us-east-1"),
		AccessKey: strings.TrimSpace(os.Getenv("REPORT_S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("REPORT_S3_SECRET_KEY")),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("REPORT_S3_BUCKET")), "nexus-reports"),
		UseSSL:    envBool("REPORT_S3_USE_SSL", true),
	}
}

func isLocal(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "local")
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the standard logger.
func (c *Config) ConfigureLogging() error {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)
	switch strings.ToLower(c.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return v, nil
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return d, nil
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
