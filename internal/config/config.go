// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/hostcrawl/internal/crawler"
	"github.com/JakeFAU/hostcrawl/internal/telemetry"
)

// Fetcher kinds accepted by fetcher.kind.
const (
	FetcherRaw      = "raw"
	FetcherColly    = "colly"
	FetcherHeadless = "headless"
	// FetcherAuto probes with the raw fetcher and renders client side apps
	// headlessly.
	FetcherAuto = "auto"
)

var fetcherKinds = []string{FetcherRaw, FetcherColly, FetcherHeadless, FetcherAuto}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"seed":        "crawler.seeds",
	"max-pages":   "crawler.max_pages",
	"max-workers": "crawler.max_workers",
	"delay":       "crawler.request_delay",
	"output":      "output.path",
	"fetcher":     "fetcher.kind",
	"addr":        "server.addr",
}

// Config captures all knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Progress ProgressConfig `mapstructure:"progress"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Server   ServerConfig   `mapstructure:"server"`
}

// CrawlerConfig governs the crawl itself.
type CrawlerConfig struct {
	Seeds        []string      `mapstructure:"seeds"`
	MaxPages     int           `mapstructure:"max_pages"`
	MaxWorkers   int           `mapstructure:"max_workers"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
	MaxFrontier  int           `mapstructure:"max_frontier"`
	DrainOnStop  bool          `mapstructure:"drain_on_stop"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// FetcherConfig selects and tunes the page fetcher.
type FetcherConfig struct {
	Kind                string `mapstructure:"kind"`
	MaxBodyBytes        int64  `mapstructure:"max_body_bytes"`
	HeadlessMaxParallel int    `mapstructure:"headless_max_parallel"`
	// PromoteMinBytes is the page size below which script-heavy pages are
	// rendered by the auto fetcher.
	PromoteMinBytes int `mapstructure:"promote_min_bytes"`
}

// OutputConfig lists result destinations. Only Path is always used.
type OutputConfig struct {
	Path          string `mapstructure:"path"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSObject     string `mapstructure:"gcs_object"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	// File adds a rotated JSON log file next to the console output.
	File string `mapstructure:"file"`
}

// ProgressConfig routes progress events beyond the log and metrics sinks.
type ProgressConfig struct {
	// RedisAddr enables the Redis stream sink when set.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisStream   string `mapstructure:"redis_stream"`
	RedisMaxLen   int64  `mapstructure:"redis_max_len"`
}

// TracingConfig selects span sampling and export.
type TracingConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from defaults, the optional file at path, CRAWLER_*
// environment variables and any changed flags in fs, in increasing order of
// precedence.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := bindFlags(v, fs); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// Env values arrive as one string; allow comma separated seeds there.
	cfg.Crawler.Seeds = splitSeeds(cfg.Crawler.Seeds)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

func splitSeeds(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.seeds", []string{})
	v.SetDefault("crawler.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("crawler.max_workers", crawler.DefaultMaxWorkers)
	v.SetDefault("crawler.request_delay", crawler.DefaultRequestDelay)
	v.SetDefault("crawler.job_timeout", crawler.DefaultJobTimeout)
	v.SetDefault("crawler.max_frontier", 0)
	v.SetDefault("crawler.drain_on_stop", false)
	v.SetDefault("crawler.user_agent", "hostcrawl/1.0")
	v.SetDefault("fetcher.kind", FetcherRaw)
	v.SetDefault("fetcher.max_body_bytes", 4<<20)
	v.SetDefault("fetcher.headless_max_parallel", 4)
	v.SetDefault("fetcher.promote_min_bytes", 2048)
	v.SetDefault("output.path", "results.txt")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_object", "")
	v.SetDefault("output.postgres_dsn", "")
	v.SetDefault("output.postgres_table", "crawl_results")
	v.SetDefault("output.pubsub_project", "")
	v.SetDefault("output.pubsub_topic", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("progress.redis_addr", "")
	v.SetDefault("progress.redis_password", "")
	v.SetDefault("progress.redis_db", 0)
	v.SetDefault("progress.redis_stream", "hostcrawl:progress")
	v.SetDefault("progress.redis_max_len", 10000)
	v.SetDefault("tracing.service_name", telemetry.DefaultServiceName)
	v.SetDefault("tracing.exporter", telemetry.ExporterNone)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("server.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.CrawlerConfig().Validate(); err != nil {
		return fmt.Errorf("crawler: %w", err)
	}
	if !slices.Contains(fetcherKinds, c.Fetcher.Kind) {
		return fmt.Errorf("fetcher.kind must be one of %s, got %q", strings.Join(fetcherKinds, ", "), c.Fetcher.Kind)
	}
	if c.Fetcher.MaxBodyBytes < 0 {
		return errors.New("fetcher.max_body_bytes must be >= 0")
	}
	if (c.Fetcher.Kind == FetcherHeadless || c.Fetcher.Kind == FetcherAuto) && c.Fetcher.HeadlessMaxParallel <= 0 {
		return errors.New("fetcher.headless_max_parallel must be > 0 when headless rendering is enabled")
	}
	if c.Fetcher.PromoteMinBytes < 0 {
		return errors.New("fetcher.promote_min_bytes must be >= 0")
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return errors.New("output.path is required")
	}
	if (c.Output.PubSubProject == "") != (c.Output.PubSubTopic == "") {
		return errors.New("output.pubsub_project and output.pubsub_topic must be set together")
	}
	if c.Progress.RedisDB < 0 {
		return errors.New("progress.redis_db must be >= 0")
	}
	if c.Progress.RedisMaxLen < 0 {
		return errors.New("progress.redis_max_len must be >= 0")
	}
	switch c.Tracing.Exporter {
	case telemetry.ExporterNone, telemetry.ExporterLog, "":
	default:
		return fmt.Errorf("tracing.exporter must be %s or %s, got %q", telemetry.ExporterNone, telemetry.ExporterLog, c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}

// CrawlerConfig projects the crawl settings into crawler.Config.
func (c Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		Seeds:        append([]string(nil), c.Crawler.Seeds...),
		MaxPages:     c.Crawler.MaxPages,
		MaxWorkers:   c.Crawler.MaxWorkers,
		RequestDelay: c.Crawler.RequestDelay,
		JobTimeout:   c.Crawler.JobTimeout,
		MaxFrontier:  c.Crawler.MaxFrontier,
		DrainOnStop:  c.Crawler.DrainOnStop,
	}
}
