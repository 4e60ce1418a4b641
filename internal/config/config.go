package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// TargetConfig describes the monitored endpoint.
type TargetConfig struct {
	URL                string `yaml:"url" json:"url"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	FollowRedirects    bool   `yaml:"follow_redirects" json:"follow_redirects"`
}

// ScheduleConfig controls the probing cadence.
type ScheduleConfig struct {
	// Interval is both the cadence and the wall-clock boundary ticks align to.
	Interval   Duration `yaml:"interval" json:"interval"`
	RetryDelay Duration `yaml:"retry_delay" json:"retry_delay"`
}

// Profile is one request identity tried by the prober.
type Profile struct {
	Name    string            `yaml:"name" json:"name"`
	Timeout Duration          `yaml:"timeout" json:"timeout"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// ProbeConfig holds the ordered fallback profiles.
type ProbeConfig struct {
	Timeout  Duration  `yaml:"timeout" json:"timeout"`
	Profiles []Profile `yaml:"profiles" json:"profiles"`
}

// HistoryConfig sizes the in-memory ring.
type HistoryConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address     string   `yaml:"address" json:"address"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// StorageConfig holds storage settings. An empty Path keeps outcomes in memory only.
type StorageConfig struct {
	Path      string `yaml:"path" json:"path"`
	WarmStart bool   `yaml:"warm_start" json:"warm_start"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// Config is the root application configuration.
type Config struct {
	Target   TargetConfig   `yaml:"target" json:"target"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Probe    ProbeConfig    `yaml:"probe" json:"probe"`
	History  HistoryConfig  `yaml:"history" json:"history"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// DefaultProfiles returns the built-in identities: two desktop browsers, then curl.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name: "browser-legacy",
			Headers: map[string]string{
				"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/91.0.4472.124 Safari/537.36",
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.5",
				"Connection":      "keep-alive",
			},
		},
		{
			Name: "browser",
			Headers: map[string]string{
				"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Accept":          "*/*",
				"Accept-Language": "en-US,en;q=0.9",
				"Connection":      "keep-alive",
			},
		},
		{
			Name: "curl",
			Headers: map[string]string{
				"User-Agent": "curl/7.64.1",
				"Accept":     "*/*",
			},
		},
	}
}

// Default returns a Config with every optional field populated.
func Default() Config {
	return Config{
		Target: TargetConfig{
			InsecureSkipVerify: true,
			FollowRedirects:    true,
		},
		Schedule: ScheduleConfig{
			Interval:   Duration{time.Minute},
			RetryDelay: Duration{60 * time.Second},
		},
		Probe: ProbeConfig{
			Timeout:  Duration{5 * time.Second},
			Profiles: DefaultProfiles(),
		},
		History: HistoryConfig{Capacity: 30},
		Server: ServerConfig{
			Address:     ":5000",
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{WarmStart: true},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// Load reads, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, fills per-profile timeouts and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.Probe.Profiles) == 0 {
		cfg.Probe.Profiles = DefaultProfiles()
	}
	for i := range cfg.Probe.Profiles {
		if cfg.Probe.Profiles[i].Timeout.Duration == 0 {
			cfg.Probe.Profiles[i].Timeout = cfg.Probe.Timeout
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the whole configuration tree.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Target),
		validation.Field(&c.Schedule),
		validation.Field(&c.Probe),
		validation.Field(&c.History),
		validation.Field(&c.Server),
		validation.Field(&c.Logging),
	)
}

func (t TargetConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.URL, validation.Required, is.URL, validation.By(httpScheme)),
	)
}

func (s ScheduleConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Interval, validation.By(atLeast(time.Second))),
		validation.Field(&s.RetryDelay, validation.By(atLeast(time.Millisecond))),
	)
}

func (p ProbeConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Timeout, validation.By(atLeast(time.Millisecond))),
		validation.Field(&p.Profiles, validation.Required, validation.By(uniqueProfileNames)),
	)
}

func (p Profile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Timeout, validation.By(atLeast(time.Millisecond))),
	)
}

func (h HistoryConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Capacity, validation.Required, validation.Min(1), validation.Max(10000)),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required),
	)
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("text", "json")),
		validation.Field(&l.MaxSizeMB, validation.Min(0)),
		validation.Field(&l.MaxBackups, validation.Min(0)),
		validation.Field(&l.MaxAgeDays, validation.Min(0)),
	)
}

func atLeast(min time.Duration) validation.RuleFunc {
	return func(value interface{}) error {
		d, ok := value.(Duration)
		if !ok {
			return errors.New("must be a duration")
		}
		if d.Duration < min {
			return fmt.Errorf("must be at least %s", min)
		}
		return nil
	}
}

func httpScheme(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	return nil
}

func uniqueProfileNames(value interface{}) error {
	profiles, _ := value.([]Profile)
	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if seen[p.Name] {
			return fmt.Errorf("duplicate profile name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
