package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config holds all build configuration.
type Config struct {
	Context      string             `mapstructure:"context"`
	Entry        []string           `mapstructure:"entry"`
	Output       OutputConfig       `mapstructure:"output"`
	Module       ModuleConfig       `mapstructure:"module"`
	Resolve      ResolveConfig      `mapstructure:"resolve"`
	Optimization OptimizationConfig `mapstructure:"optimization"`
	Parallelism  int                `mapstructure:"parallelism"`
	FailFast     bool               `mapstructure:"fail_fast"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Log          LogConfig          `mapstructure:"log"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type OutputConfig struct {
	Path     string `mapstructure:"path"`
	Filename string `mapstructure:"filename"`
}

type ModuleConfig struct {
	Rules []RuleConfig `mapstructure:"rules"`
}

// RuleConfig selects resources by pattern and lists the loaders to run on
// them. Test is a regular expression over the resource path; Include and
// Exclude are glob patterns relative to the build context.
type RuleConfig struct {
	Test          string      `mapstructure:"test"`
	Include       []string    `mapstructure:"include"`
	Exclude       []string    `mapstructure:"exclude"`
	ResourceQuery string      `mapstructure:"resource_query"`
	Use           []UseConfig `mapstructure:"use"`
}

// UseConfig names a loader and its options.
type UseConfig struct {
	Loader  string         `mapstructure:"loader"`
	Options map[string]any `mapstructure:"options"`
}

type ResolveConfig struct {
	Extensions []string `mapstructure:"extensions"`
	MainFiles  []string `mapstructure:"main_files"`
}

type OptimizationConfig struct {
	// ModuleIDs is named, natural or deterministic.
	ModuleIDs string `mapstructure:"module_ids"`
}

type CacheConfig struct {
	// Type is none, memory, filesystem or redis.
	Type string `mapstructure:"type"`
	// Directory holds filesystem cache objects, relative to the context.
	Directory string      `mapstructure:"directory"`
	Redis     RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type MetricsConfig struct {
	// Addr serves /metrics while watching, e.g. ":9090". Empty disables it.
	Addr string `mapstructure:"addr"`
}

var (
	validModuleIDs  = map[string]bool{"named": true, "natural": true, "deterministic": true}
	validCacheTypes = map[string]bool{"": true, "none": true, "memory": true, "filesystem": true, "redis": true}
)

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if len(c.Entry) == 0 {
		warnings = append(warnings, "no entry configured; nothing will be built")
	}

	if c.Optimization.ModuleIDs != "" && !validModuleIDs[c.Optimization.ModuleIDs] {
		warnings = append(warnings, fmt.Sprintf("optimization.module_ids %q is unknown; using named", c.Optimization.ModuleIDs))
	}

	if c.Parallelism < 0 {
		warnings = append(warnings, fmt.Sprintf("parallelism %d is negative; using the number of CPUs", c.Parallelism))
	}

	if !validCacheTypes[c.Cache.Type] {
		warnings = append(warnings, fmt.Sprintf("cache.type %q is unknown; the build will fail to open the cache", c.Cache.Type))
	}

	if c.Cache.Type == "redis" && c.Cache.Redis.Addr == "" {
		warnings = append(warnings, "cache type 'redis' is configured but cache.redis.addr is empty")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	for i, r := range c.Module.Rules {
		if len(r.Use) == 0 {
			warnings = append(warnings, fmt.Sprintf("module.rules[%d] has no loaders", i))
		}
		if r.Test == "" && len(r.Include) == 0 && r.ResourceQuery == "" {
			warnings = append(warnings, fmt.Sprintf("module.rules[%d] matches every resource", i))
		}
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("context", ".")
	v.SetDefault("output.path", "dist")
	v.SetDefault("output.filename", "main.js")
	v.SetDefault("resolve.extensions", []string{".js", ".json"})
	v.SetDefault("resolve.main_files", []string{"index"})
	v.SetDefault("optimization.module_ids", "named")
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.directory", "node_modules/.cache/rspack")
	v.SetDefault("cache.redis.ttl", "24h")
	v.SetDefault("cache.redis.prefix", "rspack:loader:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")
}

// Load reads configuration from file and environment. With an empty path
// it looks for rspack.{yaml,yml,toml,json} in the working directory and
// falls back to defaults when none exists. Relative context and output
// paths are made relative to the config file's directory.
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs is Load reading the config file from fsys.
func LoadFs(fsys afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fsys)
	setDefaults(v)
	v.SetEnvPrefix("RSPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	base := "."
	if path != "" {
		v.SetConfigFile(path)
		base = filepath.Dir(path)
	} else {
		v.SetConfigName("rspack")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if !filepath.IsAbs(cfg.Context) {
		abs, err := filepath.Abs(filepath.Join(base, cfg.Context))
		if err != nil {
			return nil, fmt.Errorf("resolving context: %w", err)
		}
		cfg.Context = abs
	}
	if !filepath.IsAbs(cfg.Output.Path) {
		cfg.Output.Path = filepath.Join(cfg.Context, cfg.Output.Path)
	}
	if cfg.Cache.Directory != "" && !filepath.IsAbs(cfg.Cache.Directory) {
		cfg.Cache.Directory = filepath.Join(cfg.Context, cfg.Cache.Directory)
	}

	return &cfg, nil
}
