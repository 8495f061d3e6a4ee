package remember

import (
	"context"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-config/cfgx"
	"github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
	"github.com/robfig/cron/v3"
)

// DefaultPurgeSchedule runs the expired token purge hourly
const DefaultPurgeSchedule = "0 * * * *"

var cookieNamePattern = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Config holds the file or environment driven remember-me settings
type Config struct {
	Key                  string `koanf:"key" mapstructure:"key"`
	TokenValiditySeconds int    `koanf:"token_validity_seconds" mapstructure:"token_validity_seconds"`
	UseSecureCookie      *bool  `koanf:"use_secure_cookie" mapstructure:"use_secure_cookie"`
	Parameter            string `koanf:"parameter" mapstructure:"parameter"`
	CookieName           string `koanf:"cookie_name" mapstructure:"cookie_name"`
	CookieDomain         string `koanf:"cookie_domain" mapstructure:"cookie_domain"`
	AlwaysRemember       bool   `koanf:"always_remember" mapstructure:"always_remember"`
	SlidingExpiration    *bool  `koanf:"sliding_expiration" mapstructure:"sliding_expiration"`
	PurgeSchedule        string `koanf:"purge_schedule" mapstructure:"purge_schedule"`
}

func DefaultConfig() Config {
	sliding := true
	return Config{
		TokenValiditySeconds: int(DefaultTokenValidity.Seconds()),
		Parameter:            DefaultParameter,
		CookieName:           DefaultCookieName,
		SlidingExpiration:    &sliding,
		PurgeSchedule:        DefaultPurgeSchedule,
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Key, validation.Length(0, 512)),
		validation.Field(&c.Parameter, validation.Required, validation.Length(1, 128)),
		validation.Field(&c.CookieName, validation.Required, validation.Match(cookieNamePattern)),
		validation.Field(&c.CookieDomain, validation.Length(0, 253)),
		validation.Field(&c.PurgeSchedule, validation.By(validateCronSchedule)),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid remember-me config").
			WithTextCode(TextCodeInvalidConfig)
	}
	return nil
}

func validateCronSchedule(value any) error {
	schedule, _ := value.(string)
	if strings.TrimSpace(schedule) == "" {
		return nil
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return errors.New("must be a five field cron schedule", errors.CategoryBadInput)
	}
	return nil
}

// RawConfigLoader loads untyped settings, for example from a go-config
// container or a decoded file.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// RawConfigLoaderFunc adapts a function to RawConfigLoader
type RawConfigLoaderFunc func(ctx context.Context) (map[string]any, error)

func (f RawConfigLoaderFunc) LoadRaw(ctx context.Context) (map[string]any, error) {
	return f(ctx)
}

// LoadConfig merges DefaultConfig, the values from loader and runtime
// overrides, in increasing precedence, and validates the result.
// loader may be nil.
func LoadConfig(ctx context.Context, loader RawConfigLoader, runtime Config) (Config, error) {
	defaults := DefaultConfig()

	loaded := Config{}
	if loader != nil {
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return Config{}, errors.Wrap(err, errors.CategoryInternal, "failed to load remember-me config")
		}
		loaded, err = cfgx.Build[Config](raw)
		if err != nil {
			return Config{}, errors.Wrap(err, errors.CategoryBadInput, "failed to decode remember-me config").
				WithTextCode(TextCodeInvalidConfig)
		}
	}

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryInternal, "remember-me options stack build failed")
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryInternal, "remember-me options merge failed")
	}

	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Key) != "" {
		layer["key"] = cfg.Key
	}
	if includeZero || cfg.TokenValiditySeconds != 0 {
		layer["token_validity_seconds"] = cfg.TokenValiditySeconds
	}
	if cfg.UseSecureCookie != nil {
		layer["use_secure_cookie"] = *cfg.UseSecureCookie
	}
	if includeZero || strings.TrimSpace(cfg.Parameter) != "" {
		layer["parameter"] = cfg.Parameter
	}
	if includeZero || strings.TrimSpace(cfg.CookieName) != "" {
		layer["cookie_name"] = cfg.CookieName
	}
	if includeZero || strings.TrimSpace(cfg.CookieDomain) != "" {
		layer["cookie_domain"] = cfg.CookieDomain
	}
	if includeZero || cfg.AlwaysRemember {
		layer["always_remember"] = cfg.AlwaysRemember
	}
	if cfg.SlidingExpiration != nil {
		layer["sliding_expiration"] = *cfg.SlidingExpiration
	}
	if includeZero || strings.TrimSpace(cfg.PurgeSchedule) != "" {
		layer["purge_schedule"] = cfg.PurgeSchedule
	}
	return layer
}
