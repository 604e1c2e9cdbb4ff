package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "MINISHOP"
	DefaultConfigFile = "config.yaml"

	GatewaySimulated = "simulated"
	GatewayZarinpal  = "zarinpal"
)

type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Store    StoreConfig    `mapstructure:"store"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Recheck  RecheckConfig  `mapstructure:"recheck"`
	Events   EventsConfig   `mapstructure:"events"`
}

type ServiceConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type GatewayConfig struct {
	Driver          string        `mapstructure:"driver"`
	MerchantID      string        `mapstructure:"merchant_id"`
	BaseURL         string        `mapstructure:"base_url"`
	StartPayURL     string        `mapstructure:"start_pay_url"`
	CallbackURL     string        `mapstructure:"callback_url"`
	InitiateTimeout time.Duration `mapstructure:"initiate_timeout"`
	VerifyTimeout   time.Duration `mapstructure:"verify_timeout"`
	// SuccessRate only applies to the simulated driver.
	SuccessRate float64 `mapstructure:"success_rate"`
}

type CheckoutConfig struct {
	ReservationTimeout time.Duration `mapstructure:"reservation_timeout"`
}

type SweeperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Batch    int           `mapstructure:"batch"`
}

type RecheckConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	Batch          int           `mapstructure:"batch"`
	Lease          time.Duration `mapstructure:"lease"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

type EventsConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	Concurrency    int           `mapstructure:"concurrency"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "minishop")
	v.SetDefault("service.env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.path", "minishop.db")
	v.SetDefault("catalog.path", "catalog.yaml")
	v.SetDefault("gateway.driver", GatewaySimulated)
	v.SetDefault("gateway.merchant_id", "")
	v.SetDefault("gateway.base_url", "https://payment.zarinpal.com/pg/v4/payment")
	v.SetDefault("gateway.start_pay_url", "https://payment.zarinpal.com/pg/StartPay/")
	v.SetDefault("gateway.callback_url", "http://localhost:8080/payment/callback")
	v.SetDefault("gateway.initiate_timeout", 5*time.Second)
	v.SetDefault("gateway.verify_timeout", 8*time.Second)
	v.SetDefault("gateway.success_rate", 0.7)
	v.SetDefault("checkout.reservation_timeout", 15*time.Minute)
	v.SetDefault("sweeper.interval", time.Minute)
	v.SetDefault("sweeper.batch", 100)
	v.SetDefault("recheck.interval", 30*time.Second)
	v.SetDefault("recheck.batch", 50)
	v.SetDefault("recheck.lease", time.Minute)
	v.SetDefault("recheck.initial_backoff", 30*time.Second)
	v.SetDefault("recheck.max_backoff", 10*time.Minute)
	v.SetDefault("recheck.max_attempts", 5)
	v.SetDefault("events.queue_size", 1024)
	v.SetDefault("events.concurrency", 8)
	v.SetDefault("events.handler_timeout", 10*time.Second)
}

// Load reads path (or config.yaml in the working directory when path is
// empty and the file exists), then applies MINISHOP_* environment
// overrides, e.g. MINISHOP_HTTP_ADDR or MINISHOP_GATEWAY_DRIVER.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"http.shutdown_timeout":        c.HTTP.ShutdownTimeout,
		"gateway.initiate_timeout":     c.Gateway.InitiateTimeout,
		"gateway.verify_timeout":       c.Gateway.VerifyTimeout,
		"checkout.reservation_timeout": c.Checkout.ReservationTimeout,
		"sweeper.interval":             c.Sweeper.Interval,
		"recheck.interval":             c.Recheck.Interval,
		"recheck.lease":                c.Recheck.Lease,
		"recheck.initial_backoff":      c.Recheck.InitialBackoff,
		"recheck.max_backoff":          c.Recheck.MaxBackoff,
		"events.handler_timeout":       c.Events.HandlerTimeout,
	}
	for _, key := range slices.Sorted(maps.Keys(positive)) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.Recheck.MaxBackoff < c.Recheck.InitialBackoff {
		errs = append(errs, errors.New("recheck.max_backoff must not be below recheck.initial_backoff"))
	}
	if c.Recheck.MaxAttempts < 1 {
		errs = append(errs, errors.New("recheck.max_attempts must be at least 1"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	switch c.Gateway.Driver {
	case GatewaySimulated:
		if c.Gateway.SuccessRate < 0 || c.Gateway.SuccessRate > 1 {
			errs = append(errs, errors.New("gateway.success_rate must be within [0, 1]"))
		}
	case GatewayZarinpal:
		if c.Gateway.MerchantID == "" {
			errs = append(errs, errors.New("gateway.merchant_id is required for the zarinpal driver"))
		}
		if c.Gateway.BaseURL == "" || c.Gateway.StartPayURL == "" {
			errs = append(errs, errors.New("gateway.base_url and gateway.start_pay_url are required for the zarinpal driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.driver %q is not one of %s, %s", c.Gateway.Driver, GatewaySimulated, GatewayZarinpal))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
