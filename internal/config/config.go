package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Monitor struct {
		Interval               time.Duration `mapstructure:"interval"`
		TickTimeout            time.Duration `mapstructure:"tick_timeout"`
		Parallelism            int           `mapstructure:"parallelism"`
		AnomalyBaselineWindows int           `mapstructure:"anomaly_baseline_windows"`
		ResolvedRetention      time.Duration `mapstructure:"resolved_retention"`
		SampleRetention        time.Duration `mapstructure:"sample_retention"`
	} `mapstructure:"monitor"`

	Sampler struct {
		Backend    string `mapstructure:"backend"`
		Prometheus struct {
			URL string `mapstructure:"url"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"sampler"`

	Rules struct {
		File  string `mapstructure:"file"`
		Watch bool   `mapstructure:"watch"`
	} `mapstructure:"rules"`

	Notify struct {
		DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
		Webhook         struct {
			URL string `mapstructure:"url"`
		} `mapstructure:"webhook"`
		Slack struct {
			Token      string `mapstructure:"token"`
			WebhookURL string `mapstructure:"webhook_url"`
			Channel    string `mapstructure:"channel"`
		} `mapstructure:"slack"`
		Email struct {
			SMTPHost    string   `mapstructure:"smtp_host"`
			SMTPPort    int      `mapstructure:"smtp_port"`
			From        string   `mapstructure:"from"`
			Password    string   `mapstructure:"password"`
			ToReceivers []string `mapstructure:"to_receivers"`
		} `mapstructure:"email"`
		SMS struct {
			URL        string `mapstructure:"url"`
			AccountSID string `mapstructure:"account_sid"`
			AuthToken  string `mapstructure:"auth_token"`
			From       string `mapstructure:"from"`
		} `mapstructure:"sms"`
	} `mapstructure:"notify"`

	Server struct {
		Port      int    `mapstructure:"port"`
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"server"`

	Collector struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"collector"`

	// Client is read by CLI commands that talk to a running daemon.
	Client struct {
		Server string `mapstructure:"server"`
		Token  string `mapstructure:"token"`
	} `mapstructure:"client"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "data/socialeye.db")

	v.SetDefault("monitor.interval", time.Minute)
	v.SetDefault("monitor.tick_timeout", time.Duration(0))
	v.SetDefault("monitor.parallelism", 4)
	v.SetDefault("monitor.anomaly_baseline_windows", 6)
	v.SetDefault("monitor.resolved_retention", time.Hour)
	v.SetDefault("monitor.sample_retention", 7*24*time.Hour)

	v.SetDefault("sampler.backend", "sql")
	v.SetDefault("sampler.prometheus.url", "http://localhost:9090")

	v.SetDefault("rules.file", "")
	v.SetDefault("rules.watch", false)

	v.SetDefault("notify.delivery_timeout", 10*time.Second)
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.slack.token", "")
	v.SetDefault("notify.slack.webhook_url", "")
	v.SetDefault("notify.slack.channel", "#alerts")
	v.SetDefault("notify.email.smtp_host", "")
	v.SetDefault("notify.email.smtp_port", 587)
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.password", "")
	v.SetDefault("notify.email.to_receivers", []string{})
	v.SetDefault("notify.sms.url", "")
	v.SetDefault("notify.sms.account_sid", "")
	v.SetDefault("notify.sms.auth_token", "")
	v.SetDefault("notify.sms.from", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("collector.enabled", false)
	v.SetDefault("collector.interval", 30*time.Second)

	v.SetDefault("client.server", "")
	v.SetDefault("client.token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads config.yaml from path (or the working directory when path is
// empty), applies defaults and SOCIALEYE_* environment overrides. A missing
// config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("socialeye")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Monitor.TickTimeout <= 0 {
		cfg.Monitor.TickTimeout = cfg.Monitor.Interval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Monitor.Parallelism <= 0 {
		return fmt.Errorf("monitor.parallelism must be positive, got %d", c.Monitor.Parallelism)
	}
	switch c.Sampler.Backend {
	case "sql", "prometheus", "random":
	default:
		return fmt.Errorf("unknown sampler.backend %q", c.Sampler.Backend)
	}
	return nil
}
