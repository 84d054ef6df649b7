package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	Backend string     `mapstructure:"backend"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type BucketConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type Config struct {
	Debug        bool                    `mapstructure:"debug"`
	SiteName     string                  `mapstructure:"siteName"` // also the TOTP issuer
	BaseURL      string                  `mapstructure:"baseURL"`
	MasterKey    string                  `mapstructure:"masterKey"` // token signing key, loaded once at startup
	ListenAddr   string                  `mapstructure:"listenAddr"`
	AllowOrigins []string                `mapstructure:"allowOrigins"`
	Redis        RedisConfig             `mapstructure:"redis"`
	MySQL        MySQLConfig             `mapstructure:"mysql"`
	Mail         MailConfig              `mapstructure:"mail"`
	RateLimits   map[string]BucketConfig `mapstructure:"rateLimits"`
}

// DefaultRateLimits are the buckets consumed by the request gate. Buckets not
// present here or in the config file are treated as unlimited.
var DefaultRateLimits = map[string]BucketConfig{
	"global_ip":            {Limit: 100, Window: time.Minute},
	"login_ip":             {Limit: 20, Window: time.Minute},
	"login_user":           {Limit: 5, Window: time.Minute},
	"pwreset_request_ip":   {Limit: 5, Window: 15 * time.Minute},
	"pwreset_request_user": {Limit: 3, Window: 15 * time.Minute},
	"pwreset_confirm_ip":   {Limit: 10, Window: 10 * time.Minute},
}

func (c *Config) Sanitize() error {
	if c.MasterKey == "" {
		return errors.New("masterKey is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = "medauth"
	}
	if c.RateLimits == nil {
		c.RateLimits = make(map[string]BucketConfig)
	}
	for name, spec := range DefaultRateLimits {
		if _, ok := c.RateLimits[name]; !ok {
			c.RateLimits[name] = spec
		}
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
