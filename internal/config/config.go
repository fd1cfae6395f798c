package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	Secret       string        `mapstructure:"secret"`
	TokenSecret  string        `mapstructure:"token_secret"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	DirectoryTTL time.Duration `mapstructure:"directory_ttl"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "codemesh-dev-secret")
	v.SetDefault("token_secret", "")
	v.SetDefault("read_limit", 262144)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("redis_addr", "")
	v.SetDefault("directory_ttl", "24h")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
