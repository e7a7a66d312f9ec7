// Package config loads the server's configuration via viper: a config.yaml
// file with environment-variable override, unmarshaled into a typed Config.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the server's full runtime configuration.
type Config struct {
	DataDir             string `mapstructure:"data_dir"`
	ListenAddr          string `mapstructure:"listen_addr"`
	BufferPoolCapacity  int    `mapstructure:"buffer_pool_capacity"`
	ConcurrencyProtocol string `mapstructure:"concurrency_protocol"`
	CheckpointInterval  int    `mapstructure:"checkpoint_interval_commits"`
	LogPath             string `mapstructure:"log_path"`
	MaxConcurrentConns  int    `mapstructure:"max_concurrent_connections"`
	ReceiveTimeoutMs    int    `mapstructure:"receive_timeout_ms"`
}

// Default returns the configuration used when no config.yaml is present.
func Default() Config {
	return Config{
		DataDir:             "data",
		ListenAddr:          "127.0.0.1:5761",
		BufferPoolCapacity:  100,
		ConcurrencyProtocol: "2pl",
		CheckpointInterval:  10,
		LogPath:             "logs/mDBMS.log",
		MaxConcurrentConns:  64,
		ReceiveTimeoutMs:    1000,
	}
}

// Load reads configPath (if it exists) layered over Default(), with
// MDBMS_-prefixed environment variables taking precedence over both, the
// way the example pack's service configs wire viper.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("MDBMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("buffer_pool_capacity", cfg.BufferPoolCapacity)
	v.SetDefault("concurrency_protocol", cfg.ConcurrencyProtocol)
	v.SetDefault("checkpoint_interval_commits", cfg.CheckpointInterval)
	v.SetDefault("log_path", cfg.LogPath)
	v.SetDefault("max_concurrent_connections", cfg.MaxConcurrentConns)
	v.SetDefault("receive_timeout_ms", cfg.ReceiveTimeoutMs)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
