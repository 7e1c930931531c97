// Package config assembles the daemon configuration from defaults, an
// optional config file and PLAYERD_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the fully processed daemon configuration.
type Config struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string
	UserAgent  string

	// SinkQuotaBytes bounds the in-memory sink; zero means unlimited.
	SinkQuotaBytes int

	CacheTTL      time.Duration
	CacheMaxBytes int

	// QuotaBackoff and PaceInterval feed the player's retry scheduling.
	QuotaBackoff time.Duration
	PaceInterval time.Duration

	// ClockInterval is the tick of the simulated playback surfaces.
	ClockInterval time.Duration
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PLAYERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("sink.quota_bytes", 64<<20)
	v.SetDefault("cache.ttl", "60s")
	v.SetDefault("cache.max_bytes", 128<<20)
	v.SetDefault("player.quota_backoff", "1000ms")
	v.SetDefault("player.pace_interval", "200ms")
	v.SetDefault("surface.clock_interval", "250ms")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return &Config{
		ListenAddr:     v.GetString("listen"),
		LogLevel:       v.GetString("log.level"),
		LogFormat:      v.GetString("log.format"),
		UserAgent:      v.GetString("fetch.user_agent"),
		SinkQuotaBytes: v.GetInt("sink.quota_bytes"),
		CacheTTL:       v.GetDuration("cache.ttl"),
		CacheMaxBytes:  v.GetInt("cache.max_bytes"),
		QuotaBackoff:   v.GetDuration("player.quota_backoff"),
		PaceInterval:   v.GetDuration("player.pace_interval"),
		ClockInterval:  v.GetDuration("surface.clock_interval"),
	}, nil
}
