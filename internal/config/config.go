package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL        string
	PGDSN         string
	StateFile     string
	AuditFile     string
	RequestsFile  string
	PoolAddress   string
	OracleAddress string
	DomainName    string
	DomainVersion string
	GuardBps      uint64
	PollInterval  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	Once          bool
	LogLevel      string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("state-file", "./data/state.json")
	v.SetDefault("audit-file", "./data/actions.jsonl")
	v.SetDefault("requests-file", "./data/requests.json")
	v.SetDefault("domain-name", "RangeKeeper")
	v.SetDefault("domain-version", "1")
	v.SetDefault("guard-bps", uint64(1000))
	v.SetDefault("poll-interval", 15*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:        v.GetString("rpc"),
		PGDSN:         v.GetString("pg-dsn"),
		StateFile:     v.GetString("state-file"),
		AuditFile:     v.GetString("audit-file"),
		RequestsFile:  v.GetString("requests-file"),
		PoolAddress:   v.GetString("pool"),
		OracleAddress: v.GetString("oracle"),
		DomainName:    v.GetString("domain-name"),
		DomainVersion: v.GetString("domain-version"),
		GuardBps:      v.GetUint64("guard-bps"),
		PollInterval:  v.GetDuration("poll-interval"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		Once:          v.GetBool("once"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
