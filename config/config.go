package config

import (
	"time"

	"gorealisbridge/backoff"
)

type Configuration struct {
	// Server config
	Server struct {
		Addr      string `yaml:"addr"`
		UseSSL    bool   `yaml:"ssl" envconfig:"ssl"`
		CertFile  string `yaml:"cert_file" split_words:"true"`
		KeyFile   string `yaml:"key_file" split_words:"true"`
		LogLevel  string `yaml:"log_level" split_words:"true"`
		LogFormat string `yaml:"log_format" split_words:"true"`
	} `yaml:"server"`
	// journal storage
	Journal struct {
		Backend     string `yaml:"backend"`
		DSN         string `yaml:"dsn" envconfig:"dsn"`
		RedisHost   string `yaml:"redis_host" split_words:"true"`
		RedisPort   int    `yaml:"redis_port" split_words:"true"`
		AutoMigrate bool   `yaml:"auto_migrate" split_words:"true"`
		// retry policy for transient storage failures
		RetryAttempts     uint          `yaml:"retry_attempts" split_words:"true"`
		RetryInitialDelay time.Duration `yaml:"retry_initial_delay" split_words:"true"`
		RetryMaxDelay     time.Duration `yaml:"retry_max_delay" split_words:"true"`
	} `yaml:"journal"`
	// substrate side
	Realis struct {
		URL           string        `yaml:"url" envconfig:"url"`
		Pallet        string        `yaml:"pallet"`
		SS58Prefix    uint16        `yaml:"ss58_prefix" envconfig:"ss58_prefix"`
		SubmitTimeout time.Duration `yaml:"submit_timeout" split_words:"true"`
		StartBlock    uint64        `yaml:"start_block" split_words:"true"`
		// important private stuff
		Seed string `yaml:"seed"`
	} `yaml:"realis"`
	// EVM side
	BSC struct {
		URL           string        `yaml:"url" envconfig:"url"`
		ChainID       int64         `yaml:"chain_id" envconfig:"chain_id"`
		Contract      string        `yaml:"contract"`
		Confirmations uint64        `yaml:"confirmations"`
		GasLimit      uint64        `yaml:"gas_limit" split_words:"true"`
		SubmitTimeout time.Duration `yaml:"submit_timeout" split_words:"true"`
		StartBlock    uint64        `yaml:"start_block" split_words:"true"`
		// important private stuff
		PrivateKey string `yaml:"private_key" split_words:"true"`
	} `yaml:"bsc"`
	Pipeline struct {
		ChannelSize  int           `yaml:"channel_size" split_words:"true"`
		RestartDelay time.Duration `yaml:"restart_delay" split_words:"true"`
		// age after which an InProgress record is reported as stuck
		StuckAfter time.Duration `yaml:"stuck_after" split_words:"true"`
	} `yaml:"pipeline"`
	// optional outcome notifications
	NATS struct {
		URL     string `yaml:"url" envconfig:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats" envconfig:"nats"`
}

// environment variables are prefixed with this, e.g. BRIDGE_BSC_PRIVATE_KEY
const EnvPrefix = "BRIDGE"

const (
	DefaultAddr              = ":8080"
	DefaultPallet            = "RealisBridge"
	DefaultSubmitTimeout     = 2 * time.Minute
	DefaultConfirmations     = 3
	DefaultGasLimit          = 500000
	DefaultChannelSize       = 64
	DefaultRestartDelay      = 10 * time.Second
	DefaultStuckAfter        = 30 * time.Minute
	DefaultNATSSubjectPrefix = "bridge"
)

// RetryPolicy is the journal retry policy assembled from the config.
func (c *Configuration) RetryPolicy() backoff.Policy {
	return backoff.Policy{
		Attempts:     c.Journal.RetryAttempts,
		InitialDelay: c.Journal.RetryInitialDelay,
		MaxDelay:     c.Journal.RetryMaxDelay,
	}
}

func (c *Configuration) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Journal.Backend == "" {
		c.Journal.Backend = "postgres"
	}
	if c.Journal.RedisPort == 0 {
		c.Journal.RedisPort = 6379
	}
	if c.Journal.RetryAttempts == 0 {
		c.Journal.RetryAttempts = backoff.DefaultPolicy().Attempts
	}
	if c.Journal.RetryInitialDelay == 0 {
		c.Journal.RetryInitialDelay = backoff.DefaultPolicy().InitialDelay
	}
	if c.Journal.RetryMaxDelay == 0 {
		c.Journal.RetryMaxDelay = backoff.DefaultPolicy().MaxDelay
	}
	if c.Realis.Pallet == "" {
		c.Realis.Pallet = DefaultPallet
	}
	if c.Realis.SS58Prefix == 0 {
		c.Realis.SS58Prefix = 42
	}
	if c.Realis.SubmitTimeout == 0 {
		c.Realis.SubmitTimeout = DefaultSubmitTimeout
	}
	if c.BSC.Confirmations == 0 {
		c.BSC.Confirmations = DefaultConfirmations
	}
	if c.BSC.GasLimit == 0 {
		c.BSC.GasLimit = DefaultGasLimit
	}
	if c.BSC.SubmitTimeout == 0 {
		c.BSC.SubmitTimeout = DefaultSubmitTimeout
	}
	if c.Pipeline.ChannelSize <= 0 {
		c.Pipeline.ChannelSize = DefaultChannelSize
	}
	if c.Pipeline.RestartDelay == 0 {
		c.Pipeline.RestartDelay = DefaultRestartDelay
	}
	if c.Pipeline.StuckAfter == 0 {
		c.Pipeline.StuckAfter = DefaultStuckAfter
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubjectPrefix
	}
}
