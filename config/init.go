package config

import (
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

func readFile(path string, cfg *Configuration) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open config file")
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return errors.Wrapf(err, "failed to decode %s", path)
	}
	return nil
}

func readEnv(cfg *Configuration) error {
	return errors.Wrap(envconfig.Process(EnvPrefix, cfg), "failed to read environment")
}

// Load reads the yaml file at path, then lets BRIDGE_* environment
// variables override it. A missing file is not an error when the
// environment carries the whole configuration.
func Load(path string) (*Configuration, error) {
	cfg := &Configuration{}
	if path != "" {
		if err := readFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := readEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the bridge cannot start with.
func (c *Configuration) Validate() error {
	switch c.Journal.Backend {
	case "postgres", "sqlite":
		if c.Journal.DSN == "" {
			return errors.Errorf("journal.dsn is required for the %s backend", c.Journal.Backend)
		}
	case "redis":
		if c.Journal.RedisHost == "" {
			return errors.New("journal.redis_host is required for the redis backend")
		}
	default:
		return errors.Errorf("unknown journal backend %q", c.Journal.Backend)
	}

	if c.Realis.URL == "" {
		return errors.New("realis.url is required")
	}
	if c.Realis.Seed == "" {
		return errors.New("realis.seed is required")
	}

	if c.BSC.URL == "" {
		return errors.New("bsc.url is required")
	}
	if c.BSC.ChainID <= 0 {
		return errors.New("bsc.chain_id must be positive")
	}
	if !common.IsHexAddress(c.BSC.Contract) {
		return errors.Errorf("bsc.contract %q is not an address", c.BSC.Contract)
	}
	if strings.TrimPrefix(c.BSC.PrivateKey, "0x") == "" {
		return errors.New("bsc.private_key is required")
	}

	if c.Server.UseSSL && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return errors.New("server.cert_file and server.key_file are required with ssl")
	}
	return nil
}
